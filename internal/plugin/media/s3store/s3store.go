package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/chirino/chatmap-ingest/internal/config"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: CHATMAP_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return New(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// New returns a store writing into bucket under an optional key prefix.
func New(client *s3.Client, bucket, prefix string) *S3MediaStore {
	return &S3MediaStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}
}

type S3MediaStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// s3Key applies the prefix; the media key itself is what URLs reference.
func (s *S3MediaStore) s3Key(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + key
	}
	return key
}

func (s *S3MediaStore) Exists(ctx context.Context, key string) (bool, error) {
	s3Key := s.s3Key(key)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3store: head object: %w", err)
}

// Put expects a seekable body (the media resolver spools fetches to a temp
// file) so the SDK can send a known content length.
func (s *S3MediaStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	s3Key := s.s3Key(key)
	input := &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &s3Key,
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	_, err := s.client.PutObject(ctx, input, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return fmt.Errorf("s3store: put object: %w", err)
	}
	return nil
}

func (s *S3MediaStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s3Key := s.s3Key(key)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, registrymedia.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: get object: %w", err)
	}
	return resp.Body, nil
}

func (s *S3MediaStore) Delete(ctx context.Context, key string) error {
	s3Key := s.s3Key(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &s3Key,
	})
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	// HeadObject errors carry no body, so only the code is available.
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

var _ registrymedia.MediaStore = (*S3MediaStore)(nil)
