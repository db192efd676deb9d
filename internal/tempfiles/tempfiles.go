// Package tempfiles spools media downloads to disk so that large files never
// sit in memory while they are copied into a media store.
package tempfiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrTooLarge is returned by Spool when the source exceeds the size limit.
var ErrTooLarge = errors.New("content exceeds size limit")

// Spool copies at most maxSize bytes of r into a new temp file under dir and
// rewinds it. The returned reader deletes the file on Close. A maxSize <= 0
// means no limit. dir is created when missing; an empty dir uses os.TempDir.
func Spool(dir, pattern string, r io.Reader, maxSize int64) (io.ReadSeekCloser, int64, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, 0, fmt.Errorf("create temp dir %q: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("create temp file: %w", err)
	}
	spooled := &spooledFile{file: tmp}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(tmp, src)
	switch {
	case err != nil:
		err = fmt.Errorf("spool to temp file: %w", err)
	case maxSize > 0 && n > maxSize:
		err = fmt.Errorf("%w of %d bytes", ErrTooLarge, maxSize)
	default:
		if _, err = tmp.Seek(0, io.SeekStart); err != nil {
			err = fmt.Errorf("rewind temp file: %w", err)
		}
	}
	if err != nil {
		_ = spooled.Close()
		return nil, 0, err
	}
	return spooled, n, nil
}

// spooledFile removes its backing file once closed; Close is idempotent.
type spooledFile struct {
	file *os.File
	once sync.Once
	err  error
}

func (s *spooledFile) Read(p []byte) (int, error) { return s.file.Read(p) }

func (s *spooledFile) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

func (s *spooledFile) Close() error {
	s.once.Do(func() {
		s.err = s.file.Close()
		if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) && s.err == nil {
			s.err = err
		}
	})
	return s.err
}
