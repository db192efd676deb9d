package serve

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// managementServer serves /health, /ready and /metrics on one port. Plain
// HTTP (with h2c) and TLS clients are told apart by cmux.
type managementServer struct {
	lis     net.Listener
	servers []*http.Server
	once    sync.Once
}

// startManagementServer binds cfg.Port (0 picks a free port) and starts
// serving handler in the background.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (*managementServer, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("management listen failed: %w", err)
	}
	m := &managementServer{lis: lis}
	muxer := cmux.New(lis)

	// TLS must be matched before the catch-all plain-text matcher.
	if cfg.EnableTLS {
		cert, err := loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, err
		}
		tlsLis := tls.NewListener(muxer.Match(cmux.TLS()), &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
		m.serve("tls", tlsLis, &http.Server{Handler: handler, ReadHeaderTimeout: cfg.ReadHeaderTimeout})
	}
	if cfg.EnablePlainText {
		m.serve("plaintext", muxer.Match(cmux.Any()), &http.Server{
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		})
	}

	go func() {
		if err := muxer.Serve(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Error("management mux failed", "err", err)
		}
	}()

	log.Info("Management server listening", "addr", lis.Addr())
	return m, nil
}

func (m *managementServer) serve(kind string, lis net.Listener, srv *http.Server) {
	m.servers = append(m.servers, srv)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("management server failed", "listener", kind, "err", err)
		}
	}()
}

// Addr returns the bound address.
func (m *managementServer) Addr() net.Addr {
	return m.lis.Addr()
}

// Shutdown drains the HTTP servers and closes the listener.
func (m *managementServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	m.once.Do(func() {
		for _, srv := range m.servers {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) && shutdownErr == nil {
				shutdownErr = err
			}
		}
		_ = m.lis.Close()
	})
	return shutdownErr
}

func loadServerCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if strings.TrimSpace(certFile) != "" && strings.TrimSpace(keyFile) != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load tls certificate: %w", err)
		}
		return cert, nil
	}
	log.Warn("No management TLS certificate configured; using a self-signed one")
	return selfSignedCertificate()
}

func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls key failed: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls serial failed: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls certificate failed: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: template}, nil
}
