package serve

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/plugin/route/system"
	"github.com/chirino/chatmap-ingest/internal/testutil/testredis"
	"github.com/stretchr/testify/require"
)

func TestStartServerServesManagementRoutes(t *testing.T) {
	t.Cleanup(system.Reset)

	cfg := config.DefaultConfig()
	cfg.RedisURL = testredis.StartRedis(t)
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "chatmap.db")
	cfg.MediaDir = t.TempDir()
	cfg.CacheType = "none"
	cfg.PollInterval = 50 * time.Millisecond
	cfg.ManagementListener.Port = 0

	srv, err := StartServer(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	base := "http://" + srv.ManagementAddr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ready")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "chatmap_poll_cycles_total")
}

func TestSelfSignedCertificate(t *testing.T) {
	cert, err := loadServerCertificate("", "")
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	require.Equal(t, "localhost", cert.Leaf.Subject.CommonName)
}
