package cliflags

import (
	"testing"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/stretchr/testify/require"
)

func TestPrepareRequiresDBURLForPostgres(t *testing.T) {
	t.Setenv("CHATMAP_DB_HOST", "")
	cfg := config.DefaultConfig()
	require.Error(t, Prepare(&cfg))

	cfg.DatastoreType = "sqlite"
	require.NoError(t, Prepare(&cfg))
}

func TestPrepareBuildsDBURLFromLegacyEnv(t *testing.T) {
	t.Setenv("CHATMAP_DB_HOST", "db.internal")
	t.Setenv("CHATMAP_DB_PASSWORD", "secret")
	cfg := config.DefaultConfig()
	require.NoError(t, Prepare(&cfg))
	require.Contains(t, cfg.DBURL, "db.internal:5432")
}

func TestPrepareRejectsBadLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.LogLevel = "loud"
	require.Error(t, Prepare(&cfg))
}
