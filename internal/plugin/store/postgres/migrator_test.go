package postgres

import (
	"context"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/stretchr/testify/require"
)

func TestMigrator_SkipsWithoutConfig(t *testing.T) {
	require.NoError(t, (&postgresMigrator{}).Migrate(context.Background()))
}

func TestMigrator_SkipsWhenMigrateAtStartDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreMigrateAtStart = false
	ctx := config.WithContext(context.Background(), &cfg)
	require.NoError(t, (&postgresMigrator{}).Migrate(ctx))
}
