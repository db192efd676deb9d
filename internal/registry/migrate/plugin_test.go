package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name string
	err  error
	log  *[]string
}

func (m recordingMigrator) Name() string { return m.name }

func (m recordingMigrator) Migrate(context.Context) error {
	*m.log = append(*m.log, m.name)
	return m.err
}

func withPlugins(t *testing.T, ps ...Plugin) {
	t.Helper()
	saved := plugins
	plugins = ps
	t.Cleanup(func() { plugins = saved })
}

func TestRunAllFollowsOrder(t *testing.T) {
	var ran []string
	withPlugins(t,
		Plugin{Order: 200, Migrator: recordingMigrator{name: "late", log: &ran}},
		Plugin{Order: 100, Migrator: recordingMigrator{name: "early", log: &ran}},
	)

	require.Equal(t, []string{"early", "late"}, Names())
	require.NoError(t, RunAll(context.Background()))
	require.Equal(t, []string{"early", "late"}, ran)
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	withPlugins(t,
		Plugin{Order: 1, Migrator: recordingMigrator{name: "a", err: boom, log: &ran}},
		Plugin{Order: 2, Migrator: recordingMigrator{name: "b", log: &ran}},
	)

	err := RunAll(context.Background())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "migration a failed")
	require.Equal(t, []string{"a"}, ran)
}
