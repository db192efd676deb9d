package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// Migrator prepares the schema of one backing store. Migrators decide for
// themselves whether the configured store is theirs and return nil otherwise.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin orders a Migrator; lower Order runs first.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sorted() []Plugin {
	out := make([]Plugin, len(plugins))
	copy(out, plugins)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Names lists registered migrators in execution order.
func Names() []string {
	var names []string
	for _, p := range sorted() {
		names = append(names, p.Migrator.Name())
	}
	return names
}

// RunAll executes every registered migrator in order and stops at the first
// failure.
func RunAll(ctx context.Context) error {
	for _, p := range sorted() {
		start := time.Now()
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
		log.Debug("Migration finished", "name", p.Migrator.Name(), "took", time.Since(start))
	}
	return nil
}
