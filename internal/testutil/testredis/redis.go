// Package testredis runs a throwaway Redis for stream, cache and snapshot tests.
package testredis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartRedis starts a Redis container with stream support and returns a
// redis:// URL. The container is removed when tb finishes.
func StartRedis(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			Cmd:          []string{"redis-server", "--save", "", "--appendonly", "no"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("testredis: start container: %v", err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("testredis: terminate container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		tb.Fatalf("testredis: resolve endpoint: %v", err)
	}
	return fmt.Sprintf("redis://%s/0", endpoint)
}

// NewClient starts a container and returns a connected client, closed on cleanup.
func NewClient(tb testing.TB) *goredis.Client {
	tb.Helper()
	opts, err := goredis.ParseURL(StartRedis(tb))
	if err != nil {
		tb.Fatalf("testredis: parse url: %v", err)
	}
	client := goredis.NewClient(opts)
	tb.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		tb.Fatalf("testredis: ping: %v", err)
	}
	return client
}

// AppendEntry adds one connector entry to the stream of owner, the way the
// chat connectors write them, and returns its stream id.
func AppendEntry(tb testing.TB, client goredis.UniversalClient, owner string, values map[string]interface{}) string {
	tb.Helper()
	id, err := client.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: "messages:" + owner,
		Values: values,
	}).Result()
	if err != nil {
		tb.Fatalf("testredis: xadd messages:%s: %v", owner, err)
	}
	return id
}
