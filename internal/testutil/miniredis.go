package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	fptredis "github.com/ethpandaops/fpt/pkg/redis"
)

// NewMiniredis creates an in-memory Redis closed when the test completes
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient returns a miniredis server, a matching config and a connected client.
// Both server and client are closed when the test completes.
func NewMiniredisClient(t *testing.T) (*miniredis.Miniredis, *fptredis.Config, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &fptredis.Config{Address: mr.Addr(), Prefix: "fpt-test"}
	client := cfg.NewClient()

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close miniredis client: %v", err)
		}
	})

	return mr, cfg, client
}
