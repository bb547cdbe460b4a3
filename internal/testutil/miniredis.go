package testutil

import (
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// NewMiniredisClient starts an in-memory Redis and a client bound to it. Both are closed when
// the test completes.
func NewMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close miniredis client: %v", err)
		}
	})

	return mr, client
}

// NewMiniredisURL starts an in-memory Redis and returns it with a redis:// address suitable
// for configuration.
func NewMiniredisURL(t *testing.T) (*miniredis.Miniredis, string) {
	t.Helper()

	mr := miniredis.RunT(t)

	return mr, "redis://" + mr.Addr() + "/0"
}

// ClosedAddr returns a loopback host:port with nothing listening on it
func ClosedAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}
