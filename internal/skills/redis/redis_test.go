package redis

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/skillkit/internal/cli/clitest"
	"github.com/shineum/skillkit/internal/config"
)

func newServer(t *testing.T) (*miniredis.Miniredis, *config.Config) {
	t.Helper()
	m := miniredis.RunT(t)
	cfg := clitest.Config(t)
	cfg.Redis.URL = "redis://" + m.Addr() + "/0"
	return m, cfg
}

func run(t *testing.T, cfg *config.Config, argv ...string) clitest.Result {
	t.Helper()
	return clitest.Run(t, Program(), cfg, clitest.Options{}, argv...)
}

func TestSetGetTTL(t *testing.T) {
	_, cfg := newServer(t)

	res := run(t, cfg, "set", "key", "value", "--ttl", "10")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "OK\n", res.Stdout)

	res = run(t, cfg, "get", "key")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "value\n", res.Stdout)

	res = run(t, cfg, "ttl", "key")
	require.Equal(t, 0, res.Code, res.Stderr)
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.LessOrEqual(t, n, 10)
}

func TestTTLSentinels(t *testing.T) {
	m, cfg := newServer(t)
	require.NoError(t, m.Set("forever", "x"))

	assert.Equal(t, "-1\n", run(t, cfg, "ttl", "forever").Stdout)
	assert.Equal(t, "-2\n", run(t, cfg, "ttl", "missing").Stdout)
}

func TestExpiryIsHonoured(t *testing.T) {
	m, cfg := newServer(t)

	require.Equal(t, 0, run(t, cfg, "set", "session", "abc", "--ttl", "5").Code)
	m.FastForward(6 * time.Second)

	assert.Equal(t, "(nil)\n", run(t, cfg, "get", "session").Stdout)
}

func TestKeysDelIncr(t *testing.T) {
	m, cfg := newServer(t)
	require.NoError(t, m.Set("user:2", "b"))
	require.NoError(t, m.Set("user:1", "a"))
	require.NoError(t, m.Set("order:1", "c"))

	res := run(t, cfg, "keys", "user:*")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "user:1\nuser:2\n", res.Stdout)

	res = run(t, cfg, "del", "user:1", "user:2", "user:3")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "2 key(s) deleted\n", res.Stdout)

	run(t, cfg, "incr", "hits")
	res = run(t, cfg, "incr", "hits")
	assert.Equal(t, "2\n", res.Stdout)
}

func TestExpire(t *testing.T) {
	m, cfg := newServer(t)
	require.NoError(t, m.Set("k", "v"))

	res := run(t, cfg, "expire", "k", "30")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, 30*time.Second, m.TTL("k"))

	res = run(t, cfg, "expire", "missing", "30")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "does not exist")

	res = run(t, cfg, "expire", "k", "soon")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "positive integer")
}

func TestHashes(t *testing.T) {
	_, cfg := newServer(t)

	require.Equal(t, 0, run(t, cfg, "hset", "user:1", "name", "Ada").Code)
	require.Equal(t, 0, run(t, cfg, "hset", "user:1", "email", "ada@example.com").Code)

	assert.Equal(t, "Ada\n", run(t, cfg, "hget", "user:1", "name").Stdout)
	assert.Equal(t, "(nil)\n", run(t, cfg, "hget", "user:1", "phone").Stdout)

	res := run(t, cfg, "hgetall", "user:1", "--format", "csv")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "field,value\nemail,ada@example.com\nname,Ada\n", res.Stdout)
}

func TestPing(t *testing.T) {
	_, cfg := newServer(t)
	assert.Equal(t, "PONG\n", run(t, cfg, "ping").Stdout)
}

func TestUsageErrors(t *testing.T) {
	_, cfg := newServer(t)

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"get without key", []string{"get"}, "missing argument <key>"},
		{"set without value", []string{"set", "k"}, "missing argument <value>"},
		{"bad ttl", []string{"set", "k", "v", "--ttl", "soon"}, "--ttl must be a duration"},
		{"unknown command", []string{"flushall"}, "Unknown command: flushall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, cfg, tt.argv...)
			assert.Equal(t, 1, res.Code)
			assert.Contains(t, res.Stderr, tt.want)
		})
	}
}

func TestBadURL(t *testing.T) {
	cfg := clitest.Config(t)
	cfg.Redis.URL = "http://nope"

	res := run(t, cfg, "ping")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "invalid REDIS_URL")
}
