// Package redis is the redis tool: single key-value and hash commands
// against REDIS_URL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/tlsconfig"
)

// scanCount is the COUNT hint for each SCAN page.
const scanCount = 100

// Program returns the redis command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "redis",
		Short: "read and write Redis keys (REDIS_URL)",
		Commands: []*cli.Command{
			{Name: "ping", Short: "check the connection", Run: withClient(ping)},
			{Name: "get", Usage: "<key>", Short: "print a string value", Run: withClient(get)},
			{Name: "set", Usage: "<key> <value> [--ttl seconds]", Short: "set a string value", Run: withClient(set)},
			{Name: "del", Usage: "<key>...", Short: "delete keys", Run: withClient(del)},
			{Name: "keys", Usage: "[pattern]", Short: "list keys matching a glob pattern (default *)", Run: withClient(keys)},
			{Name: "ttl", Usage: "<key>", Short: "print remaining seconds (-1 no expiry, -2 missing)", Run: withClient(ttl)},
			{Name: "expire", Usage: "<key> <seconds>", Short: "set a key's time to live", Run: withClient(expire)},
			{Name: "incr", Usage: "<key>", Short: "increment an integer value", Run: withClient(incr)},
			{Name: "hget", Usage: "<key> <field>", Short: "print a hash field", Run: withClient(hget)},
			{Name: "hset", Usage: "<key> <field> <value>", Short: "set a hash field", Run: withClient(hset)},
			{Name: "hgetall", Usage: "<key> [--format table|json|csv]", Short: "print every field of a hash", Run: withClient(hgetall)},
		},
	}
}

type runFunc func(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error

// withClient opens a client for the duration of one command.
func withClient(fn runFunc) func(context.Context, *cli.Env, *args.Args) error {
	return func(ctx context.Context, env *cli.Env, a *args.Args) error {
		rdb, err := NewClient(env)
		if err != nil {
			return err
		}
		defer rdb.Close()
		return fn(ctx, env, a, rdb)
	}
}

// NewClient builds a client from REDIS_URL and the optional TLS files.
func NewClient(env *cli.Env) (*goredis.Client, error) {
	rc := env.Config.Redis
	opts, err := goredis.ParseURL(rc.URL)
	if err != nil {
		return nil, &cli.ConfigError{Msg: fmt.Sprintf("invalid REDIS_URL: %v", err), Hint: "use redis://[:password@]host:port/db"}
	}

	tlsCfg, err := tlsconfig.Load(tlsconfig.Files{CAFile: rc.CAFile, CertFile: rc.CertFile, KeyFile: rc.KeyFile}, "")
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		if opts.TLSConfig != nil {
			// rediss:// already chose the server name.
			tlsCfg.ServerName = opts.TLSConfig.ServerName
		}
		opts.TLSConfig = tlsCfg
	}

	return goredis.NewClient(opts), nil
}

func ping(ctx context.Context, env *cli.Env, _ *args.Args, rdb *goredis.Client) error {
	pong, err := rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	env.Println(pong)
	return nil
}

func get(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key"); err != nil {
		return err
	}
	val, err := rdb.Get(ctx, a.Arg(0)).Result()
	if errors.Is(err, goredis.Nil) {
		env.Println("(nil)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	env.Println(val)
	return nil
}

func set(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key", "value"); err != nil {
		return err
	}
	ttl, err := a.Duration("ttl", 0)
	if err != nil {
		return err
	}
	if ttl < 0 {
		return cli.Usagef("--ttl must not be negative")
	}
	if err := rdb.Set(ctx, a.Arg(0), a.Arg(1), ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	env.Println("OK")
	return nil
}

func del(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key"); err != nil {
		return err
	}
	n, err := rdb.Del(ctx, a.Positional...).Result()
	if err != nil {
		return fmt.Errorf("del: %w", err)
	}
	env.Printf("%d key(s) deleted\n", n)
	return nil
}

// keys walks SCAN rather than issuing KEYS so large keyspaces are not
// blocked.
func keys(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	pattern := a.Arg(0)
	if pattern == "" {
		pattern = "*"
	}

	var found []string
	iter := rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		found = append(found, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	sort.Strings(found)

	for _, k := range found {
		env.Println(k)
	}
	return nil
}

func ttl(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key"); err != nil {
		return err
	}
	d, err := rdb.TTL(ctx, a.Arg(0)).Result()
	if err != nil {
		return fmt.Errorf("ttl: %w", err)
	}
	env.Println(ttlSeconds(d))
	return nil
}

// ttlSeconds renders a TTL reply. go-redis passes the -1 and -2 sentinels
// through as raw durations.
func ttlSeconds(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}

func expire(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key", "seconds"); err != nil {
		return err
	}
	secs, err := strconv.Atoi(a.Arg(1))
	if err != nil || secs <= 0 {
		return cli.Usagef("seconds must be a positive integer, got %q", a.Arg(1))
	}
	ok, err := rdb.Expire(ctx, a.Arg(0), time.Duration(secs)*time.Second).Result()
	if err != nil {
		return fmt.Errorf("expire: %w", err)
	}
	if !ok {
		return fmt.Errorf("key %q does not exist", a.Arg(0))
	}
	env.Println("OK")
	return nil
}

func incr(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key"); err != nil {
		return err
	}
	n, err := rdb.Incr(ctx, a.Arg(0)).Result()
	if err != nil {
		return fmt.Errorf("incr: %w", err)
	}
	env.Println(n)
	return nil
}

func hget(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key", "field"); err != nil {
		return err
	}
	val, err := rdb.HGet(ctx, a.Arg(0), a.Arg(1)).Result()
	if errors.Is(err, goredis.Nil) {
		env.Println("(nil)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("hget: %w", err)
	}
	env.Println(val)
	return nil
}

func hset(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key", "field", "value"); err != nil {
		return err
	}
	if err := rdb.HSet(ctx, a.Arg(0), a.Arg(1), a.Arg(2)).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	env.Println("OK")
	return nil
}

func hgetall(ctx context.Context, env *cli.Env, a *args.Args, rdb *goredis.Client) error {
	if err := a.RequireArgs("key"); err != nil {
		return err
	}
	fields, err := rdb.HGetAll(ctx, a.Arg(0)).Result()
	if err != nil {
		return fmt.Errorf("hgetall: %w", err)
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	res := &format.Result{Columns: []string{"field", "value"}}
	for _, f := range names {
		res.Rows = append(res.Rows, []any{f, fields[f]})
	}
	return format.Print(env.Stdout, a, res)
}
