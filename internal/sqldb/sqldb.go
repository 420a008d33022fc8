// Package sqldb runs ad-hoc SQL for the postgres, mysql and sqlite tools and
// renders the results through the shared output formats.
package sqldb

import (
	"context"
	"log/slog"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

// Backend is one open database connection.
type Backend interface {
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string) (*format.Result, error)
	// Exec runs a statement and reports the number of rows affected.
	Exec(ctx context.Context, query string) (int64, error)
	// Tables lists user tables in name order.
	Tables(ctx context.Context) ([]string, error)
	// Describe lists the columns of table.
	Describe(ctx context.Context, table string) (*format.Result, error)
	Close() error
}

// Opener connects using the invocation's configuration and options.
type Opener func(ctx context.Context, env *cli.Env, a *args.Args) (Backend, error)

// describeColumns heads every Describe result.
var describeColumns = []string{"column", "type", "nullable", "default"}

// Commands returns query, exec, tables and describe bound to open.
func Commands(open Opener) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "query",
			Usage: "<sql> [--format table|json|csv]",
			Short: "run a query and print the rows",
			Run: func(ctx context.Context, env *cli.Env, a *args.Args) error {
				if err := a.RequireArgs("sql"); err != nil {
					return err
				}
				mode, err := format.ParseMode(a.StringOr("format", ""))
				if err != nil {
					return err
				}
				return withBackend(ctx, env, a, open, func(db Backend) error {
					res, err := db.Query(ctx, a.Arg(0))
					if err != nil {
						return err
					}
					return format.Write(env.Stdout, mode, res)
				})
			},
		},
		{
			Name:  "exec",
			Usage: "<sql>",
			Short: "run a statement and print the rows affected",
			Run: func(ctx context.Context, env *cli.Env, a *args.Args) error {
				if err := a.RequireArgs("sql"); err != nil {
					return err
				}
				return withBackend(ctx, env, a, open, func(db Backend) error {
					n, err := db.Exec(ctx, a.Arg(0))
					if err != nil {
						return err
					}
					env.Printf("%d row(s) affected\n", n)
					return nil
				})
			},
		},
		{
			Name:  "tables",
			Usage: "[--format table|json|csv]",
			Short: "list tables",
			Run: func(ctx context.Context, env *cli.Env, a *args.Args) error {
				return withBackend(ctx, env, a, open, func(db Backend) error {
					tables, err := db.Tables(ctx)
					if err != nil {
						return err
					}
					res := &format.Result{Columns: []string{"table"}}
					for _, t := range tables {
						res.Rows = append(res.Rows, []any{t})
					}
					return format.Print(env.Stdout, a, res)
				})
			},
		},
		{
			Name:  "describe",
			Usage: "<table> [--format table|json|csv]",
			Short: "list a table's columns",
			Run: func(ctx context.Context, env *cli.Env, a *args.Args) error {
				if err := a.RequireArgs("table"); err != nil {
					return err
				}
				return withBackend(ctx, env, a, open, func(db Backend) error {
					res, err := db.Describe(ctx, a.Arg(0))
					if err != nil {
						return err
					}
					return format.Print(env.Stdout, a, res)
				})
			},
		},
	}
}

func withBackend(ctx context.Context, env *cli.Env, a *args.Args, open Opener, fn func(Backend) error) error {
	db, err := open(ctx, env, a)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Debug("close database", "error", err)
		}
	}()
	return fn(db)
}
