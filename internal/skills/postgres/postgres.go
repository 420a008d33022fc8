// Package postgres is the postgres tool: ad-hoc SQL over DATABASE_URL.
package postgres

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/sqldb"
)

// Program returns the postgres command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:     "postgres",
		Short:    "query a PostgreSQL database (DATABASE_URL, or --url)",
		Commands: sqldb.Commands(sqldb.PostgresOpener),
	}
}
