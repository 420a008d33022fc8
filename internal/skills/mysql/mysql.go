// Package mysql is the mysql tool: ad-hoc SQL over MYSQL_DSN.
package mysql

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/sqldb"
)

// Program returns the mysql command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:     "mysql",
		Short:    "query a MySQL database (MYSQL_DSN, or --dsn)",
		Commands: sqldb.Commands(sqldb.MySQLOpener),
	}
}
