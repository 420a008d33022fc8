// Package sqlite is the sqlite tool: ad-hoc SQL against a database file.
package sqlite

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/sqldb"
)

// Program returns the sqlite command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:     "sqlite",
		Short:    "query a SQLite database file (--db, SQLITE_PATH, default data.db)",
		Commands: sqldb.Commands(sqldb.SQLiteOpener),
	}
}
