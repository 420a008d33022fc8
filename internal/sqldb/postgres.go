package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

const postgresTablesQuery = `
SELECT CASE WHEN table_schema = 'public' THEN table_name ELSE table_schema || '.' || table_name END
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY 1`

const postgresColumnsQuery = `
SELECT column_name, data_type, is_nullable = 'YES', column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Postgres is a Backend over a single pgx connection.
type Postgres struct {
	conn *pgx.Conn
}

// OpenPostgres connects to url.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Postgres{conn: conn}, nil
}

// PostgresOpener reads the connection URL from configuration.
func PostgresOpener(ctx context.Context, env *cli.Env, a *args.Args) (Backend, error) {
	url := a.StringOr("url", env.Config.Postgres.URL)
	if url == "" {
		return nil, cli.NotConfigured("Postgres connection", "set DATABASE_URL or POSTGRES_URL")
	}
	return OpenPostgres(ctx, url)
}

func (p *Postgres) Query(ctx context.Context, query string) (*format.Result, error) {
	rows, err := p.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	res := &format.Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return res, nil
}

func (p *Postgres) Exec(ctx context.Context, query string) (int64, error) {
	tag, err := p.conn.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Tables(ctx context.Context) ([]string, error) {
	rows, err := p.conn.Query(ctx, postgresTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// Describe accepts "table" (public schema) or "schema.table".
func (p *Postgres) Describe(ctx context.Context, table string) (*format.Result, error) {
	schema, name := "public", table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		schema, name = table[:i], table[i+1:]
	}

	rows, err := p.conn.Query(ctx, postgresColumnsQuery, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	res := &format.Result{Columns: describeColumns}
	for rows.Next() {
		var (
			column, typ string
			nullable    bool
			def         *string
		)
		if err := rows.Scan(&column, &typ, &nullable, &def); err != nil {
			return nil, fmt.Errorf("failed to describe %s: %w", table, err)
		}
		res.Rows = append(res.Rows, []any{column, typ, nullable, derefOrNil(def)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return res, nil
}

func (p *Postgres) Close() error {
	return p.conn.Close(context.Background())
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
