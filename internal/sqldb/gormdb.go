package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/tlsconfig"
)

// Gorm is a Backend over a gorm connection. It serves SQLite and MySQL.
type Gorm struct {
	db *gorm.DB
}

func openGorm(dialector gorm.Dialector) (*Gorm, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewSlogLogger(slog.Default(), logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}
	return &Gorm{db: db}, nil
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*Gorm, error) {
	return openGorm(sqlite.Open(path))
}

// SQLiteOpener uses --db, falling back to the configured path.
func SQLiteOpener(_ context.Context, env *cli.Env, a *args.Args) (Backend, error) {
	return OpenSQLite(a.StringOr("db", env.Config.SQLite.Path))
}

// OpenMySQL connects with dsn, which may be a driver DSN
// ("user:pass@tcp(host:3306)/db") or a mysql:// URL. A non-empty files set
// switches the connection to TLS.
func OpenMySQL(dsn string, files tlsconfig.Files) (*Gorm, error) {
	cfg, err := parseMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}

	// The driver fills in ServerName from the address.
	tlsCfg, err := tlsconfig.Load(files, "")
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		cfg.TLS = tlsCfg
	}

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL configuration: %w", err)
	}
	return openGorm(mysql.New(mysql.Config{Conn: sql.OpenDB(connector)}))
}

// MySQLOpener reads the DSN and TLS files from configuration.
func MySQLOpener(_ context.Context, env *cli.Env, a *args.Args) (Backend, error) {
	m := env.Config.MySQL
	dsn := a.StringOr("dsn", m.DSN)
	if dsn == "" {
		return nil, cli.NotConfigured("MySQL connection", "set MYSQL_DSN or MYSQL_URL")
	}
	return OpenMySQL(dsn, tlsconfig.Files{CAFile: m.CAFile, CertFile: m.CertFile, KeyFile: m.KeyFile})
}

// parseMySQLDSN accepts both DSN forms. Time columns are parsed so they
// render as timestamps.
func parseMySQLDSN(dsn string) (*gomysql.Config, error) {
	if strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid MySQL URL: %w", err)
		}
		cfg := gomysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = u.Host + ":3306"
		}
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		return cfg, nil
	}

	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

func (g *Gorm) Query(ctx context.Context, query string) (*format.Result, error) {
	rows, err := g.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanRows(rows)
}

func (g *Gorm) Exec(ctx context.Context, query string) (int64, error) {
	tx := g.db.WithContext(ctx).Exec(query)
	if tx.Error != nil {
		return 0, fmt.Errorf("exec failed: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// Tables omits SQLite's internal bookkeeping tables.
func (g *Gorm) Tables(ctx context.Context) ([]string, error) {
	all, err := g.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]string, 0, len(all))
	for _, t := range all {
		if strings.HasPrefix(t, "sqlite_") {
			continue
		}
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

func (g *Gorm) Describe(ctx context.Context, table string) (*format.Result, error) {
	m := g.db.WithContext(ctx).Migrator()
	if !m.HasTable(table) {
		return nil, fmt.Errorf("table %q not found", table)
	}
	cols, err := m.ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}

	res := &format.Result{Columns: describeColumns}
	for _, c := range cols {
		typ, ok := c.ColumnType()
		if !ok {
			typ = c.DatabaseTypeName()
		}
		nullable, _ := c.Nullable()
		var def any
		if v, ok := c.DefaultValue(); ok {
			def = v
		}
		res.Rows = append(res.Rows, []any{c.Name(), strings.ToLower(typ), nullable, def})
	}
	return res, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
