package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultPingTimeout = 5 * time.Second
)

type ConnectConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-attest" }

// Connect opens a persistence client for the throttle state schema. The
// postgres and sqlite drivers are the two dialects the embedded migrations
// ship for.
func Connect(cfg ConnectConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s connection: %w", driver, err)
	}

	pcfg := persistenceConfig{
		driver:      driver,
		server:      dsn,
		debug:       cfg.Debug,
		pingTimeout: pingTimeout,
	}

	switch driver {
	case DriverPostgres:
		return persistence.New(pcfg, sqlDB, pgdialect.New())
	case DriverSQLite:
		return persistence.New(pcfg, sqlDB, sqlitedialect.New())
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
}
