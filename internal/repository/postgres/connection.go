package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"sealdrive/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds the prefixed name of every drive table
type TableNames struct {
	Users          string
	Folders        string
	Files          string
	FileGrants     string
	FolderGrants   string
	UsageIntervals string
	CascadeTasks   string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Users:          prefix + "users",
		Folders:        prefix + "folders",
		Files:          prefix + "files",
		FileGrants:     prefix + "file_grants",
		FolderGrants:   prefix + "folder_grants",
		UsageIntervals: prefix + "usage_intervals",
		CascadeTasks:   prefix + "cascade_tasks",
	}
}

// ChildFirst lists the tables so that every table comes before the ones it
// references. Drops and truncates walk it in this order.
func (t *TableNames) ChildFirst() []string {
	return []string{
		t.CascadeTasks,
		t.UsageIntervals,
		t.FileGrants,
		t.FolderGrants,
		t.Files,
		t.Folders,
		t.Users,
	}
}

// Pool sizing used unless the connection string sets pool_max_conns or
// pool_min_conns itself
const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultMaxConnIdleTime = 5 * time.Minute
)

// pgBouncerPort is the transaction-mode pooler port of hosted Postgres
const pgBouncerPort = 6543

// CreateConnectionPool opens and pings a pgx pool.
//
// Behind a transaction-mode PgBouncer prepared statements do not survive
// across transactions, so the pool describes statements per call instead of
// caching them unless default_query_exec_mode was given explicitly.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if !strings.Contains(databaseURL, "pool_max_conns") {
		config.MaxConns = defaultMaxConns
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		config.MinConns = min(defaultMinConns, config.MaxConns)
	}
	if !strings.Contains(databaseURL, "pool_max_conn_idle_time") {
		config.MaxConnIdleTime = defaultMaxConnIdleTime
	}

	conn := config.ConnConfig
	if conn.Port == pgBouncerPort && !strings.Contains(databaseURL, "default_query_exec_mode") {
		conn.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("using cache_describe exec mode behind pgbouncer", "port", pgBouncerPort)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction carried by ctx, or the pool outside one
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
