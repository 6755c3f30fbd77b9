package history

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists runs to PostgreSQL through the pgx driver.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to dsn, checks the connection and ensures schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS planner_runs (
        id TEXT PRIMARY KEY,
        ts BIGINT NOT NULL,
        instance TEXT NOT NULL,
        status TEXT NOT NULL,
        record JSONB NOT NULL
    );`
	index := `CREATE INDEX IF NOT EXISTS planner_runs_ts ON planner_runs (ts);`
	if err := initSchema(db, schema, index); err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore{db: db, placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}}, nil
}
