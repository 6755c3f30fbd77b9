package history

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs to a SQLite database.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS planner_runs (
        id TEXT PRIMARY KEY,
        ts INTEGER,
        instance TEXT,
        status TEXT,
        record TEXT
    );`
	index := `CREATE INDEX IF NOT EXISTS planner_runs_ts ON planner_runs (ts);`
	if err := initSchema(db, schema, index); err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore{db: db, placeholder: func(int) string { return "?" }}}, nil
}
