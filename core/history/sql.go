package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// sqlStore keeps each run as a JSON document with indexed filter columns.
// placeholder renders the n-th bind parameter of the driver dialect.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func (s *sqlStore) Append(ctx context.Context, rec RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO planner_runs (id, ts, instance, status, record) VALUES (%s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
	_, err = s.db.ExecContext(ctx, q, rec.ID, rec.Timestamp.UnixNano(), rec.Instance, rec.Status, string(b))
	return err
}

func (s *sqlStore) Query(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	var (
		args  []any
		where []string
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, s.placeholder(len(args))))
	}
	if !q.Start.IsZero() {
		add("ts >= %s", q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		add("ts <= %s", q.End.UnixNano())
	}
	if q.Instance != "" {
		add("instance = %s", q.Instance)
	}
	if q.Status != "" {
		add("status = %s", q.Status)
	}
	query := `SELECT record FROM planner_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []RunRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByTime(res)
	return res, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

func initSchema(db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return err
		}
	}
	return nil
}
