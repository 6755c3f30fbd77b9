package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/v2gplan/core/factory"
)

func runs(base time.Time) []RunRecord {
	return []RunRecord{
		{ID: "r1", Timestamp: base, Instance: "corridor", Mode: "benefit", Status: "optimal", Objective: 1000, OpenSites: 1, TotalSpend: "1621.10", Coverage: map[string]float64{"R1": 1}},
		{ID: "r2", Timestamp: base.Add(time.Minute), Instance: "corridor", Mode: "net-cost", Status: "infeasible", IIS: []string{"budget[2030]"}},
		{ID: "r3", Timestamp: base.Add(2 * time.Minute), Instance: "metro", Mode: "benefit", Status: "optimal", Objective: 42},
	}
}

// exercise runs the shared behaviour checks against any backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range runs(base) {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, RunQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID, "oldest first")
	assert.Equal(t, "1621.10", all[0].TotalSpend)
	assert.Equal(t, 1.0, all[0].Coverage["R1"])
	assert.True(t, all[0].Timestamp.Equal(base))

	byInst, err := s.Query(ctx, RunQuery{Instance: "corridor"})
	require.NoError(t, err)
	require.Len(t, byInst, 2)

	infeasible, err := s.Query(ctx, RunQuery{Status: "infeasible"})
	require.NoError(t, err)
	require.Len(t, infeasible, 1)
	assert.Equal(t, []string{"budget[2030]"}, infeasible[0].IIS)

	window, err := s.Query(ctx, RunQuery{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "r2", window[0].ID)

	last, err := s.Query(ctx, RunQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "r2", last[0].ID)
	assert.Equal(t, "r3", last[1].ID)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "nested", "runs.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestJSONLStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"id\":\"ok\"}\n"), 0o644))
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	out, err := s.Query(context.Background(), RunQuery{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].ID)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	big := make([]string, 2000)
	for i := range big {
		big[i] = fmt.Sprintf("row[%d]", i)
	}
	for i := 0; i < 60; i++ {
		require.NoError(t, s.Append(context.Background(), RunRecord{ID: fmt.Sprint(i), Timestamp: time.Unix(int64(i), 0), IIS: big}))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "runs*.jsonl"))
	assert.Greater(t, len(files), 1, "expected rotated files")

	out, err := s.Query(context.Background(), RunQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "59", out[0].ID)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestSQLiteStoreRejectsDuplicateID(t *testing.T) {
	s, err := NewSQLiteStore("file:dup.db?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	rec := RunRecord{ID: "same", Timestamp: time.Now()}
	require.NoError(t, s.Append(context.Background(), rec))
	assert.Error(t, s.Append(context.Background(), rec))
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	path := filepath.Join(t.TempDir(), "runs.jsonl")
	s, err = NewStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": path}})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	_, err = NewStore(factory.ModuleConfig{Type: "sqlite"})
	assert.ErrorContains(t, err, "path required")
	_, err = NewStore(factory.ModuleConfig{Type: "postgres"})
	assert.ErrorContains(t, err, "dsn required")
	_, err = NewStore(factory.ModuleConfig{Type: "mongo"})
	assert.Error(t, err)
}
