package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err, "Open(:memory:)")
	t.Cleanup(func() { s.Close() })
	return s
}

func insertRun(t *testing.T, s *Store, source string) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), TableRuns, map[string]any{
		"source":        source,
		"ts_start_date": "2024-03-05",
		"ts_start_time": "10:00.00,000000",
		"status":        "in_progress",
	})
	require.NoError(t, err)
	return id
}

// TestMigrationsIdempotent runs Open twice on the same datafile and verifies
// the migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "box.sqlite3")

	s1, err := Open(path)
	require.NoError(t, err)
	v1, err := s1.AppliedMigrations()
	require.NoError(t, err)
	insertRun(t, s1, "roumen")
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.NotEmpty(t, v2)

	var n int
	require.NoError(t, s2.DB().QueryRow("SELECT COUNT(*) FROM scrap_stat").Scan(&n))
	assert.Equal(t, 1, n, "data should survive reopening")
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{TableRuns, TableItems, TableFails} {
		var count int
		err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %q", table)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{0, 1},
		{-7, 1},
		{5000, 300},
		{"x", 10},
		{"50", 10},
		{nil, 10},
		{3.5, 10},
		{true, 10},
		{50, 50},
		{int64(300), 300},
		{uint64(1 << 63), 300},
		{uint8(1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), "ClampLimit(%#v)", tt.in)
	}
}

func TestSelectBuild(t *testing.T) {
	q := Select{
		Table:   TableItems,
		Joins:   []Join{{Table: TableRuns, Left: "scrap_stat.scrap_stat_id", Right: "scrap_items.scrap_stat_id"}},
		Columns: []string{"ts_date", "ts_time", "name"},
		Where:   map[string]any{"source": "roumen", "status": "complete"},
		OrderBy: []Order{{Column: "ts_date", Desc: true}, {Column: "ts_time"}},
		Limit:   5000,
	}

	stmt, args, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT ts_date, ts_time, name FROM scrap_items"+
			" INNER JOIN scrap_stat ON scrap_stat.scrap_stat_id = scrap_items.scrap_stat_id"+
			" WHERE source = ? AND status = ?"+
			" ORDER BY ts_date DESC, ts_time ASC LIMIT ?",
		stmt)
	assert.Equal(t, []any{"roumen", "complete", 300}, args)
}

func TestSelectBuildMinimal(t *testing.T) {
	stmt, args, err := Select{Table: TableRuns, Columns: []string{"scrap_stat_id"}, Limit: "bogus"}.Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT scrap_stat_id FROM scrap_stat LIMIT ?", stmt)
	assert.Equal(t, []any{LimitFallback}, args)
}

func TestBuildRejectsBadIdentifiers(t *testing.T) {
	_, _, err := Select{Table: "scrap_stat; DROP TABLE x", Columns: []string{"a"}}.Build()
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, _, err = Select{Table: TableRuns, Columns: []string{"a"}, Where: map[string]any{"1=1 OR source": "x"}}.Build()
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, _, err = buildInsert(TableRuns, map[string]any{"source)": "x"})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, _, err = Select{Table: TableRuns}.Build()
	assert.Error(t, err, "no columns")
}

func TestInsertReturnsSequentialIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := insertRun(t, s, "roumen")
	second := insertRun(t, s, "roumen-maso")
	assert.Equal(t, first+1, second)

	seq, err := s.LastSequence(ctx, TableRuns)
	require.NoError(t, err)
	assert.Equal(t, second, seq)
}

func TestLastSequenceEmptyTable(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LastSequence(context.Background(), TableFails)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertFailureLeavesNoRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Foreign keys are enforced, so an item pointing at a missing run fails.
	_, err := s.Insert(ctx, TableItems, map[string]any{
		"scrap_stat_id": 999,
		"name":          "a.jpg",
		"impressions":   0,
	})
	require.Error(t, err)

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM scrap_items").Scan(&n))
	assert.Zero(t, n)
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insertRun(t, s, "roumen")

	err := s.Update(ctx, TableRuns,
		map[string]any{"status": "complete", "succ_count": 2, "fail_count": 1},
		map[string]any{"scrap_stat_id": id},
	)
	require.NoError(t, err)

	var status string
	var succ, fail int
	require.NoError(t, s.DB().QueryRow("SELECT status, succ_count, fail_count FROM scrap_stat WHERE scrap_stat_id = ?", id).Scan(&status, &succ, &fail))
	assert.Equal(t, "complete", status)
	assert.Equal(t, 2, succ)
	assert.Equal(t, 1, fail)
}

func TestUpdateNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(context.Background(), TableRuns, map[string]any{"status": "complete"}, map[string]any{"scrap_stat_id": 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRequiresFilter(t *testing.T) {
	s := openTestStore(t)
	insertRun(t, s, "roumen")

	err := s.Update(context.Background(), TableRuns, map[string]any{"status": "failed"}, nil)
	require.Error(t, err)

	var status string
	require.NoError(t, s.DB().QueryRow("SELECT status FROM scrap_stat").Scan(&status))
	assert.Equal(t, "in_progress", status)
}

func TestReadAndReadSelect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertRun(t, s, "roumen")
	insertRun(t, s, "roumen-maso")
	insertRun(t, s, "roumen")

	sources, err := Read(ctx, s, "SELECT source FROM scrap_stat ORDER BY scrap_stat_id", nil, func(row RowScanner) (string, error) {
		var src string
		err := row.Scan(&src)
		return src, err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"roumen", "roumen-maso", "roumen"}, sources)

	ids, err := ReadSelect(ctx, s, Select{
		Table:   TableRuns,
		Columns: []string{"scrap_stat_id"},
		Where:   map[string]any{"source": "roumen"},
		OrderBy: []Order{{Column: "scrap_stat_id", Desc: true}},
		Limit:   1,
	}, func(row RowScanner) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

// TestQueryReleasesConnectionOnMapperError verifies that a failing row mapper
// does not leak the single pooled connection.
func TestQueryReleasesConnectionOnMapperError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertRun(t, s, "roumen")

	boom := errors.New("boom")
	_, err := Read(ctx, s, "SELECT source FROM scrap_stat", nil, func(RowScanner) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	insertRun(t, s, "roumen")
}
