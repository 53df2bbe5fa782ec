package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalambet/deflator/internal/storage"
	"github.com/kalambet/deflator/internal/timefmt"
)

// Reader builds the statistics and gallery views and the dedup set.
type Reader struct {
	q            storage.Querier
	now          func() time.Time
	windowMonths int
}

// NewReader returns a Reader over q.
func NewReader(q storage.Querier, opts ...Option) *Reader {
	o := buildOptions(opts)
	return &Reader{q: q, now: o.now, windowMonths: o.windowMonths}
}

// RecentRuns returns up to limit runs, newest first. limit is clamped by the
// gateway. Timestamps that cannot be parsed are rendered as "n/a".
func (r *Reader) RecentRuns(ctx context.Context, limit any) ([]RunView, error) {
	now := r.now()

	runs, err := storage.ReadSelect(ctx, r.q, storage.Select{
		Table: storage.TableRuns,
		Columns: []string{
			"scrap_stat_id", "source", "status",
			"ts_start_date", "ts_start_time", "ts_end_date", "ts_end_time",
			"succ_count", "fail_count",
			"exc_type", "exc_value", "exc_traceback",
		},
		OrderBy: []storage.Order{{Column: "scrap_stat_id", Desc: true}},
		Limit:   limit,
	}, func(row storage.RowScanner) (RunView, error) {
		var (
			v                                  RunView
			status                             string
			startDate, startTime, endDate, end sql.NullString
			succ, fail                         sql.NullInt64
			excType, excValue, excTrace        sql.NullString
		)
		if err := row.Scan(&v.ID, &v.Source, &status,
			&startDate, &startTime, &endDate, &end,
			&succ, &fail,
			&excType, &excValue, &excTrace); err != nil {
			return v, err
		}
		v.Status = Status(status)

		start, startOK := parseStored(startDate, startTime)
		stop, stopOK := parseStored(endDate, end)

		v.Start, v.End, v.Age, v.TimeTaken = timefmt.NotAvailable, timefmt.NotAvailable, timefmt.NotAvailable, timefmt.NotAvailable
		if startOK {
			v.Start = timefmt.Format(timefmt.DateTime, start)
			v.Age = timefmt.Between(start, now, false)
		}
		if stopOK {
			v.End = timefmt.Format(timefmt.DateTime, stop)
		}
		if startOK && stopOK {
			v.TimeTaken = timefmt.Between(start, stop, false)
		}

		v.Percentage = timefmt.NotAvailable
		if succ.Valid {
			v.Succeeded = &succ.Int64
		}
		if fail.Valid {
			v.Failed = &fail.Int64
		}
		if succ.Valid && fail.Valid {
			v.Percentage = timefmt.Percentage(int(succ.Int64), int(succ.Int64+fail.Int64))
		}

		v.ExcType, v.ExcValue, v.ExcTraceback = excType.String, excValue.String, excTrace.String
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading recent runs: %w", err)
	}
	return runs, nil
}

// RecentItems returns up to limit downloaded items of source, newest first.
func (r *Reader) RecentItems(ctx context.Context, source string, limit any) ([]ItemView, error) {
	now := r.now()

	items, err := storage.ReadSelect(ctx, r.q, storage.Select{
		Table: storage.TableItems,
		Joins: []storage.Join{{
			Table: storage.TableRuns,
			Left:  storage.TableRuns + ".scrap_stat_id",
			Right: storage.TableItems + ".scrap_stat_id",
		}},
		Columns: []string{"ts_date", "ts_time", "name", "local_path", "impressions"},
		Where:   map[string]any{"source": source},
		OrderBy: []storage.Order{{Column: "ts_date", Desc: true}, {Column: "ts_time", Desc: true}},
		Limit:   limit,
	}, func(row storage.RowScanner) (ItemView, error) {
		var (
			v               ItemView
			date, clock     sql.NullString
			name, localPath sql.NullString
		)
		if err := row.Scan(&date, &clock, &name, &localPath, &v.Impressions); err != nil {
			return v, err
		}
		v.Name, v.LocalPath = name.String, localPath.String

		v.Datetime, v.Age = timefmt.NotAvailable, timefmt.NotAvailable
		if ts, ok := parseStored(date, clock); ok {
			v.Datetime = timefmt.Format(timefmt.DateTime, ts)
			v.Age = timefmt.Between(ts, now, false)
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading recent items of %s: %w", source, err)
	}
	return items, nil
}

// KnownItemNames returns the names already downloaded for source within the
// dedup window.
func (r *Reader) KnownItemNames(ctx context.Context, source string) (map[string]struct{}, error) {
	stmt := fmt.Sprintf(`SELECT DISTINCT name FROM %[1]s
		INNER JOIN %[2]s ON %[2]s.scrap_stat_id = %[1]s.scrap_stat_id
		WHERE source = ?`, storage.TableItems, storage.TableRuns)
	args := []any{source}

	if r.windowMonths > 0 {
		cutoff := r.now().AddDate(0, -r.windowMonths, 0)
		stmt += fmt.Sprintf(" AND %s.ts_date > ?", storage.TableItems)
		args = append(args, timefmt.Format(timefmt.Date, cutoff))
	}

	known := make(map[string]struct{})
	err := r.q.Query(ctx, stmt, args, func(row storage.RowScanner) error {
		var name sql.NullString
		if err := row.Scan(&name); err != nil {
			return err
		}
		if name.Valid {
			known[name.String] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading known items of %s: %w", source, err)
	}
	return known, nil
}

func parseStored(date, clock sql.NullString) (time.Time, bool) {
	if !date.Valid || !clock.Valid {
		return time.Time{}, false
	}
	ts, err := timefmt.ParseStored(date.String, clock.String)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
