package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidIdentifier is returned when a table or column name is not a
// plain (optionally table-qualified) SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Result-set bounds applied by ClampLimit.
const (
	LimitMin      = 1
	LimitMax      = 300
	LimitFallback = 10
)

// ClampLimit bounds a requested row limit to [LimitMin, LimitMax]. Values
// that are not integers are replaced with LimitFallback.
func ClampLimit(v any) int {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = clampUint(uint64(x))
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		n = clampUint(x)
	default:
		return LimitFallback
	}

	switch {
	case n < LimitMin:
		return LimitMin
	case n > LimitMax:
		return LimitMax
	}
	return int(n)
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

// RowScanner is the part of *sql.Rows a row mapper needs.
type RowScanner interface {
	Scan(dest ...any) error
}

// RowMapper converts the current row into a T.
type RowMapper[T any] func(RowScanner) (T, error)

// Querier is implemented by *Store.
type Querier interface {
	Query(ctx context.Context, stmt string, args []any, each func(RowScanner) error) error
	Select(ctx context.Context, q Select, each func(RowScanner) error) error
}

// Read runs stmt with bound args and maps every row.
func Read[T any](ctx context.Context, q Querier, stmt string, args []any, mapRow RowMapper[T]) ([]T, error) {
	var out []T
	err := q.Query(ctx, stmt, args, func(row RowScanner) error {
		v, err := mapRow(row)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// ReadSelect is Read for a composed Select.
func ReadSelect[T any](ctx context.Context, q Querier, sel Select, mapRow RowMapper[T]) ([]T, error) {
	var out []T
	err := q.Select(ctx, sel, func(row RowScanner) error {
		v, err := mapRow(row)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Join is an inner join on a single column equality.
type Join struct {
	Table string
	Left  string
	Right string
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Select describes a bounded SELECT. Every Where entry is an equality match
// and every value is bound, never interpolated. Limit goes through ClampLimit.
type Select struct {
	Table   string
	Joins   []Join
	Columns []string
	Where   map[string]any
	OrderBy []Order
	Limit   any
}

// Build renders the statement and its bind arguments.
func (q Select) Build() (string, []any, error) {
	if err := checkIdent(q.Table); err != nil {
		return "", nil, err
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s: no columns", q.Table)
	}
	if err := checkIdent(q.Columns...); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.Table)

	for _, j := range q.Joins {
		if err := checkIdent(j.Table, j.Left, j.Right); err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, " INNER JOIN %s ON %s = %s", j.Table, j.Left, j.Right)
	}

	var args []any
	if len(q.Where) > 0 {
		cols := sortedKeys(q.Where)
		if err := checkIdent(cols...); err != nil {
			return "", nil, err
		}
		conds := make([]string, len(cols))
		for i, c := range cols {
			conds[i] = c + " = ?"
			args = append(args, q.Where[c])
		}
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			if err := checkIdent(o.Column); err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = o.Column + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	b.WriteString(" LIMIT ?")
	args = append(args, ClampLimit(q.Limit))

	return b.String(), args, nil
}

func buildInsert(table string, values map[string]any) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no values", table)
	}

	cols := sortedKeys(values)
	if err := checkIdent(cols...); err != nil {
		return "", nil, err
	}

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	return stmt, args, nil
}

func buildUpdate(table string, values, where map[string]any) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("update %s: no values", table)
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("update %s: refusing to update without a filter", table)
	}

	setCols := sortedKeys(values)
	whereCols := sortedKeys(where)
	if err := checkIdent(append(setCols, whereCols...)...); err != nil {
		return "", nil, err
	}

	args := make([]any, 0, len(setCols)+len(whereCols))
	sets := make([]string, len(setCols))
	for i, c := range setCols {
		sets[i] = c + " = ?"
		args = append(args, values[c])
	}
	conds := make([]string, len(whereCols))
	for i, c := range whereCols {
		conds[i] = c + " = ?"
		args = append(args, where[c])
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	return stmt, args, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
