// Package records is the generic record storage used for donations and
// evidence export bookkeeping: equality and range filtered
// Select/Insert/Update/Delete/Count over a SQL backend.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned by Get when no row matches.
	ErrNotFound = errors.New("records: not found")
	// ErrInvalidQuery is returned for unknown tables, columns or operators.
	ErrInvalidQuery = errors.New("records: invalid query")
)

// Table names.
const (
	TableDonations       = "donations"
	TableEvidenceExports = "evidence_exports"
)

// columns whitelists every queryable identifier. Identifiers are spliced
// into SQL, values never are.
var columns = map[string][]string{
	TableDonations:       {"id", "tier", "amount_cents", "email", "status", "checkout_id", "created_at", "paid_at"},
	TableEvidenceExports: {"id", "session_id", "artifact_key", "receipts", "sha256", "created_at"},
}

// Record is one row keyed by column name.
type Record map[string]any

// String returns the column as a string, or "".
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Int returns the column as an int64, or 0.
func (r Record) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Op is a filter comparison.
type Op string

const (
	Eq  Op = "="
	Gt  Op = ">"
	Gte Op = ">="
	Lt  Op = "<"
	Lte Op = "<="
)

func (o Op) valid() bool {
	switch o {
	case Eq, Gt, Gte, Lt, Lte:
		return true
	}
	return false
}

// Filter is one column comparison. Filters are ANDed.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Where builds an equality filter.
func Where(col string, v any) Filter { return Filter{Column: col, Op: Eq, Value: v} }

// Query selects rows from a table.
type Query struct {
	Table   string
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the record storage surface.
type Store interface {
	Select(ctx context.Context, q Query) ([]Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Insert(ctx context.Context, table string, rec Record) error
	Update(ctx context.Context, table string, filters []Filter, set Record) (int64, error)
	Delete(ctx context.Context, table string, filters []Filter) (int64, error)
	Count(ctx context.Context, table string, filters []Filter) (int64, error)
}

// Dialect renders bind placeholders.
type Dialect interface {
	Name() string
	Placeholder(n int) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

func checkColumn(table, col string) error {
	for _, c := range columns[table] {
		if c == col {
			return nil
		}
	}
	return fmt.Errorf("%w: column %q on %q", ErrInvalidQuery, col, table)
}

func checkTable(table string) error {
	if _, ok := columns[table]; !ok {
		return fmt.Errorf("%w: table %q", ErrInvalidQuery, table)
	}
	return nil
}

// builder accumulates SQL text and arguments.
type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) where(table string, filters []Filter) error {
	for i, f := range filters {
		if err := checkColumn(table, f.Column); err != nil {
			return err
		}
		if !f.Op.valid() {
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
		if i == 0 {
			b.sb.WriteString(" WHERE ")
		} else {
			b.sb.WriteString(" AND ")
		}
		fmt.Fprintf(&b.sb, "%s %s %s", f.Column, f.Op, b.bind(f.Value))
	}
	return nil
}

func buildSelect(d Dialect, q Query) (string, []any, error) {
	if err := checkTable(q.Table); err != nil {
		return "", nil, err
	}
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "SELECT %s FROM %s", strings.Join(columns[q.Table], ", "), q.Table)
	if err := b.where(q.Table, q.Filters); err != nil {
		return "", nil, err
	}
	if q.OrderBy != "" {
		if err := checkColumn(q.Table, q.OrderBy); err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b.sb, " ORDER BY %s", q.OrderBy)
		if q.Desc {
			b.sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b.sb, " LIMIT %d", q.Limit)
	}
	return b.sb.String(), b.args, nil
}

func buildInsert(d Dialect, table string, rec Record) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	if len(rec) == 0 {
		return "", nil, fmt.Errorf("%w: empty insert", ErrInvalidQuery)
	}
	cols := sortedKeys(rec)
	b := &builder{d: d}
	marks := make([]string, len(cols))
	for i, c := range cols {
		if err := checkColumn(table, c); err != nil {
			return "", nil, err
		}
		marks[i] = b.bind(rec[c])
	}
	fmt.Fprintf(&b.sb, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return b.sb.String(), b.args, nil
}

func buildUpdate(d Dialect, table string, filters []Filter, set Record) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	if len(set) == 0 {
		return "", nil, fmt.Errorf("%w: empty update", ErrInvalidQuery)
	}
	if len(filters) == 0 {
		return "", nil, fmt.Errorf("%w: update without filter", ErrInvalidQuery)
	}
	b := &builder{d: d}
	cols := sortedKeys(set)
	assigns := make([]string, len(cols))
	for i, c := range cols {
		if err := checkColumn(table, c); err != nil {
			return "", nil, err
		}
		assigns[i] = c + " = " + b.bind(set[c])
	}
	fmt.Fprintf(&b.sb, "UPDATE %s SET %s", table, strings.Join(assigns, ", "))
	if err := b.where(table, filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func buildDelete(d Dialect, table string, filters []Filter) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, fmt.Errorf("%w: delete without filter", ErrInvalidQuery)
	}
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "DELETE FROM %s", table)
	if err := b.where(table, filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func buildCount(d Dialect, table string, filters []Filter) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	b := &builder{d: d}
	fmt.Fprintf(&b.sb, "SELECT COUNT(*) FROM %s", table)
	if err := b.where(table, filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
