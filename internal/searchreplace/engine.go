// Package searchreplace rewrites a string across the text columns of live
// database tables without corrupting PHP-serialized values.
package searchreplace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wpsnapshots/internal/sqldb"
)

// Logger is the subset of the service logger the engine writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DefaultSkipColumns are never rewritten.
var DefaultSkipColumns = []string{"user_pass"}

// serializedProbe matches values that start like a serialized array,
// integer or object.
const serializedProbe = "^[aiO]:[1-9]"

// Engine runs search-replace passes against one database.
type Engine struct {
	db          sqldb.Querier
	dialect     sqldb.Dialect
	logger      Logger
	maxDepth    int
	skipColumns map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the nesting ceiling of the serialized walk.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithSkipColumns replaces the default column skip-list.
func WithSkipColumns(cols ...string) Option {
	return func(e *Engine) {
		e.skipColumns = make(map[string]bool, len(cols))
		for _, c := range cols {
			e.skipColumns[c] = true
		}
	}
}

// NewEngine creates an Engine for db.
func NewEngine(db sqldb.Querier, dialect sqldb.Dialect, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		dialect:  dialect,
		logger:   logger,
		maxDepth: DefaultMaxDepth,
	}
	WithSkipColumns(DefaultSkipColumns...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report accumulates the outcome of a Run.
type Report struct {
	Tables        int
	SkippedTables []string
	RowsUpdated   int
	// Guarded counts serialized values left unchanged because they could
	// not be round-tripped.
	Guarded int
}

// Run replaces every occurrence of old with new in tables.
func (e *Engine) Run(ctx context.Context, tables []string, old, new string) (*Report, error) {
	report := &Report{}
	if old == "" || old == new {
		return report, nil
	}

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.runTable(ctx, table, old, new, report); err != nil {
			return report, fmt.Errorf("search-replace on %s: %w", table, err)
		}
	}
	return report, nil
}

func (e *Engine) runTable(ctx context.Context, table, old, new string, report *Report) error {
	cols, err := e.dialect.Columns(ctx, e.db, table)
	if err != nil {
		return err
	}

	var keys []string
	var text []string
	for _, c := range cols {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
		if c.IsText() && !e.skipColumns[c.Name] {
			text = append(text, c.Name)
		}
	}
	if len(keys) == 0 {
		e.logger.Warn("skipping table without primary key", "table", table)
		report.SkippedTables = append(report.SkippedTables, table)
		return nil
	}
	report.Tables++

	for _, col := range text {
		serialized, err := e.hasSerialized(ctx, table, col)
		if err != nil {
			return err
		}

		var n int
		if serialized {
			n, err = e.replaceRows(ctx, table, col, keys, old, new, report)
		} else {
			n, err = e.replaceSQL(ctx, table, col, old, new)
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		report.RowsUpdated += n
		if n > 0 {
			e.logger.Debug("column updated", "table", table, "column", col, "rows", n, "serialized", serialized)
		}
	}
	return nil
}

// hasSerialized reports whether col may hold serialized payloads. If the
// engine cannot evaluate the probe, it assumes it does.
func (e *Engine) hasSerialized(ctx context.Context, table, col string) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s REGEXP '%s' LIMIT 1",
		e.dialect.Quote(table), e.dialect.Quote(col), serializedProbe)

	var one int
	err := e.db.QueryRowContext(ctx, q).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case e.dialect.RegexpUnsupported(err):
		e.logger.Debug("regexp probe unsupported, scanning rows", "table", table, "column", col, "error", err)
		return true, nil
	default:
		return false, fmt.Errorf("probing %s: %w", col, err)
	}
}

func (e *Engine) replaceSQL(ctx context.Context, table, col, old, new string) (int, error) {
	q := fmt.Sprintf("UPDATE %s SET %s = REPLACE(%s, ?, ?) WHERE %s",
		e.dialect.Quote(table), e.dialect.Quote(col), e.dialect.Quote(col), e.dialect.Contains(col))
	res, err := e.db.ExecContext(ctx, q, old, new, e.dialect.ContainsArg(old))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return int(n), nil
}

func (e *Engine) replaceRows(ctx context.Context, table, col string, keys []string, old, new string, report *Report) (int, error) {
	rowKeys, err := e.matchingKeys(ctx, table, col, keys, old)
	if err != nil {
		return 0, err
	}

	where := e.keyPredicate(keys)
	selectQ := fmt.Sprintf("SELECT %s FROM %s WHERE %s", e.dialect.Quote(col), e.dialect.Quote(table), where)
	updateQ := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s", e.dialect.Quote(table), e.dialect.Quote(col), where)

	updated := 0
	for _, key := range rowKeys {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		var current sql.NullString
		if err := e.db.QueryRowContext(ctx, selectQ, key...).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return updated, fmt.Errorf("reading row: %w", err)
		}
		if !current.Valid || current.String == "" {
			continue
		}

		r := &Replacer{Old: old, New: new, MaxDepth: e.maxDepth}
		next := r.Replace(current.String)
		report.Guarded += r.Guarded
		if r.Guarded > 0 {
			e.logger.Debug("serialized value left unchanged", "table", table, "column", col, "key", fmt.Sprint(key...))
		}
		if next == current.String {
			continue
		}

		args := append([]any{next}, key...)
		if _, err := e.db.ExecContext(ctx, updateQ, args...); err != nil {
			return updated, fmt.Errorf("writing row: %w", err)
		}
		updated++
	}
	return updated, nil
}

// matchingKeys loads the primary keys of candidate rows before any write,
// so no result set is open while rows are updated.
func (e *Engine) matchingKeys(ctx context.Context, table, col string, keys []string, old string) ([][]any, error) {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = e.dialect.Quote(k)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(quoted, ", "), e.dialect.Quote(table), e.dialect.Contains(col))

	rows, err := e.db.QueryContext(ctx, q, e.dialect.ContainsArg(old))
	if err != nil {
		return nil, fmt.Errorf("selecting rows: %w", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(keys))
		ptrs := make([]any, len(keys))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning keys: %w", err)
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (e *Engine) keyPredicate(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = e.dialect.Quote(k) + " = ?"
	}
	return strings.Join(parts, " AND ")
}
