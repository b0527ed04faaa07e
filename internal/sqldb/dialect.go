// Package sqldb holds the engine-specific SQL used against a live site
// database. MySQL is the production engine; SQLite stands in for it in tests.
package sqldb

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Column describes one table column.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
}

// IsText reports whether the column holds text that may need rewriting.
func (c Column) IsText() bool {
	t := strings.ToLower(c.Type)
	return strings.Contains(t, "text") || strings.Contains(t, "varchar")
}

// Dialect abstracts the statements that differ between engines.
type Dialect interface {
	Name() string

	// Quote returns ident as a quoted identifier.
	Quote(ident string) string

	// Tables lists tables whose name starts with prefix, sorted by name.
	Tables(ctx context.Context, q Querier, prefix string) ([]string, error)

	// Columns introspects a table.
	Columns(ctx context.Context, q Querier, table string) ([]Column, error)

	// RegexpUnsupported reports whether err means the engine could not
	// evaluate a REGEXP predicate.
	RegexpUnsupported(err error) bool

	// Contains returns a predicate with one placeholder matching rows whose
	// col contains the argument returned by ContainsArg.
	Contains(col string) string
	ContainsArg(needle string) any

	CloneTable(ctx context.Context, q Querier, src, dst string) error
	RenameTable(ctx context.Context, q Querier, from, to string) error
	DropTable(ctx context.Context, q Querier, table string) error
}

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
