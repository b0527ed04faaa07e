package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite mirrors the MySQL statements closely enough for tests.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Tables(ctx context.Context, q Querier, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ESCAPE '\' ORDER BY name`,
		EscapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return scanStrings(rows)
}

func (d SQLite) Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+d.Quote(table)+")")
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("scanning %s columns: %w", table, err)
		}
		cols = append(cols, Column{Name: name, Type: typ, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

func (SQLite) RegexpUnsupported(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such function: regexp")
}

// Contains uses instr() because SQLite's LIKE ignores ASCII case.
func (d SQLite) Contains(col string) string {
	return "instr(" + d.Quote(col) + ", ?) > 0"
}

func (SQLite) ContainsArg(needle string) any {
	return needle
}

func (d SQLite) CloneTable(ctx context.Context, q Querier, src, dst string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", d.Quote(dst), d.Quote(src))); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	return nil
}

func (d SQLite) RenameTable(ctx context.Context, q Querier, from, to string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to))); err != nil {
		return fmt.Errorf("renaming %s: %w", from, err)
	}
	return nil
}

func (d SQLite) DropTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Quote(table)); err != nil {
		return fmt.Errorf("dropping %s: %w", table, err)
	}
	return nil
}
