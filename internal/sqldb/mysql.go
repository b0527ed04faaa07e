package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// erRegexpError is ER_REGEXP_ERROR from the pre-8.0 regex library.
const erRegexpError = 1139

// MySQL 8 ICU regex errors (ER_REGEXP_BUFFER_OVERFLOW .. ER_REGEXP_TIME_OUT).
const (
	erRegexpICUFirst = 3684
	erRegexpICULast  = 3699
)

// MySQL is the production dialect.
type MySQL struct{}

var _ Dialect = MySQL{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Tables(ctx context.Context, q Querier, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name LIKE ? ORDER BY table_name",
		EscapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return scanStrings(rows)
}

func (d MySQL) Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, "DESCRIBE "+d.Quote(table))
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var field, typ, null, key, extra string
		var def sql.NullString
		if err := rows.Scan(&field, &typ, &null, &key, &def, &extra); err != nil {
			return nil, fmt.Errorf("scanning %s columns: %w", table, err)
		}
		cols = append(cols, Column{Name: field, Type: typ, PrimaryKey: key == "PRI"})
	}
	return cols, rows.Err()
}

func (MySQL) RegexpUnsupported(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == erRegexpError || (me.Number >= erRegexpICUFirst && me.Number <= erRegexpICULast)
}

func (d MySQL) Contains(col string) string {
	return d.Quote(col) + " LIKE ?"
}

func (MySQL) ContainsArg(needle string) any {
	return "%" + EscapeLike(needle) + "%"
}

func (d MySQL) CloneTable(ctx context.Context, q Querier, src, dst string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s LIKE %s", d.Quote(dst), d.Quote(src))); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", d.Quote(dst), d.Quote(src))); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}

func (d MySQL) RenameTable(ctx context.Context, q Querier, from, to string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(from), d.Quote(to))); err != nil {
		return fmt.Errorf("renaming %s: %w", from, err)
	}
	return nil
}

func (d MySQL) DropTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.Quote(table)); err != nil {
		return fmt.Errorf("dropping %s: %w", table, err)
	}
	return nil
}
