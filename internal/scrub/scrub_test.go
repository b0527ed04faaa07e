package scrub

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"wpsnapshots/internal/sqldb"
	"wpsnapshots/internal/testutil"
	"wpsnapshots/internal/wordpress"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// tableDumper writes one INSERT per row, quoting every value like mysqldump.
type tableDumper struct {
	db     *sql.DB
	tables [][]string
}

func (d *tableDumper) Dump(ctx context.Context, _ wordpress.DBParams, tables []string, dest string) error {
	d.tables = append(d.tables, tables)
	var b strings.Builder
	for _, table := range tables {
		rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
		if err != nil {
			return err
		}
		cols, _ := rows.Columns()
		for rows.Next() {
			values := make([]sql.NullString, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return err
			}
			quotedValues := make([]string, len(values))
			for i, v := range values {
				quotedValues[i] = quoted(v.String)
			}
			fmt.Fprintf(&b, "INSERT INTO `%s` VALUES (%s);\n", table, strings.Join(quotedValues, ","))
		}
		rows.Close()
	}
	return os.WriteFile(dest, []byte(b.String()), 0644)
}

func seedUsers(t *testing.T) (*wordpress.Install, *sql.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	testutil.CreateUserTables(t, db, "wp_")
	testutil.MustExec(t, db,
		`INSERT INTO wp_users (ID, user_login, user_pass, user_email, display_name) VALUES (1, 'admin', '$P$hashone', 'admin@site.test', 'Jane Admin')`,
		`INSERT INTO wp_users (ID, user_login, user_pass, user_email, display_name) VALUES (2, 'editor', '$P$hashtwo', 'ed@site.test', 'Ed Itor')`,
		`INSERT INTO wp_usermeta (user_id, meta_key, meta_value) VALUES (1, 'first_name', 'Jane')`,
		`INSERT INTO wp_usermeta (user_id, meta_key, meta_value) VALUES (1, 'description', 'Lives in Springfield')`,
	)
	return &wordpress.Install{TablePrefix: "wp_", DB: db, Dialect: sqldb.SQLite{}}, db
}

func TestExcludedTables(t *testing.T) {
	tests := []struct {
		level int
		want  []string
	}{
		{None, nil},
		{Users, []string{"wp_users"}},
		{Full, []string{"wp_users", "wp_usermeta"}},
	}
	for _, tt := range tests {
		if got := ExcludedTables("wp_", tt.level); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExcludedTables(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestScrubber_DumpUsers_Level1(t *testing.T) {
	inst, db := seedUsers(t)
	dumper := &tableDumper{db: db}
	dest := filepath.Join(t.TempDir(), "users.sql")

	if err := New(dumper, nopLogger{}).DumpUsers(context.Background(), inst, Users, dest); err != nil {
		t.Fatalf("DumpUsers() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	for _, leaked := range []string{"$P$hashone", "$P$hashtwo", "admin@site.test", "ed@site.test"} {
		if strings.Contains(out, leaked) {
			t.Errorf("export still contains %q", leaked)
		}
	}
	for _, want := range []string{"'user0@example.com'", "'user1@example.com'", "'" + wordpress.PlaceholderPasswordHash + "'"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %s:\n%s", want, out)
		}
	}
	if _, err := os.Stat(dest + ".raw"); !os.IsNotExist(err) {
		t.Error("intermediate export was not removed")
	}
}

func TestScrubber_DumpUsers_Level2(t *testing.T) {
	ctx := context.Background()
	inst, db := seedUsers(t)
	dumper := &tableDumper{db: db}
	dest := filepath.Join(t.TempDir(), "users.sql")

	if err := New(dumper, nopLogger{}).DumpUsers(ctx, inst, Full, dest); err != nil {
		t.Fatalf("DumpUsers() error = %v", err)
	}

	if want := [][]string{{"wp_users_temp", "wp_usermeta_temp"}}; !reflect.DeepEqual(dumper.tables, want) {
		t.Errorf("dumped tables = %v, want %v", dumper.tables, want)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if strings.Contains(out, "_temp") {
		t.Errorf("export references temporary tables:\n%s", out)
	}
	if !strings.Contains(out, "INSERT INTO `wp_users` VALUES") || !strings.Contains(out, "INSERT INTO `wp_usermeta` VALUES") {
		t.Errorf("export missing renamed inserts:\n%s", out)
	}
	who := IdentityFor(1)
	for _, want := range []string{who.Email, who.DisplayName(), "'" + who.FirstName + "'"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
	for _, leaked := range []string{"admin@site.test", "Jane Admin", "Springfield", "$P$hashone"} {
		if strings.Contains(out, leaked) {
			t.Errorf("export still contains %q", leaked)
		}
	}

	var pass string
	if err := db.QueryRow(`SELECT user_pass FROM wp_users WHERE ID = 1`).Scan(&pass); err != nil {
		t.Fatalf("reading live user: %v", err)
	}
	if pass != "$P$hashone" {
		t.Errorf("live user_pass = %q, want it untouched", pass)
	}

	tables, err := sqldb.SQLite{}.Tables(ctx, db, "wp_")
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if want := []string{"wp_usermeta", "wp_users"}; !reflect.DeepEqual(tables, want) {
		t.Errorf("tables after scrub = %v, want %v", tables, want)
	}
}

func TestIdentityFor(t *testing.T) {
	if IdentityFor(3) != IdentityFor(3+int64(len(Pool))) {
		t.Error("IdentityFor is not indexed by ID modulo the pool size")
	}
	if len(Pool) != 1000 {
		t.Errorf("len(Pool) = %d, want 1000", len(Pool))
	}
}

func TestQuoted(t *testing.T) {
	if got := quoted(`o'brien\x`); got != `'o\'brien\\x'` {
		t.Errorf("quoted() = %s", got)
	}
}
