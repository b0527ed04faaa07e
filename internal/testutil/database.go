package testutil

import (
	"database/sql"
	"regexp"
	"sync"
	"testing"

	"github.com/mattn/go-sqlite3"
)

const regexpDriver = "sqlite3_regexp"

var registerOnce sync.Once

// NewSQLiteDB opens an in-memory SQLite database without a REGEXP function.
// The pool is pinned to one connection so every query sees the same
// in-memory database. It is closed when the test completes.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	return openSQLite(t, "sqlite3")
}

// NewSQLiteDBWithRegexp is NewSQLiteDB with a REGEXP function registered,
// so queries behave like MySQL's REGEXP operator.
func NewSQLiteDBWithRegexp(t *testing.T) *sql.DB {
	t.Helper()
	registerOnce.Do(func() {
		sql.Register(regexpDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", func(pattern, s string) (bool, error) {
					return regexp.MatchString(pattern, s)
				}, true)
			},
		})
	})
	return openSQLite(t, regexpDriver)
}

func openSQLite(t *testing.T, driver string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driver, ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustExec runs each statement and fails the test on the first error.
func MustExec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
