// Package mysqlcli runs the mysqldump and mysql client programs.
package mysqlcli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"wpsnapshots/internal/wordpress"
)

// importScript wraps the dump so it loads in one transaction with checks
// disabled.
const importScript = "SET autocommit = 0; SET unique_checks = 0; SET foreign_key_checks = 0; SOURCE %s; COMMIT;"

// Runner invokes the client binaries.
type Runner struct {
	dumpBin  string
	mysqlBin string
}

// New returns a Runner using the named binaries, defaulting to
// "mysqldump" and "mysql" on PATH.
func New(dumpBin, mysqlBin string) *Runner {
	if dumpBin == "" {
		dumpBin = "mysqldump"
	}
	if mysqlBin == "" {
		mysqlBin = "mysql"
	}
	return &Runner{dumpBin: dumpBin, mysqlBin: mysqlBin}
}

// Dump writes the given tables of the database to dest.
func (r *Runner) Dump(ctx context.Context, conn wordpress.DBParams, tables []string, dest string) error {
	if len(tables) == 0 {
		return fmt.Errorf("mysqldump: no tables to export")
	}
	args := append([]string{"--no-defaults", "--single-transaction"}, connArgs(conn)...)
	args = append(args, "--result-file="+dest, conn.Name, "--tables")
	args = append(args, tables...)

	if _, stderr, err := run(ctx, conn, r.dumpBin, args); err != nil {
		return fmt.Errorf("mysqldump: %w: %s", err, stderr)
	}
	return nil
}

// Import loads the SQL file src into the database.
func (r *Runner) Import(ctx context.Context, conn wordpress.DBParams, src string) error {
	args := append([]string{"--no-defaults", "--no-auto-rehash"}, connArgs(conn)...)
	args = append(args, "--database="+conn.Name, "--execute="+fmt.Sprintf(importScript, src))

	if _, stderr, err := run(ctx, conn, r.mysqlBin, args); err != nil {
		return fmt.Errorf("mysql: import %s: %w: %s", src, err, stderr)
	}
	return nil
}

func connArgs(conn wordpress.DBParams) []string {
	host, port, socket := conn.Endpoint()
	args := []string{"--host=" + host}
	if port != "" {
		args = append(args, "--port="+port)
	}
	if socket != "" {
		args = append(args, "--socket="+socket)
	}
	if conn.User != "" {
		args = append(args, "--user="+conn.User)
	}
	if conn.Charset != "" {
		args = append(args, "--default-character-set="+conn.Charset)
	}
	return args
}

func run(ctx context.Context, conn wordpress.DBParams, bin string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	// The password goes through the environment so it never shows up in
	// the process list.
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+conn.Password)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
