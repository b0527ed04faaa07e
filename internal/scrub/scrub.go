// Package scrub exports the user tables of a site with personal data
// replaced.
//
// Level 1 rewrites password hashes and emails in the exported SQL. Level 2
// copies users and usermeta to temporary tables, replaces names, emails and
// hashes there, exports the copies under the original names and drops them.
// The live tables are never modified.
package scrub

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"wpsnapshots/internal/wordpress"
)

// Levels.
const (
	None  = 0
	Users = 1
	Full  = 2
)

// EmailPattern is the level 1 replacement email; %d is the user's index.
const EmailPattern = "user%d@example.com"

const tempSuffix = "_temp"

// Dumper exports tables to a SQL file.
type Dumper interface {
	Dump(ctx context.Context, conn wordpress.DBParams, tables []string, dest string) error
}

// Logger is the subset of logging used here.
type Logger interface {
	Debug(msg string, args ...any)
}

// Scrubber produces scrubbed user dumps.
type Scrubber struct {
	dumper Dumper
	logger Logger
}

// New returns a Scrubber exporting through dumper.
func New(dumper Dumper, logger Logger) *Scrubber {
	return &Scrubber{dumper: dumper, logger: logger}
}

// ExcludedTables returns the tables the main export must leave out at
// level because DumpUsers writes them.
func ExcludedTables(prefix string, level int) []string {
	switch {
	case level >= Full:
		return []string{prefix + "users", prefix + "usermeta"}
	case level >= Users:
		return []string{prefix + "users"}
	}
	return nil
}

// DumpUsers writes the scrubbed user tables of inst to dest.
func (s *Scrubber) DumpUsers(ctx context.Context, inst *wordpress.Install, level int, dest string) error {
	switch {
	case level >= Full:
		return s.full(ctx, inst, dest)
	case level >= Users:
		return s.users(ctx, inst, dest)
	}
	return fmt.Errorf("scrub level %d does not export users", level)
}

func (s *Scrubber) users(ctx context.Context, inst *wordpress.Install, dest string) error {
	users := inst.TablePrefix + "users"
	raw := dest + ".raw"
	defer os.Remove(raw)

	s.logger.Debug("exporting users", "table", users)
	if err := s.dumper.Dump(ctx, inst.Params, []string{users}, raw); err != nil {
		return fmt.Errorf("exporting users: %w", err)
	}

	rows, err := inst.DB.QueryContext(ctx,
		"SELECT user_pass, user_email FROM "+inst.Dialect.Quote(users)+" ORDER BY ID")
	if err != nil {
		return fmt.Errorf("reading users: %w", err)
	}
	var pairs []string
	seen := map[string]bool{}
	n := 0
	for rows.Next() {
		var pass, email string
		if err := rows.Scan(&pass, &email); err != nil {
			rows.Close()
			return fmt.Errorf("reading users: %w", err)
		}
		if pass != "" && !seen[pass] {
			seen[pass] = true
			pairs = append(pairs, quoted(pass), quoted(wordpress.PlaceholderPasswordHash))
		}
		if email != "" {
			if !seen[email] {
				seen[email] = true
				pairs = append(pairs, quoted(email), quoted(fmt.Sprintf(EmailPattern, n)))
			}
			n++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading users: %w", err)
	}

	s.logger.Debug("scrubbing users", "users", n)
	return rewriteFile(raw, dest, strings.NewReplacer(pairs...))
}

func (s *Scrubber) full(ctx context.Context, inst *wordpress.Install, dest string) (err error) {
	users := inst.TablePrefix + "users"
	usermeta := inst.TablePrefix + "usermeta"
	usersTemp := users + tempSuffix
	usermetaTemp := usermeta + tempSuffix
	d := inst.Dialect

	for _, pair := range [][2]string{{users, usersTemp}, {usermeta, usermetaTemp}} {
		if err := d.DropTable(ctx, inst.DB, pair[1]); err != nil {
			return err
		}
		s.logger.Debug("duplicating table", "table", pair[0])
		if err := d.CloneTable(ctx, inst.DB, pair[0], pair[1]); err != nil {
			return err
		}
	}
	defer func() {
		for _, t := range []string{usermetaTemp, usersTemp} {
			if derr := d.DropTable(context.WithoutCancel(ctx), inst.DB, t); derr != nil && err == nil {
				err = derr
			}
		}
	}()

	ids, err := userIDs(ctx, inst, usersTemp)
	if err != nil {
		return err
	}

	qUsers := d.Quote(usersTemp)
	qMeta := d.Quote(usermetaTemp)
	for _, id := range ids {
		who := IdentityFor(id)
		if _, err := inst.DB.ExecContext(ctx,
			"UPDATE "+qUsers+" SET user_pass = ?, user_email = ?, user_url = '', user_activation_key = '', display_name = ? WHERE ID = ?",
			wordpress.PlaceholderPasswordHash, who.Email, who.DisplayName(), id); err != nil {
			return fmt.Errorf("scrubbing user %d: %w", id, err)
		}
		for key, value := range map[string]string{
			"first_name": who.FirstName,
			"last_name":  who.LastName,
			"nickname":   who.FirstName,
		} {
			if _, err := inst.DB.ExecContext(ctx,
				"UPDATE "+qMeta+" SET meta_value = ? WHERE meta_key = ? AND user_id = ?", value, key, id); err != nil {
				return fmt.Errorf("scrubbing user %d: %w", id, err)
			}
		}
	}
	if _, err := inst.DB.ExecContext(ctx,
		"UPDATE "+qMeta+" SET meta_value = '' WHERE meta_key IN ('description', 'session_tokens')"); err != nil {
		return fmt.Errorf("scrubbing usermeta: %w", err)
	}

	raw := dest + ".raw"
	defer os.Remove(raw)
	s.logger.Debug("exporting scrubbed users", "users", len(ids))
	if err := s.dumper.Dump(ctx, inst.Params, []string{usersTemp, usermetaTemp}, raw); err != nil {
		return fmt.Errorf("exporting users: %w", err)
	}

	return rewriteFile(raw, dest, strings.NewReplacer(
		"`"+usermetaTemp+"`", "`"+usermeta+"`",
		"`"+usersTemp+"`", "`"+users+"`",
	))
}

func userIDs(ctx context.Context, inst *wordpress.Install, table string) ([]int64, error) {
	rows, err := inst.DB.QueryContext(ctx, "SELECT ID FROM "+inst.Dialect.Quote(table)+" ORDER BY ID")
	if err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rewriteFile streams src to dest line by line through r.
func rewriteFile(src, dest string, r *strings.Replacer) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating scrubbed export: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	br := bufio.NewReaderSize(in, 64*1024)
	bw := bufio.NewWriterSize(out, 64*1024)
	for {
		line, rerr := br.ReadString('\n')
		if len(line) > 0 {
			if _, err := r.WriteString(bw, line); err != nil {
				return fmt.Errorf("writing scrubbed export: %w", err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading export: %w", rerr)
		}
	}
	return bw.Flush()
}

// quoted renders s as mysqldump writes a string value.
func quoted(s string) string {
	return "'" + strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\x00", `\0`,
		"\n", `\n`,
		"\r", `\r`,
		"\x1a", `\Z`,
	).Replace(s) + "'"
}
