package wordpress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SiteLimit caps how many network sites are enumerated.
const SiteLimit = 500

// NetworkTables are multisite tables that are never search-replaced.
var NetworkTables = []string{"blogs", "site"}

// Site is one site of an install. BlogID, Domain and Path are only set on
// multisite.
type Site struct {
	BlogID   int64
	Domain   string
	Path     string
	SiteURL  string
	HomeURL  string
	Blogname string
}

func (i *Install) table(name string) string {
	return i.Dialect.Quote(i.TablePrefix + name)
}

// BlogPrefix returns the table prefix for a blog of a multisite network.
func (i *Install) BlogPrefix(blogID int64) string {
	if blogID <= 1 {
		return i.TablePrefix
	}
	return i.TablePrefix + strconv.FormatInt(blogID, 10) + "_"
}

// Tables lists the tables carrying the install's prefix.
func (i *Install) Tables(ctx context.Context) ([]string, error) {
	return i.Dialect.Tables(ctx, i.DB, i.TablePrefix)
}

// Option reads an option of the blog whose tables use prefix. A missing
// option is returned as "".
func (i *Install) Option(ctx context.Context, prefix, name string) (string, error) {
	var value sql.NullString
	q := "SELECT option_value FROM " + i.Dialect.Quote(prefix+"options") + " WHERE option_name = ?"
	if err := i.DB.QueryRowContext(ctx, q, name).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("reading option %s: %w", name, err)
	}
	return value.String, nil
}

// Sites enumerates the sites of the install: the network's blogs on
// multisite, or the single site otherwise.
func (i *Install) Sites(ctx context.Context) ([]Site, error) {
	if !i.Multisite() {
		site, err := i.siteOptions(ctx, i.TablePrefix)
		if err != nil {
			return nil, err
		}
		return []Site{site}, nil
	}

	rows, err := i.DB.QueryContext(ctx,
		"SELECT blog_id, domain, path FROM "+i.table("blogs")+" ORDER BY blog_id LIMIT "+strconv.Itoa(SiteLimit))
	if err != nil {
		return nil, fmt.Errorf("listing blogs: %w", err)
	}
	var sites []Site
	for rows.Next() {
		var s Site
		if err := rows.Scan(&s.BlogID, &s.Domain, &s.Path); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning blog: %w", err)
		}
		sites = append(sites, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing blogs: %w", err)
	}

	for n := range sites {
		opts, err := i.siteOptions(ctx, i.BlogPrefix(sites[n].BlogID))
		if err != nil {
			return nil, fmt.Errorf("blog %d: %w", sites[n].BlogID, err)
		}
		sites[n].HomeURL = opts.HomeURL
		sites[n].SiteURL = opts.SiteURL
		sites[n].Blogname = opts.Blogname
	}
	return sites, nil
}

func (i *Install) siteOptions(ctx context.Context, prefix string) (Site, error) {
	var s Site
	var err error
	if s.HomeURL, err = i.Option(ctx, prefix, "home"); err != nil {
		return s, err
	}
	if s.SiteURL, err = i.Option(ctx, prefix, "siteurl"); err != nil {
		return s, err
	}
	if s.Blogname, err = i.Option(ctx, prefix, "blogname"); err != nil {
		return s, err
	}
	return s, nil
}

// BlogTables returns the subset of tables owned by one blog of a network
// whose base prefix is prefix. Blog 1 owns every prefixed table that is not
// another blog's; blog N owns "{prefix}{N}_*". Network tables are excluded.
func BlogTables(tables []string, prefix string, blogID int64) []string {
	numbered := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "[0-9]+_")
	own := prefix
	if blogID > 1 {
		own = prefix + strconv.FormatInt(blogID, 10) + "_"
	}

	var out []string
	for _, t := range tables {
		if !strings.HasPrefix(t, own) {
			continue
		}
		if blogID <= 1 && numbered.MatchString(t) {
			continue
		}
		if isNetworkTable(strings.TrimPrefix(t, own)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ExcludeTables drops the tables whose unprefixed name is in skip.
func ExcludeTables(tables []string, prefix string, skip []string) []string {
	var out []string
	for _, t := range tables {
		name := strings.TrimPrefix(t, prefix)
		excluded := false
		for _, s := range skip {
			if name == s {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, t)
		}
	}
	return out
}

func isNetworkTable(name string) bool {
	for _, n := range NetworkTables {
		if name == n {
			return true
		}
	}
	return false
}

// UpdateBlog sets the domain and path recorded for a network blog.
func (i *Install) UpdateBlog(ctx context.Context, blogID int64, domain, path string) error {
	_, err := i.DB.ExecContext(ctx,
		"UPDATE "+i.table("blogs")+" SET domain = ?, path = ? WHERE blog_id = ?", domain, path, blogID)
	if err != nil {
		return fmt.Errorf("updating blog %d: %w", blogID, err)
	}
	return nil
}

// UpdateNetworkDomain sets the domain of the network record.
func (i *Install) UpdateNetworkDomain(ctx context.Context, domain string) error {
	if _, err := i.DB.ExecContext(ctx, "UPDATE "+i.table("site")+" SET domain = ?", domain); err != nil {
		return fmt.Errorf("updating network domain: %w", err)
	}
	return nil
}

// RaisePacketLimit asks the server for a 1GB max_allowed_packet.
func (i *Install) RaisePacketLimit(ctx context.Context) error {
	_, err := i.DB.ExecContext(ctx, "SET GLOBAL max_allowed_packet = 1073741824")
	return err
}

// RenamePrefix renames every table starting with from to start with the
// install's prefix instead, replacing the install's table of the same name.
// Tables already carrying the install's prefix are left alone. The
// user_roles option and prefixed usermeta keys are renamed with it.
func (i *Install) RenamePrefix(ctx context.Context, from string) error {
	to := i.TablePrefix
	if from == "" || from == to {
		return nil
	}
	// When to extends from, the install's own tables match from too.
	own := func(name string) bool {
		return strings.HasPrefix(to, from) && strings.HasPrefix(name, to)
	}

	tables, err := i.Dialect.Tables(ctx, i.DB, from)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if !strings.HasPrefix(t, from) || own(t) {
			continue
		}
		renamed := to + strings.TrimPrefix(t, from)
		if err := i.Dialect.DropTable(ctx, i.DB, renamed); err != nil {
			return err
		}
		if err := i.Dialect.RenameTable(ctx, i.DB, t, renamed); err != nil {
			return err
		}
	}

	if err := i.renameKeys(ctx, "options", "option_name", from, to, func(k string) bool {
		return k == from+"user_roles"
	}); err != nil {
		return err
	}
	return i.renameKeys(ctx, "usermeta", "meta_key", from, to, func(k string) bool {
		return strings.HasPrefix(k, from) && !own(k)
	})
}

func (i *Install) renameKeys(ctx context.Context, table, col, from, to string, match func(string) bool) error {
	quoted := i.table(table)
	rows, err := i.DB.QueryContext(ctx, "SELECT DISTINCT "+col+" FROM "+quoted)
	if err != nil {
		return fmt.Errorf("listing %s keys: %w", table, err)
	}
	var keys []string
	for rows.Next() {
		var k sql.NullString
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return err
		}
		if k.Valid && match(k.String) {
			keys = append(keys, k.String)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range keys {
		renamed := to + strings.TrimPrefix(k, from)
		if _, err := i.DB.ExecContext(ctx,
			"UPDATE "+quoted+" SET "+col+" = ? WHERE "+col+" = ?", renamed, k); err != nil {
			return fmt.Errorf("renaming %s key %s: %w", table, k, err)
		}
	}
	return nil
}
