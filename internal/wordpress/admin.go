package wordpress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wpsnapshots/internal/phpserial"
)

// Credentials of the administrator provisioned after a pull.
const (
	AdminLogin    = "wpsnapshots"
	AdminPassword = "password"
	AdminEmail    = "wpsnapshots@example.com"
)

// PlaceholderPasswordHash is md5("password"). WordPress accepts a bare MD5
// hash and rehashes it on first login.
const PlaceholderPasswordHash = "5f4dcc3b5aa765d61d8327deb882cf99"

const administratorCaps = `a:1:{s:13:"administrator";b:1;}`

// EnsureAdmin creates the wpsnapshots administrator, or resets its password
// and role when it exists. On multisite the user is added to the network's
// site_admins.
func (i *Install) EnsureAdmin(ctx context.Context, now time.Time) error {
	users := i.table("users")

	var id int64
	err := i.DB.QueryRowContext(ctx, "SELECT ID FROM "+users+" WHERE user_login = ?", AdminLogin).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := i.DB.ExecContext(ctx,
			"INSERT INTO "+users+" (user_login, user_pass, user_nicename, user_email, user_url, user_registered, user_activation_key, user_status, display_name) VALUES (?, ?, ?, ?, '', ?, '', 0, ?)",
			AdminLogin, PlaceholderPasswordHash, AdminLogin, AdminEmail, now.UTC().Format("2006-01-02 15:04:05"), AdminLogin)
		if err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}
	case err != nil:
		return fmt.Errorf("looking up admin user: %w", err)
	default:
		if _, err := i.DB.ExecContext(ctx,
			"UPDATE "+users+" SET user_pass = ? WHERE ID = ?", PlaceholderPasswordHash, id); err != nil {
			return fmt.Errorf("resetting admin password: %w", err)
		}
	}

	prefix := i.BlogPrefix(i.BlogIDCurrentSite())
	if err := i.setUserMeta(ctx, id, prefix+"capabilities", administratorCaps); err != nil {
		return err
	}
	if err := i.setUserMeta(ctx, id, prefix+"user_level", "10"); err != nil {
		return err
	}

	if i.Multisite() {
		return i.addSiteAdmin(ctx, AdminLogin)
	}
	return nil
}

func (i *Install) setUserMeta(ctx context.Context, userID int64, key, value string) error {
	usermeta := i.table("usermeta")
	if _, err := i.DB.ExecContext(ctx,
		"DELETE FROM "+usermeta+" WHERE user_id = ? AND meta_key = ?", userID, key); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	if _, err := i.DB.ExecContext(ctx,
		"INSERT INTO "+usermeta+" (user_id, meta_key, meta_value) VALUES (?, ?, ?)", userID, key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (i *Install) addSiteAdmin(ctx context.Context, login string) error {
	sitemeta := i.table("sitemeta")
	siteID := i.SiteIDCurrentSite()

	var raw string
	err := i.DB.QueryRowContext(ctx,
		"SELECT meta_value FROM "+sitemeta+" WHERE meta_key = 'site_admins' AND site_id = ?", siteID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		admins := &phpserial.Array{}
		admins.Append(phpserial.Str(login))
		encoded, err := phpserial.Marshal(admins)
		if err != nil {
			return err
		}
		if _, err := i.DB.ExecContext(ctx,
			"INSERT INTO "+sitemeta+" (site_id, meta_key, meta_value) VALUES (?, 'site_admins', ?)", siteID, encoded); err != nil {
			return fmt.Errorf("adding super admin: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading site_admins: %w", err)
	}

	admins := &phpserial.Array{}
	if v, err := phpserial.Unmarshal(raw); err == nil {
		if a, ok := v.(*phpserial.Array); ok {
			admins = a
		}
	}
	for _, e := range admins.Entries {
		if s, ok := e.Value.(phpserial.Str); ok && string(s) == login {
			return nil
		}
	}
	admins.Append(phpserial.Str(login))
	encoded, err := phpserial.Marshal(admins)
	if err != nil {
		return err
	}
	if _, err := i.DB.ExecContext(ctx,
		"UPDATE "+sitemeta+" SET meta_value = ? WHERE meta_key = 'site_admins' AND site_id = ?", encoded, siteID); err != nil {
		return fmt.Errorf("adding super admin: %w", err)
	}
	return nil
}
