package wordpress

import (
	"context"
	"reflect"
	"testing"

	"wpsnapshots/internal/testutil"
)

func TestInstall_Sites_SingleSite(t *testing.T) {
	inst, db := newTestInstall(t, "<?php\n$table_prefix = 'wp_';\n")
	testutil.CreateSiteTables(t, db, "wp_")
	testutil.SetOption(t, db, "wp_", "home", "https://example.test")
	testutil.SetOption(t, db, "wp_", "siteurl", "https://example.test/wp")
	testutil.SetOption(t, db, "wp_", "blogname", "Example")

	sites, err := inst.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites() error = %v", err)
	}
	want := []Site{{HomeURL: "https://example.test", SiteURL: "https://example.test/wp", Blogname: "Example"}}
	if !reflect.DeepEqual(sites, want) {
		t.Errorf("Sites() = %+v, want %+v", sites, want)
	}
}

func TestInstall_Sites_Multisite(t *testing.T) {
	inst, db := newTestInstall(t, multisiteConfig)
	testutil.CreateNetworkTables(t, db, "wp_")
	testutil.CreateSiteTables(t, db, "wp_")
	testutil.CreateSiteTables(t, db, "wp_2_")
	testutil.MustExec(t, db,
		`INSERT INTO wp_blogs (blog_id, domain, path) VALUES (1, 'network.test', '/')`,
		`INSERT INTO wp_blogs (blog_id, domain, path) VALUES (2, 'network.test', '/shop/')`,
	)
	testutil.SetOption(t, db, "wp_", "home", "http://network.test")
	testutil.SetOption(t, db, "wp_", "siteurl", "http://network.test")
	testutil.SetOption(t, db, "wp_2_", "home", "http://network.test/shop")
	testutil.SetOption(t, db, "wp_2_", "siteurl", "http://network.test/shop")
	testutil.SetOption(t, db, "wp_2_", "blogname", "Shop")

	sites, err := inst.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites() error = %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("len(Sites()) = %d, want 2", len(sites))
	}
	want := Site{BlogID: 2, Domain: "network.test", Path: "/shop/", HomeURL: "http://network.test/shop", SiteURL: "http://network.test/shop", Blogname: "Shop"}
	if sites[1] != want {
		t.Errorf("Sites()[1] = %+v, want %+v", sites[1], want)
	}
}

func TestBlogTables(t *testing.T) {
	tables := []string{
		"wp_2_options", "wp_2_posts", "wp_blogs", "wp_options", "wp_posts",
		"wp_site", "wp_sitemeta", "wp_users", "wp_12_options",
	}

	tests := []struct {
		name   string
		blogID int64
		want   []string
	}{
		{"main blog", 1, []string{"wp_options", "wp_posts", "wp_sitemeta", "wp_users"}},
		{"blog 2", 2, []string{"wp_2_options", "wp_2_posts"}},
		{"blog 12", 12, []string{"wp_12_options"}},
		{"unknown blog", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BlogTables(tables, "wp_", tt.blogID)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BlogTables() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExcludeTables(t *testing.T) {
	got := ExcludeTables([]string{"wp_options", "wp_terms", "wp_term_taxonomy", "wp_posts"}, "wp_", []string{"terms", "term_taxonomy"})
	want := []string{"wp_options", "wp_posts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExcludeTables() = %v, want %v", got, want)
	}
}

func TestInstall_UpdateBlogAndNetwork(t *testing.T) {
	ctx := context.Background()
	inst, db := newTestInstall(t, multisiteConfig)
	testutil.CreateNetworkTables(t, db, "wp_")
	testutil.MustExec(t, db,
		`INSERT INTO wp_blogs (blog_id, domain, path) VALUES (2, 'old.test', '/shop/')`,
		`INSERT INTO wp_site (id, domain, path) VALUES (1, 'old.test', '/')`,
	)

	if err := inst.UpdateBlog(ctx, 2, "new.test", "/store/"); err != nil {
		t.Fatalf("UpdateBlog() error = %v", err)
	}
	if err := inst.UpdateNetworkDomain(ctx, "new.test"); err != nil {
		t.Fatalf("UpdateNetworkDomain() error = %v", err)
	}

	var domain, path string
	if err := db.QueryRow(`SELECT domain, path FROM wp_blogs WHERE blog_id = 2`).Scan(&domain, &path); err != nil {
		t.Fatalf("reading blog: %v", err)
	}
	if domain != "new.test" || path != "/store/" {
		t.Errorf("blog = (%q, %q), want (new.test, /store/)", domain, path)
	}
	if err := db.QueryRow(`SELECT domain FROM wp_site`).Scan(&domain); err != nil {
		t.Fatalf("reading site: %v", err)
	}
	if domain != "new.test" {
		t.Errorf("network domain = %q, want new.test", domain)
	}
}

func TestInstall_RenamePrefix(t *testing.T) {
	tests := []struct {
		name       string
		to         string
		targetOwn  bool
		wantTables []string
	}{
		{
			name:       "empty target",
			to:         "site_",
			wantTables: []string{"site_options", "site_posts", "site_usermeta", "site_users"},
		},
		{
			name:       "target has its own tables",
			to:         "site_",
			targetOwn:  true,
			wantTables: []string{"site_options", "site_posts", "site_usermeta", "site_users"},
		},
		{
			name:      "target prefix extends snapshot prefix",
			to:        "wp_site_",
			targetOwn: true,
			wantTables: []string{
				"wp_site_options", "wp_site_posts", "wp_site_usermeta", "wp_site_users",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			inst, db := newTestInstall(t, "<?php\n$table_prefix = '"+tt.to+"';\n")
			if tt.targetOwn {
				testutil.CreateSiteTables(t, db, tt.to)
				testutil.SetOption(t, db, tt.to, "blogname", "target")
			}
			testutil.CreateSiteTables(t, db, "wp_")
			testutil.SetOption(t, db, "wp_", "blogname", "snapshot")
			testutil.SetOption(t, db, "wp_", "wp_user_roles", "a:0:{}")
			testutil.SetOption(t, db, "wp_", "wp_plugin_setting", "kept")
			testutil.MustExec(t, db, `INSERT INTO wp_usermeta (user_id, meta_key, meta_value) VALUES (1, 'wp_capabilities', 'x')`)

			if err := inst.RenamePrefix(ctx, "wp_"); err != nil {
				t.Fatalf("RenamePrefix() error = %v", err)
			}

			tables, err := inst.Tables(ctx)
			if err != nil {
				t.Fatalf("Tables() error = %v", err)
			}
			if !reflect.DeepEqual(tables, tt.wantTables) {
				t.Errorf("Tables() = %v, want %v", tables, tt.wantTables)
			}

			blogname, err := inst.Option(ctx, tt.to, "blogname")
			if err != nil {
				t.Fatalf("Option() error = %v", err)
			}
			if blogname != "snapshot" {
				t.Errorf("blogname = %q, want %q", blogname, "snapshot")
			}

			var n int
			db.QueryRow(`SELECT COUNT(*) FROM `+tt.to+`options WHERE option_name IN (?, 'wp_plugin_setting')`, tt.to+"user_roles").Scan(&n)
			if n != 2 {
				t.Errorf("renamed options = %d, want 2", n)
			}
			db.QueryRow(`SELECT COUNT(*) FROM `+tt.to+`usermeta WHERE meta_key = ?`, tt.to+"capabilities").Scan(&n)
			if n != 1 {
				t.Errorf("renamed usermeta = %d, want 1", n)
			}
		})
	}
}
