package snapshots_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wpsnapshots/internal/archive"
	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/snapshots"
	"wpsnapshots/internal/sqldb"
	"wpsnapshots/internal/testutil"
	"wpsnapshots/internal/wordpress"
)

const siteConfig = `<?php
define('DB_NAME', 'wordpress');
define('DB_USER', 'root');
define('DB_HOST', 'localhost');
$table_prefix = 'wp_';
/* That's all, stop editing! */
require_once ABSPATH . 'wp-settings.php';
`

type fixture struct {
	svc   *snapshots.Service
	cache *cache.Dir
	log   *callLog
	repo  *fakeRepo
	ids   *testutil.StubIDGenerator
	tools snapshots.Tools
}

func newFixture(t *testing.T, tools snapshots.Tools) *fixture {
	t.Helper()
	log := &callLog{}
	repo := newFakeRepo(log, "acme")
	resolver := &fakeResolver{
		repos: map[string]*fakeRepo{"acme": repo, "other": newFakeRepo(log, "other")},
		def:   "acme",
	}
	c := cache.New(t.TempDir())
	ids := testutil.NewStubIDGenerator()
	svc := snapshots.NewService(resolver, c, tools, nil, testutil.FixedClock(), ids)
	return &fixture{svc: svc, cache: c, log: log, repo: repo, ids: ids, tools: tools}
}

// openSiteDB creates a SQLite file with a single site under prefix.
func openSiteDB(t *testing.T, prefix, home string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()
	if prefix != "" {
		testutil.CreateSiteTables(t, db, prefix)
		testutil.SetOption(t, db, prefix, "home", home)
		testutil.SetOption(t, db, prefix, "siteurl", home)
		testutil.SetOption(t, db, prefix, "blogname", "Acme")
	}
	return path
}

func sqliteLoader(path string) *wordpress.Loader {
	return wordpress.NewLoader(func(wordpress.DBParams) (*sql.DB, sqldb.Dialect, error) {
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(1)
		return db, sqldb.SQLite{}, nil
	})
}

// seedLocal writes a cached snapshot with the given artifacts.
func seedLocal(t *testing.T, c *cache.Dir, meta *snapshots.Meta, artifacts map[string][]byte) {
	t.Helper()
	if err := c.Prepare(meta.ID, false); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for name, data := range artifacts {
		if err := os.WriteFile(c.Path(meta.ID, name), data, 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if err := c.WriteMeta(meta.ID, data); err != nil {
		t.Fatalf("WriteMeta() error = %v", err)
	}
}

func localMeta(id string) *snapshots.Meta {
	return &snapshots.Meta{
		ID:          id,
		Project:     "acme",
		Repository:  "acme",
		ContainsDB:  true,
		Sites:       []snapshots.Site{{HomeURL: "https://acme.test", SiteURL: "https://acme.test"}},
		TablePrefix: "wp_",
	}
}

func TestService_Create_DatabaseOnly(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteWordPress(t, dir, siteConfig, "6.4.2")
	dbPath := openSiteDB(t, "wp_", "https://acme.test")

	dbTool := &fakeDBTool{dump: "-- tables\n"}
	scrubber := &fakeScrubber{}
	f := newFixture(t, snapshots.Tools{
		Bridge:   sqliteLoader(dbPath),
		DB:       dbTool,
		Archiver: archive.Tar{},
		Scrubber: scrubber,
	})

	snap, err := f.svc.Create(context.Background(), snapshots.CreateOptions{
		Path:       dir,
		Project:    "acme",
		IncludeDB:  true,
		ScrubLevel: 1,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snap.ID != "id-1" || snap.State != snapshots.LocalReady || snap.Remote {
		t.Errorf("snapshot = %+v, want local id-1", snap)
	}
	m := snap.Meta
	if !m.ContainsDB || m.ContainsFiles {
		t.Errorf("contains db=%v files=%v, want db only", m.ContainsDB, m.ContainsFiles)
	}
	if m.Repository != "acme" || m.Author.Email != "jane@example.com" {
		t.Errorf("repository/author = %q/%+v", m.Repository, m.Author)
	}
	if m.WPVersion != "6.4.2" || m.TablePrefix != "wp_" {
		t.Errorf("version/prefix = %q/%q", m.WPVersion, m.TablePrefix)
	}
	if len(m.Sites) != 1 || m.Sites[0].HomeURL != "https://acme.test" || m.Sites[0].Blogname != "Acme" {
		t.Errorf("sites = %+v", m.Sites)
	}
	if m.DBSize == 0 {
		t.Error("DBSize not recorded")
	}

	if !f.cache.Has("id-1", cache.DBFile) || !f.cache.Has("id-1", cache.MetaFile) {
		t.Error("expected data.sql.gz and meta.json in the cache")
	}
	for _, name := range []string{cache.FilesFile, cache.RawDBFile} {
		if f.cache.Has("id-1", name) {
			t.Errorf("unexpected %s in the cache", name)
		}
	}

	if len(dbTool.dumped) != 1 {
		t.Fatalf("Dump() calls = %d, want 1", len(dbTool.dumped))
	}
	for _, table := range dbTool.dumped[0] {
		if table == "wp_users" {
			t.Error("users table dumped unscrubbed")
		}
	}
	if len(scrubber.levels) != 1 || scrubber.levels[0] != 1 {
		t.Errorf("scrub levels = %v, want [1]", scrubber.levels)
	}

	raw := filepath.Join(t.TempDir(), "data.sql")
	if err := archive.DecompressFile(f.cache.Path("id-1", cache.DBFile), raw); err != nil {
		t.Fatalf("DecompressFile() error = %v", err)
	}
	data, _ := os.ReadFile(raw)
	if string(data) != "-- tables\n-- scrubbed users\n" {
		t.Errorf("dump = %q, want tables followed by scrubbed users", data)
	}
}

func TestService_Create_Validation(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, snapshots.Tools{})

	tests := []struct {
		name string
		opts snapshots.CreateOptions
		code string
	}{
		{"nothing included", snapshots.CreateOptions{Path: dir, Project: "acme"}, ""},
		{"bad project", snapshots.CreateOptions{Path: dir, Project: "a/b", IncludeDB: true}, ""},
		{"not installed", snapshots.CreateOptions{Path: dir, Project: "acme", IncludeDB: true}, errs.CodeNotInstalled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.opts)
			if !errs.Is(err, errs.Validation) {
				t.Fatalf("Create() error = %v, want validation", err)
			}
			if errs.CodeOf(err) != tt.code {
				t.Errorf("code = %q, want %q", errs.CodeOf(err), tt.code)
			}
		})
	}
	if ids, _ := f.cache.List(); len(ids) != 0 {
		t.Errorf("cache entries = %v, want none", ids)
	}
}

func TestService_Create_FailureCleansCache(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteWordPress(t, dir, siteConfig, "6.4.2")
	dbPath := openSiteDB(t, "wp_", "https://acme.test")

	f := newFixture(t, snapshots.Tools{
		Bridge:   sqliteLoader(dbPath),
		DB:       &fakeDBTool{},
		Archiver: failingArchiver{},
	})
	_, err := f.svc.Create(context.Background(), snapshots.CreateOptions{
		Path: dir, Project: "acme", IncludeDB: true, IncludeFiles: true,
	})
	if err == nil {
		t.Fatal("Create() expected error")
	}
	issued := f.ids.Issued()
	if len(issued) != 1 {
		t.Fatalf("issued IDs = %v, want one", issued)
	}
	if _, err := os.Stat(f.cache.Path(issued[0])); !os.IsNotExist(err) {
		t.Errorf("snapshot directory left behind: %v", err)
	}
}

type failingArchiver struct{}

func (failingArchiver) Create(context.Context, string, string, []string) error {
	return errors.New("tar failed")
}

func (failingArchiver) Extract(context.Context, string, string) error {
	return errors.New("tar failed")
}

func TestService_Push(t *testing.T) {
	t.Run("uploads then inserts", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		meta := localMeta("abc")
		seedLocal(t, f.cache, meta, map[string][]byte{cache.DBFile: []byte("db")})
		snap, err := f.svc.GetLocal("abc", "acme")
		if err != nil {
			t.Fatalf("GetLocal() error = %v", err)
		}

		if err := f.svc.Push(context.Background(), snap, nil); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
		if !snap.Remote || snap.State != snapshots.Remote || snap.Meta.Time != 1700000000 {
			t.Errorf("snapshot after push = %+v", snap)
		}
		want := []string{"db.get abc", "s3.put abc", "db.insert abc"}
		if got := f.log.list(); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("calls = %v, want %v", got, want)
		}
		if _, ok := f.repo.store.objects[objectKey("acme", "abc", cache.FilesFile)]; ok {
			t.Error("files.tar.gz uploaded for a database-only snapshot")
		}
		if _, ok := f.repo.store.objects[objectKey("acme", "abc", cache.DBFile)]; !ok {
			t.Error("data.sql.gz not uploaded")
		}
	})

	t.Run("already remote", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		snap := &snapshots.Snapshot{ID: "abc", Repository: "acme", Meta: localMeta("abc"), Remote: true}
		err := f.svc.Push(context.Background(), snap, nil)
		if !errs.Is(err, errs.Conflict) || errs.CodeOf(err) != errs.CodeAlreadyPushed {
			t.Fatalf("Push() error = %v, want already pushed", err)
		}
		if calls := f.log.list(); len(calls) != 0 {
			t.Errorf("calls = %v, want none", calls)
		}
	})

	t.Run("record already exists", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		f.repo.db.records["abc"] = localMeta("abc")
		snap := &snapshots.Snapshot{ID: "abc", Repository: "acme", Meta: localMeta("abc")}
		err := f.svc.Push(context.Background(), snap, nil)
		if errs.CodeOf(err) != errs.CodeAlreadyPushed {
			t.Fatalf("Push() error = %v, want already pushed", err)
		}
		for _, c := range f.log.list() {
			if strings.HasPrefix(c, "s3.") {
				t.Errorf("unexpected object store call %s", c)
			}
		}
	})
}

func TestService_Push_FailureOrdering(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fixture, cancel context.CancelFunc)
		wantKind    errs.Kind
		wantObjects bool
	}{
		{
			name: "insert fails after upload",
			setup: func(f *fixture, _ context.CancelFunc) {
				f.repo.db.insertErr = errs.New(errs.Connectivity, errs.CodeTransport, "timeout")
			},
			wantKind:    errs.PartialFailure,
			wantObjects: true,
		},
		{
			name: "upload fails",
			setup: func(f *fixture, _ context.CancelFunc) {
				f.repo.store.putErr = errs.New(errs.Connectivity, errs.CodeAuth, "denied")
			},
			wantKind: errs.Connectivity,
		},
		{
			name: "cancelled during upload",
			setup: func(f *fixture, cancel context.CancelFunc) {
				f.repo.store.onPut = cancel
			},
			wantKind:    errs.Connectivity,
			wantObjects: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, snapshots.Tools{})
			seedLocal(t, f.cache, localMeta("abc"), map[string][]byte{cache.DBFile: []byte("db")})
			snap, err := f.svc.GetLocal("abc", "acme")
			if err != nil {
				t.Fatalf("GetLocal() error = %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(f, cancel)

			err = f.svc.Push(ctx, snap, nil)
			if !errs.Is(err, tt.wantKind) {
				t.Fatalf("Push() error = %v, want %v", err, tt.wantKind)
			}
			if snap.Remote {
				t.Error("snapshot marked remote after failed push")
			}
			if _, ok := f.repo.db.records["abc"]; ok {
				t.Error("metadata record written")
			}
			if got := len(f.repo.store.objects) > 0; got != tt.wantObjects {
				t.Errorf("objects present = %v, want %v", got, tt.wantObjects)
			}
		})
	}
}

func TestService_Get_PrefersLocal(t *testing.T) {
	f := newFixture(t, snapshots.Tools{})
	meta := localMeta("abc")
	meta.Description = "cached"
	seedLocal(t, f.cache, meta, map[string][]byte{cache.DBFile: []byte("db")})

	remote := localMeta("abc")
	remote.Description = "remote"
	f.repo.db.records["abc"] = remote

	snap, err := f.svc.Get(context.Background(), "abc", "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Meta.Description != "cached" || snap.Remote {
		t.Errorf("Get() = %+v, want the cached snapshot", snap)
	}
	if f.repo.remoteCalls != 0 || len(f.log.list()) != 0 {
		t.Errorf("remote calls = %d %v, want none", f.repo.remoteCalls, f.log.list())
	}
}

func TestService_Get_FallsBackToRemote(t *testing.T) {
	f := newFixture(t, snapshots.Tools{})
	f.repo.db.records["abc"] = localMeta("abc")

	snap, err := f.svc.Get(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !snap.Remote {
		t.Error("remote snapshot not marked remote")
	}
}

func TestService_GetLocal(t *testing.T) {
	t.Run("other repository is not found", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		seedLocal(t, f.cache, localMeta("abc"), nil)
		if _, err := f.svc.GetLocal("abc", "other"); !errs.Is(err, errs.NotFound) {
			t.Errorf("GetLocal() error = %v, want not found", err)
		}
	})

	t.Run("infers contents of legacy meta", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		if err := f.cache.Prepare("old", false); err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if err := os.WriteFile(f.cache.Path("old", cache.FilesFile), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if err := f.cache.WriteMeta("old", []byte(`{"project":"acme","sites":[]}`)); err != nil {
			t.Fatalf("WriteMeta() error = %v", err)
		}

		snap, err := f.svc.GetLocal("old", "")
		if err != nil {
			t.Fatalf("GetLocal() error = %v", err)
		}
		if !snap.Meta.ContainsFiles || snap.Meta.ContainsDB {
			t.Errorf("contains files=%v db=%v, want files only", snap.Meta.ContainsFiles, snap.Meta.ContainsDB)
		}
		if snap.Repository != "acme" {
			t.Errorf("Repository = %q, want default acme", snap.Repository)
		}
	})

	t.Run("rejects meta with neither artifact", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		if err := f.cache.Prepare("empty", false); err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if err := f.cache.WriteMeta("empty", []byte(`{"project":"acme","repository":"acme","contains_db":false,"contains_files":false}`)); err != nil {
			t.Fatalf("WriteMeta() error = %v", err)
		}
		if _, err := f.svc.GetLocal("empty", "acme"); !errs.Is(err, errs.Validation) {
			t.Errorf("GetLocal() error = %v, want validation", err)
		}
	})
}

func TestService_Search(t *testing.T) {
	f := newFixture(t, snapshots.Tools{})
	for i, id := range []string{"one", "two", "three"} {
		m := localMeta(id)
		m.Time = int64(100 + i)
		f.repo.db.records[id] = m
	}

	got, err := f.svc.Search(context.Background(), "acme", "*")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(Search()) = %d, want 3", len(got))
	}
	if got[0].ID != "three" || got[2].ID != "one" {
		t.Errorf("order = %s,%s,%s, want newest first", got[0].ID, got[1].ID, got[2].ID)
	}

	if _, err := f.svc.Search(context.Background(), "acme", " "); !errs.Is(err, errs.Validation) {
		t.Errorf("Search(empty) error = %v, want validation", err)
	}
}

func TestService_Delete(t *testing.T) {
	t.Run("missing record makes no object store call", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		err := f.svc.Delete(context.Background(), "missing", "acme")
		if !errs.Is(err, errs.NotFound) {
			t.Fatalf("Delete() error = %v, want not found", err)
		}
		for _, c := range f.log.list() {
			if strings.HasPrefix(c, "s3.") {
				t.Errorf("unexpected object store call %s", c)
			}
		}
	})

	t.Run("deletes objects then record", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		f.repo.db.records["abc"] = localMeta("abc")
		f.repo.store.objects[objectKey("acme", "abc", cache.DBFile)] = []byte("db")

		if err := f.svc.Delete(context.Background(), "abc", "acme"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		want := "db.get abc,s3.delete abc,db.delete abc"
		if got := strings.Join(f.log.list(), ","); got != want {
			t.Errorf("calls = %s, want %s", got, want)
		}
		if len(f.repo.store.objects) != 0 || len(f.repo.db.records) != 0 {
			t.Error("snapshot not fully deleted")
		}
	})
}

func TestService_Download(t *testing.T) {
	remoteMeta := func() *snapshots.Meta {
		m := localMeta("abc")
		m.Repository = ""
		m.ContainsFiles = true
		return m
	}

	t.Run("fetches both artifacts", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		f.repo.db.records["abc"] = remoteMeta()
		f.repo.store.objects[objectKey("acme", "abc", cache.DBFile)] = []byte("db")
		f.repo.store.objects[objectKey("acme", "abc", cache.FilesFile)] = []byte("files")

		snap, err := f.svc.Download(context.Background(), "abc", snapshots.DownloadOptions{Repository: "acme"})
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if snap.Repository != "acme" || !snap.Remote {
			t.Errorf("snapshot = %+v, want remote with backfilled repository", snap)
		}
		local, err := f.svc.GetLocal("abc", "acme")
		if err != nil {
			t.Fatalf("GetLocal() error = %v", err)
		}
		if !local.Meta.ContainsDB || !local.Meta.ContainsFiles {
			t.Errorf("cached meta = %+v", local.Meta)
		}

		_, err = f.svc.Download(context.Background(), "abc", snapshots.DownloadOptions{Repository: "acme"})
		if !errs.Is(err, errs.Conflict) {
			t.Errorf("second Download() error = %v, want conflict", err)
		}
	})

	t.Run("skip files", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		f.repo.db.records["abc"] = remoteMeta()
		f.repo.store.objects[objectKey("acme", "abc", cache.DBFile)] = []byte("db")

		if _, err := f.svc.Download(context.Background(), "abc", snapshots.DownloadOptions{SkipFiles: true}); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		for _, c := range f.log.list() {
			if c == "s3.get "+cache.FilesFile {
				t.Error("files.tar.gz requested despite SkipFiles")
			}
		}
		local, err := f.svc.GetLocal("abc", "acme")
		if err != nil {
			t.Fatalf("GetLocal() error = %v", err)
		}
		if local.Meta.ContainsFiles {
			t.Error("cached meta claims files that were not downloaded")
		}
	})

	t.Run("partial failure", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		f.repo.db.records["abc"] = remoteMeta()
		f.repo.store.objects[objectKey("acme", "abc", cache.DBFile)] = []byte("db")
		f.repo.store.downloadErr = map[string]error{cache.FilesFile: errs.New(errs.Connectivity, errs.CodeTransport, "reset")}

		_, err := f.svc.Download(context.Background(), "abc", snapshots.DownloadOptions{})
		if !errs.Is(err, errs.PartialFailure) {
			t.Fatalf("Download() error = %v, want partial failure", err)
		}
		if !strings.Contains(err.Error(), cache.FilesFile) {
			t.Errorf("error %q does not name the failed artifact", err)
		}
		if f.cache.Has("abc", cache.MetaFile) {
			t.Error("meta.json written after a partial download")
		}
		if !f.cache.Has("abc", cache.DBFile) {
			t.Error("successful artifact removed")
		}
	})

	t.Run("missing project", func(t *testing.T) {
		f := newFixture(t, snapshots.Tools{})
		m := remoteMeta()
		m.Project = ""
		f.repo.db.records["abc"] = m
		if _, err := f.svc.Download(context.Background(), "abc", snapshots.DownloadOptions{}); !errs.Is(err, errs.Validation) {
			t.Errorf("Download() error = %v, want validation", err)
		}
	})
}

func TestService_CreateRepository_AlreadyExists(t *testing.T) {
	f := newFixture(t, snapshots.Tools{})
	f.repo.store.bucketErr = errs.Conflictf(errs.CodeAlreadyExists, "bucket exists")

	res, err := f.svc.CreateRepository(context.Background(), "acme")
	if err != nil {
		t.Fatalf("CreateRepository() error = %v", err)
	}
	if !res.BucketExisted || res.TableExisted {
		t.Errorf("result = %+v", res)
	}
	if got := strings.Join(f.log.list(), ","); got != "s3.create,db.create" {
		t.Errorf("calls = %s", got)
	}
}

func TestService_ListAndDeleteLocal(t *testing.T) {
	f := newFixture(t, snapshots.Tools{})
	seedLocal(t, f.cache, localMeta("abc"), nil)
	seedLocal(t, f.cache, localMeta("def"), nil)

	list, err := f.svc.ListLocal()
	if err != nil {
		t.Fatalf("ListLocal() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListLocal()) = %d, want 2", len(list))
	}

	if err := f.svc.DeleteLocal("abc"); err != nil {
		t.Fatalf("DeleteLocal() error = %v", err)
	}
	if err := f.svc.DeleteLocal("abc"); !errs.Is(err, errs.NotFound) {
		t.Errorf("second DeleteLocal() error = %v, want not found", err)
	}
}
