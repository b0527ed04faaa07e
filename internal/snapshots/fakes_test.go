package snapshots_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/snapshots"
	"wpsnapshots/internal/wordpress"
)

// callLog records store calls across fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeMetaStore struct {
	log       *callLog
	records   map[string]*snapshots.Meta
	insertErr error
	now       int64
}

func (f *fakeMetaStore) Search(ctx context.Context, query string) ([]*snapshots.Meta, error) {
	f.log.add("db.search %s", query)
	var out []*snapshots.Meta
	for _, m := range f.records {
		if query == "*" || m.ID == query || m.Project == query {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (f *fakeMetaStore) Insert(ctx context.Context, meta *snapshots.Meta) (*snapshots.Meta, error) {
	f.log.add("db.insert %s", meta.ID)
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	m := meta.Clone()
	m.Time = f.now
	f.records[m.ID] = m
	return m.Clone(), nil
}

func (f *fakeMetaStore) Get(ctx context.Context, id string) (*snapshots.Meta, error) {
	f.log.add("db.get %s", id)
	m, ok := f.records[id]
	if !ok {
		return nil, errs.NotFoundf("snapshot %s not found", id)
	}
	return m.Clone(), nil
}

func (f *fakeMetaStore) Delete(ctx context.Context, id string) error {
	f.log.add("db.delete %s", id)
	delete(f.records, id)
	return nil
}

func (f *fakeMetaStore) CreateTables(ctx context.Context) error {
	f.log.add("db.create")
	return nil
}

type fakeObjectStore struct {
	log         *callLog
	mu          sync.Mutex
	objects     map[string][]byte
	putErr      error
	onPut       func()
	downloadErr map[string]error
	bucketErr   error
}

func objectKey(project, id, name string) string {
	return project + "/" + id + "/" + name
}

func (f *fakeObjectStore) PutSnapshot(ctx context.Context, meta *snapshots.Meta, dir string, progress snapshots.ProgressFunc) error {
	f.log.add("s3.put %s", meta.ID)
	if f.onPut != nil {
		f.onPut()
	}
	if f.putErr != nil {
		return f.putErr
	}
	var names []string
	if meta.ContainsDB {
		names = append(names, cache.DBFile)
	}
	if meta.ContainsFiles {
		names = append(names, cache.FilesFile)
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return errs.New(errs.Validation, errs.CodeMissingArtifact, "missing %s", name)
		}
		f.mu.Lock()
		f.objects[objectKey(meta.Project, meta.ID, name)] = data
		f.mu.Unlock()
		if progress != nil {
			progress(name, int64(len(data)), int64(len(data)))
		}
	}
	return nil
}

func (f *fakeObjectStore) DownloadArtifact(ctx context.Context, meta *snapshots.Meta, name, dest string) error {
	f.log.add("s3.get %s", name)
	if err := f.downloadErr[name]; err != nil {
		return err
	}
	f.mu.Lock()
	data, ok := f.objects[objectKey(meta.Project, meta.ID, name)]
	f.mu.Unlock()
	if !ok {
		return errs.NotFoundf("no object %s", name)
	}
	return os.WriteFile(dest, data, 0644)
}

func (f *fakeObjectStore) DeleteSnapshot(ctx context.Context, id, project string) error {
	f.log.add("s3.delete %s", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range []string{cache.DBFile, cache.FilesFile} {
		delete(f.objects, objectKey(project, id, name))
	}
	return nil
}

func (f *fakeObjectStore) CreateBucket(ctx context.Context) error {
	f.log.add("s3.create")
	return f.bucketErr
}

func (f *fakeObjectStore) Test(ctx context.Context) error {
	f.log.add("s3.test")
	return nil
}

type fakeRepo struct {
	name  string
	db    *fakeMetaStore
	store *fakeObjectStore
	// remoteCalls counts DB() and S3() lookups.
	remoteCalls int
}

func (r *fakeRepo) Name() string { return r.name }

func (r *fakeRepo) DB() (snapshots.MetaStore, error) {
	r.remoteCalls++
	return r.db, nil
}

func (r *fakeRepo) S3() (snapshots.ObjectStore, error) {
	r.remoteCalls++
	return r.store, nil
}

type fakeResolver struct {
	repos map[string]*fakeRepo
	def   string
}

func (f *fakeResolver) Resolve(name string) (snapshots.Repository, error) {
	if name == "" {
		name = f.def
	}
	r, ok := f.repos[name]
	if !ok {
		return nil, errs.NotFoundf("repository %s is not configured", name)
	}
	return r, nil
}

func (f *fakeResolver) Author() snapshots.Author {
	return snapshots.Author{Name: "Jane Doe", Email: "jane@example.com"}
}

func newFakeRepo(log *callLog, name string) *fakeRepo {
	return &fakeRepo{
		name:  name,
		db:    &fakeMetaStore{log: log, records: map[string]*snapshots.Meta{}, now: 1700000000},
		store: &fakeObjectStore{log: log, objects: map[string][]byte{}},
	}
}

// fakeDBTool writes a fixed dump and runs imports against a SQLite file.
type fakeDBTool struct {
	dump    string
	dumped  [][]string
	imports int
	// exec runs an imported file; nil only counts.
	exec func(ctx context.Context, sql string) error
}

func (f *fakeDBTool) Dump(ctx context.Context, conn wordpress.DBParams, tables []string, dest string) error {
	f.dumped = append(f.dumped, tables)
	return os.WriteFile(dest, []byte(f.dump), 0644)
}

func (f *fakeDBTool) Import(ctx context.Context, conn wordpress.DBParams, src string) error {
	f.imports++
	if f.exec == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return f.exec(ctx, string(data))
}

type fakeScrubber struct {
	levels []int
}

func (f *fakeScrubber) DumpUsers(ctx context.Context, inst *wordpress.Install, level int, dest string) error {
	f.levels = append(f.levels, level)
	return os.WriteFile(dest, []byte("-- scrubbed users\n"), 0644)
}

type fakeCore struct {
	versions []string
}

func (f *fakeCore) Download(ctx context.Context, version, dest string) error {
	f.versions = append(f.versions, version)
	return nil
}

// scriptedPrompter answers Confirm with confirms and Ask with answers, in
// order. An exhausted script returns the default.
type scriptedPrompter struct {
	confirms  []bool
	answers   []string
	questions []string
}

func (p *scriptedPrompter) Confirm(question string, defaultYes bool) (bool, error) {
	p.questions = append(p.questions, question)
	if len(p.confirms) == 0 {
		return defaultYes, nil
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

func (p *scriptedPrompter) Ask(question, def string, validate func(string) error) (string, error) {
	p.questions = append(p.questions, question)
	v := def
	if len(p.answers) > 0 {
		v = p.answers[0]
		p.answers = p.answers[1:]
	}
	if v == "" {
		v = def
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return "", err
		}
	}
	return v, nil
}
