package snapshots

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"wpsnapshots/internal/archive"
	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/fs"
	"wpsnapshots/internal/searchreplace"
	"wpsnapshots/internal/sitemap"
	"wpsnapshots/internal/wordpress"
)

// DefaultSkipTables are left out of single-site search-replace.
var DefaultSkipTables = []string{"terms", "term_relationships", "term_taxonomy"}

// Source selects the copy Pull uses when a snapshot is cached.
type Source int

const (
	// SourceAsk uses the cached copy unless the operator asks for a fresh
	// download.
	SourceAsk Source = iota
	SourceLocal
	SourceRemote
)

// PullOptions configures Pull.
type PullOptions struct {
	ID         string
	Repository string
	Path       string
	// Overrides replace DB_* constants of wp-config.php.
	Overrides map[string]string
	Source    Source
	SkipDB    bool
	SkipFiles bool

	Mapping    *sitemap.Mapping
	MainDomain string
	HomeURL    string
	SiteURL    string
	// SkipTables replaces DefaultSkipTables for single-site installs.
	SkipTables []string

	Confirm              bool
	ConfirmCoreDownload  bool
	ConfirmConfigCreate  bool
	ConfirmVersionChange bool
	ConfirmConfigUpdate  bool
}

// Replacement is one search-replace pass.
type Replacement struct {
	BlogID int64
	From   string
	To     string
	Rows   int
}

// PullResult reports where the pulled site can be reached.
type PullResult struct {
	Snapshot      *Snapshot
	URL           string
	AdminLogin    string
	AdminPassword string
	Replacements  []Replacement
}

// Pull applies a snapshot to the install at opts.Path, replacing its
// database and content directory.
//
// Every check and question happens before the first write. A failure after
// the import has started leaves the target partially updated.
func (s *Service) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	snap, err := s.pullSource(ctx, opts)
	if err != nil {
		return nil, err
	}
	meta := snap.Meta

	pullDB := meta.ContainsDB && !opts.SkipDB
	pullFiles := meta.ContainsFiles && !opts.SkipFiles
	if !pullDB && !pullFiles {
		return nil, errs.Validationf("nothing to pull: snapshot %s has none of the requested artifacts", snap.ID)
	}
	var dbArchive, filesArchive string
	if pullDB {
		if dbArchive, err = s.artifactPath(snap.ID, cache.DBFile); err != nil {
			return nil, err
		}
	}
	if pullFiles {
		if filesArchive, err = s.artifactPath(snap.ID, cache.FilesFile); err != nil {
			return nil, err
		}
	}

	if err := s.ensureCore(ctx, opts, meta); err != nil {
		return nil, err
	}
	if err := s.ensureConfig(opts, meta); err != nil {
		return nil, err
	}

	inst, err := s.tools.Bridge.Load(ctx, opts.Path, opts.Overrides)
	if err != nil {
		return nil, err
	}
	defer inst.Close()

	var plan *urlPlan
	if pullDB && len(meta.Sites) > 0 {
		if plan, err = s.planURLs(ctx, inst, meta, opts); err != nil {
			return nil, err
		}
	}

	ok, err := s.offer(opts.Confirm,
		"Are you sure you want to do this? This is a potentially destructive operation. You should run a back up first.", false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.Validation, errs.CodeCancelled, "pull cancelled; pass --confirm to run without a prompt")
	}

	result := &PullResult{Snapshot: snap}

	if pullDB {
		if err := s.importDB(ctx, inst, snap.ID, meta, dbArchive); err != nil {
			return nil, err
		}
		if err := s.matchCoreVersion(ctx, inst, meta, opts); err != nil {
			return nil, err
		}
		if plan != nil {
			if result.Replacements, err = s.replaceURLs(ctx, inst, meta, plan, opts); err != nil {
				return nil, err
			}
		}
	}

	if pullFiles {
		s.logger.Info("replacing content directory", "dir", inst.ContentDir)
		if err := fs.ClearDir(inst.ContentDir); err != nil {
			return nil, fmt.Errorf("clearing content directory: %w", err)
		}
		if err := s.tools.Archiver.Extract(ctx, filesArchive, inst.ContentDir); err != nil {
			return nil, fmt.Errorf("extracting files: %w", err)
		}
	}

	if pullDB {
		if err := inst.EnsureAdmin(ctx, s.clock.Now()); err != nil {
			return nil, err
		}
		result.AdminLogin = wordpress.AdminLogin
		result.AdminPassword = wordpress.AdminPassword
	}

	result.URL = plan.mainURL(meta)
	s.logger.Info("pull finished", "id", snap.ID, "url", result.URL)
	return result, nil
}

// pullSource picks the cached copy or downloads the snapshot. A remote copy
// never replaces a cached one without an explicit choice.
func (s *Service) pullSource(ctx context.Context, opts PullOptions) (*Snapshot, error) {
	local, err := s.GetLocal(opts.ID, opts.Repository)
	if err != nil && !errs.Is(err, errs.NotFound) {
		return nil, err
	}
	download := DownloadOptions{Repository: opts.Repository, SkipDB: opts.SkipDB, SkipFiles: opts.SkipFiles}

	if local != nil {
		useLocal := opts.Source != SourceRemote
		if opts.Source == SourceAsk && s.tools.Prompter != nil {
			if useLocal, err = s.tools.Prompter.Confirm(
				fmt.Sprintf("Snapshot %s is in the local cache. Use the cached copy? Answering no downloads it again.", opts.ID), true); err != nil {
				return nil, err
			}
		}
		if useLocal {
			s.logger.Info("using cached snapshot", "id", opts.ID)
			return local, nil
		}
		download.Force = true
	} else if opts.Source == SourceLocal {
		return nil, err
	}

	return s.Download(ctx, opts.ID, download)
}

// ensureCore offers to download WordPress into a path that has none.
func (s *Service) ensureCore(ctx context.Context, opts PullOptions, meta *Meta) error {
	if wordpress.IsInstalled(opts.Path) {
		return nil
	}
	if meta.WPVersion == "" {
		return errs.New(errs.Validation, errs.CodeNotInstalled, "%s is not a WordPress install", opts.Path)
	}
	ok, err := s.offer(opts.ConfirmCoreDownload,
		fmt.Sprintf("This is not a WordPress install. Download WordPress %s into %s?", meta.WPVersion, opts.Path), true)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Validation, errs.CodeNotInstalled, "%s is not a WordPress install", opts.Path)
	}
	s.logger.Info("downloading WordPress", "version", meta.WPVersion, "path", opts.Path)
	if err := s.tools.Core.Download(ctx, meta.WPVersion, opts.Path); err != nil {
		return fmt.Errorf("downloading WordPress: %w", err)
	}
	return nil
}

// ensureConfig offers to write a wp-config.php when none exists.
func (s *Service) ensureConfig(opts PullOptions, meta *Meta) error {
	if _, ok := wordpress.FindConfig(opts.Path); ok {
		return nil
	}
	ok, err := s.offer(opts.ConfirmConfigCreate, "No wp-config.php found. Create one?", true)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Validationf("no %s found for %s", wordpress.ConfigFileName, opts.Path)
	}

	p := wordpress.DBParams{
		Host:     opts.Overrides["DB_HOST"],
		Name:     opts.Overrides["DB_NAME"],
		User:     opts.Overrides["DB_USER"],
		Password: opts.Overrides["DB_PASSWORD"],
		Charset:  opts.Overrides["DB_CHARSET"],
	}
	required := func(v string) error {
		if v == "" {
			return fmt.Errorf("a value is required")
		}
		return nil
	}
	if p.Host == "" {
		if p.Host, err = s.ask("What is your database host? ", "localhost", required); err != nil {
			return err
		}
	}
	if p.Name == "" {
		if p.Name, err = s.ask("What is your database name? ", "wordpress", required); err != nil {
			return err
		}
	}
	if p.User == "" {
		if p.User, err = s.ask("What is your database user? ", "root", required); err != nil {
			return err
		}
	}
	if _, set := opts.Overrides["DB_PASSWORD"]; !set {
		if p.Password, err = s.ask("What is your database password? ", "", nil); err != nil {
			return err
		}
	}

	prefix := meta.TablePrefix
	if prefix == "" {
		prefix = wordpress.DefaultTablePrefix
	}
	data, err := wordpress.GenerateConfig(p, prefix)
	if err != nil {
		return err
	}
	path := filepath.Join(opts.Path, wordpress.ConfigFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", wordpress.ConfigFileName, err)
	}
	s.logger.Info("wp-config.php created", "path", path)
	return nil
}

// importDB loads the snapshot dump and moves its tables to the target's
// prefix.
func (s *Service) importDB(ctx context.Context, inst *wordpress.Install, id string, meta *Meta, src string) error {
	raw := s.cache.Path(id, cache.RawDBFile)
	defer s.cache.RemoveFile(id, cache.RawDBFile)
	if err := archive.DecompressFile(src, raw); err != nil {
		return fmt.Errorf("decompressing database: %w", err)
	}

	if err := inst.RaisePacketLimit(ctx); err != nil {
		s.logger.Warn("could not raise max_allowed_packet", "error", err)
	}

	s.logger.Info("importing database", "id", id)
	if err := s.tools.DB.Import(ctx, inst.Params, raw); err != nil {
		return fmt.Errorf("importing database: %w", err)
	}

	if meta.TablePrefix != "" && meta.TablePrefix != inst.TablePrefix {
		s.logger.Info("renaming tables", "from", meta.TablePrefix, "to", inst.TablePrefix)
		if err := inst.RenamePrefix(ctx, meta.TablePrefix); err != nil {
			return err
		}
	}
	return nil
}

// matchCoreVersion offers to replace core files when the snapshot was
// taken on another WordPress version.
func (s *Service) matchCoreVersion(ctx context.Context, inst *wordpress.Install, meta *Meta, opts PullOptions) error {
	if meta.WPVersion == "" || inst.Version == "" || meta.WPVersion == inst.Version {
		return nil
	}
	ok, err := s.offer(opts.ConfirmVersionChange,
		fmt.Sprintf("This snapshot is running WordPress version %s, and you are running %s. Do you want to change your WordPress version to %s?",
			meta.WPVersion, inst.Version, meta.WPVersion), false)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("WordPress version differs from the snapshot", "snapshot", meta.WPVersion, "installed", inst.Version)
		return nil
	}

	if err := wordpress.RemoveCore(inst.Path); err != nil {
		return fmt.Errorf("removing WordPress core: %w", err)
	}
	if err := s.tools.Core.Download(ctx, meta.WPVersion, inst.Path); err != nil {
		return fmt.Errorf("downloading WordPress: %w", err)
	}
	inst.Version = meta.WPVersion
	return nil
}

func (s *Service) replaceURLs(ctx context.Context, inst *wordpress.Install, meta *Meta, plan *urlPlan, opts PullOptions) ([]Replacement, error) {
	tables, err := inst.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	engine := searchreplace.NewEngine(inst.DB, inst.Dialect, s.logger)

	var done []Replacement
	run := func(blogID int64, subset []string, from, to string) error {
		report, err := engine.Run(ctx, subset, from, to)
		if err != nil {
			return err
		}
		if report.Guarded > 0 {
			s.logger.Warn("serialized values left unchanged", "from", from, "count", report.Guarded)
		}
		s.logger.Debug("search-replace", "from", from, "to", to, "tables", report.Tables, "rows", report.RowsUpdated)
		done = append(done, Replacement{BlogID: blogID, From: from, To: to, Rows: report.RowsUpdated})
		return nil
	}

	if !meta.Multisite {
		skip := opts.SkipTables
		if skip == nil {
			skip = DefaultSkipTables
		}
		subset := wordpress.ExcludeTables(tables, inst.TablePrefix, skip)
		sp := plan.Sites[0]
		if err := run(0, subset, sp.Site.HomeURL, sp.HomeURL); err != nil {
			return nil, err
		}
		if sp.Site.SiteURL != sp.Site.HomeURL {
			if err := run(0, subset, sp.Site.SiteURL, sp.SiteURL); err != nil {
				return nil, err
			}
		}
		return done, nil
	}

	for _, sp := range plan.Sites {
		if err := inst.UpdateBlog(ctx, sp.Site.BlogID, sp.Domain, sp.Path); err != nil {
			return nil, err
		}
		subset := wordpress.BlogTables(tables, inst.TablePrefix, sp.Site.BlogID)
		if len(subset) == 0 {
			continue
		}
		if err := run(sp.Site.BlogID, subset, sp.Site.HomeURL, sp.HomeURL); err != nil {
			return nil, err
		}
		if sp.Site.SiteURL != sp.Site.HomeURL {
			if err := run(sp.Site.BlogID, subset, sp.Site.SiteURL, sp.SiteURL); err != nil {
				return nil, err
			}
		}
	}
	if err := inst.UpdateNetworkDomain(ctx, plan.MainDomain); err != nil {
		return nil, err
	}
	if err := s.reconcileNetworkConfig(inst, meta, plan, opts); err != nil {
		return nil, err
	}
	return done, nil
}

// reconcileNetworkConfig rewrites the network constants of wp-config.php
// to match the pulled topology, after showing the diff.
func (s *Service) reconcileNetworkConfig(inst *wordpress.Install, meta *Meta, plan *urlPlan, opts PullOptions) error {
	pathCurrent := firstNonEmpty(meta.PathCurrentSite, "/")
	siteID, blogID := meta.SiteIDCurrentSite, meta.BlogIDCurrentSite
	if siteID == 0 {
		siteID = 1
	}
	if blogID == 0 {
		blogID = 1
	}

	cfg := inst.Config
	updated := cfg
	set := func(name string, want any, matches bool) {
		if !cfg.Has(name) || !matches {
			updated = updated.Set(name, want)
		}
	}
	set("MULTISITE", true, cfg.Bool("MULTISITE"))
	set("SUBDOMAIN_INSTALL", meta.SubdomainInstall, cfg.Bool("SUBDOMAIN_INSTALL") == meta.SubdomainInstall)
	set("DOMAIN_CURRENT_SITE", plan.MainDomain, cfg.String("DOMAIN_CURRENT_SITE") == plan.MainDomain)
	set("PATH_CURRENT_SITE", pathCurrent, cfg.String("PATH_CURRENT_SITE") == pathCurrent)
	set("SITE_ID_CURRENT_SITE", siteID, cfg.Int("SITE_ID_CURRENT_SITE") == siteID)
	set("BLOG_ID_CURRENT_SITE", blogID, cfg.Int("BLOG_ID_CURRENT_SITE") == blogID)
	if updated == cfg {
		return nil
	}

	diff := wordpress.Diff(inst.ConfigPath, cfg.Bytes(), updated.Bytes())
	ok, err := s.offer(opts.ConfirmConfigUpdate,
		"The network constants in wp-config.php do not match the snapshot:\n"+diff+"Update wp-config.php?", true)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("wp-config.php network constants left unchanged", "path", inst.ConfigPath)
		return nil
	}
	if err := os.WriteFile(inst.ConfigPath, updated.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", wordpress.ConfigFileName, err)
	}
	inst.Config = updated
	s.logger.Info("wp-config.php network constants updated", "path", inst.ConfigPath)
	return nil
}

// offer asks a yes/no question unless pre already answered it. Without a
// prompter an unanswered question is declined.
func (s *Service) offer(pre bool, question string, defaultYes bool) (bool, error) {
	if pre {
		return true, nil
	}
	if s.tools.Prompter == nil {
		s.logger.Debug("declining unanswered question", "question", question)
		return false, nil
	}
	return s.tools.Prompter.Confirm(question, defaultYes)
}

// ask prompts for a value. Without a prompter the default is used when it
// validates.
func (s *Service) ask(question, def string, validate func(string) error) (string, error) {
	if s.tools.Prompter != nil {
		return s.tools.Prompter.Ask(question, def, validate)
	}
	if validate != nil {
		if err := validate(def); err != nil {
			return "", errs.Validationf("%s no answer given and the default is not usable: %v", question, err)
		}
	}
	return def, nil
}
