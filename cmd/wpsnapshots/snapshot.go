package main

import (
	"fmt"
	"os"
	"strings"

	"wpsnapshots/internal/app"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/progress"
	"wpsnapshots/internal/scrub"
	"wpsnapshots/internal/sitemap"
	"wpsnapshots/internal/snapshots"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of a WordPress install in the local cache",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		path, opts, err := createOptions(cmd, a)
		if err != nil {
			return err
		}
		snap, err := a.Create(cmd.Context(), path, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s created.\n", snap.ID)
		return nil
	}),
}

var pushCmd = &cobra.Command{
	Use:   "push [ID]",
	Short: "Push a cached snapshot, or create and push one when no ID is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		report := progress.Printer(cmd.OutOrStdout())

		var snap *snapshots.Snapshot
		var err error
		if len(args) == 1 {
			repo, _ := cmd.Flags().GetString("repository")
			snap, err = a.Push(cmd.Context(), args[0], repo, report)
		} else {
			path, opts, optErr := createOptions(cmd, a)
			if optErr != nil {
				return optErr
			}
			snap, err = a.CreateAndPush(cmd.Context(), path, opts, report)
		}
		if err != nil {
			if snap != nil && errs.KindOf(err) != errs.Conflict {
				fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot %s is still in the local cache.\n", snap.ID)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s pushed to %s.\n", snap.ID, snap.Repository)
		return nil
	}),
}

// createOptions reads the create flags, asking for the project when it
// is not set.
func createOptions(cmd *cobra.Command, a *app.App) (string, snapshots.CreateOptions, error) {
	f := cmd.Flags()
	path, _ := f.GetString("path")
	opts := snapshots.CreateOptions{Overrides: dbOverrides(cmd)}
	opts.Repository, _ = f.GetString("repository")
	opts.Project, _ = f.GetString("project")
	opts.Description, _ = f.GetString("description")
	opts.Excludes, _ = f.GetStringSlice("exclude")
	opts.ExcludeUploads, _ = f.GetBool("exclude-uploads")
	opts.ScrubLevel, _ = f.GetInt("scrub")
	noDB, _ := f.GetBool("exclude-db")
	noFiles, _ := f.GetBool("exclude-files")
	opts.IncludeDB = !noDB
	opts.IncludeFiles = !noFiles

	if opts.Project == "" {
		if !a.Interactive() {
			return "", opts, errs.Validationf("--project is required")
		}
		p, err := a.Prompter().Ask("Project slug (letters, numbers, _ and -): ", "", requiredValue)
		if err != nil {
			return "", opts, err
		}
		opts.Project = p
	}
	if opts.Description == "" && a.Interactive() {
		d, err := a.Prompter().Ask("Snapshot description (e.g. local environment): ", "", nil)
		if err != nil {
			return "", opts, err
		}
		opts.Description = d
	}
	return path, opts, nil
}

func requiredValue(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("a value is required")
	}
	return nil
}

var pullCmd = &cobra.Command{
	Use:   "pull ID",
	Short: "Pull a snapshot into a WordPress install, replacing its database and content",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		f := cmd.Flags()
		path, _ := f.GetString("path")
		opts := snapshots.PullOptions{ID: args[0], Overrides: dbOverrides(cmd)}
		opts.Repository, _ = f.GetString("repository")
		opts.SkipDB, _ = f.GetBool("exclude-db")
		opts.SkipFiles, _ = f.GetBool("exclude-files")
		opts.MainDomain, _ = f.GetString("main-domain")
		opts.HomeURL, _ = f.GetString("home-url")
		opts.SiteURL, _ = f.GetString("site-url")
		skip, err := skipTables(cmd)
		if err != nil {
			return err
		}
		opts.SkipTables = skip
		opts.Confirm, _ = f.GetBool("confirm")
		opts.ConfirmCoreDownload, _ = f.GetBool("confirm-wp-download")
		opts.ConfirmConfigCreate, _ = f.GetBool("confirm-config-create")
		opts.ConfirmVersionChange, _ = f.GetBool("confirm-wp-version-change")
		opts.ConfirmConfigUpdate, _ = f.GetBool("confirm-ms-constant-update")

		useLocal, _ := f.GetBool("local")
		useRemote, _ := f.GetBool("remote")
		switch {
		case useLocal && useRemote:
			return errs.Validationf("--local and --remote cannot be combined")
		case useLocal:
			opts.Source = snapshots.SourceLocal
		case useRemote:
			opts.Source = snapshots.SourceRemote
		}

		if file, _ := f.GetString("site-mapping"); file != "" {
			m, err := sitemap.Load(file)
			if err != nil {
				return errs.Validationf("reading site mapping: %v", err)
			}
			opts.Mapping = m
		}

		res, err := a.Pull(cmd.Context(), path, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range res.Replacements {
			a.Logger().Debug("replaced URL", "blog_id", r.BlogID, "from", r.From, "to", r.To, "rows", r.Rows)
		}
		fmt.Fprintln(out, "Pull finished.")
		if res.URL != "" {
			fmt.Fprintf(out, "Visit in your browser: %s\n", res.URL)
		}
		if res.AdminLogin != "" {
			fmt.Fprintf(out, "Admin login: username %q and password %q\n", res.AdminLogin, res.AdminPassword)
		}
		return nil
	}),
}

// skipTables returns nil unless --skip-table was given, so that pull keeps
// its default skip list.
func skipTables(cmd *cobra.Command) ([]string, error) {
	f := cmd.Flags()
	if !f.Changed("skip-table") {
		return nil, nil
	}
	tables, err := f.GetStringSlice("skip-table")
	if err != nil {
		return nil, errs.Validationf("--skip-table: %v", err)
	}
	return tables, nil
}

var downloadCmd = &cobra.Command{
	Use:   "download ID",
	Short: "Download a snapshot into the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		f := cmd.Flags()
		opts := snapshots.DownloadOptions{}
		opts.Repository, _ = f.GetString("repository")
		opts.SkipDB, _ = f.GetBool("exclude-db")
		opts.SkipFiles, _ = f.GetBool("exclude-files")
		opts.Force, _ = f.GetBool("force")

		snap, err := a.Download(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s downloaded to %s.\n", snap.ID, a.Service().Cache().Path(snap.ID))
		return nil
	}),
}

var listLocalCmd = &cobra.Command{
	Use:   "list-local",
	Short: "List the snapshots in the local cache",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		snaps, err := a.ListLocal()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cached snapshots.")
			return nil
		}
		renderSnapshots(cmd.OutOrStdout(), snaps, true)
		return nil
	}),
}

var deleteLocalCmd = &cobra.Command{
	Use:   "delete-local ID",
	Short: "Remove a snapshot from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		if err := a.DeleteLocal(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s removed from the local cache.\n", args[0])
		return nil
	}),
}

var dbFlags = map[string]string{
	"db-host":     "DB_HOST",
	"db-name":     "DB_NAME",
	"db-user":     "DB_USER",
	"db-password": "DB_PASSWORD",
}

// dbOverrides returns the wp-config.php constants set by flags. Only flags
// given on the command line are included, so an explicit empty password
// is kept.
func dbOverrides(cmd *cobra.Command) map[string]string {
	out := map[string]string{}
	for flag, constant := range dbFlags {
		if cmd.Flags().Changed(flag) {
			out[constant], _ = cmd.Flags().GetString(flag)
		}
	}
	return out
}

func addDBFlags(c *cobra.Command) {
	c.Flags().String("db-host", "", "Override DB_HOST from wp-config.php")
	c.Flags().String("db-name", "", "Override DB_NAME from wp-config.php")
	c.Flags().String("db-user", "", "Override DB_USER from wp-config.php")
	c.Flags().String("db-password", "", "Override DB_PASSWORD from wp-config.php")
}

func init() {
	cwd, _ := os.Getwd()

	for _, c := range []*cobra.Command{createCmd, pushCmd} {
		f := c.Flags()
		f.String("path", cwd, "Path to the WordPress install")
		f.String("project", "", "Project slug")
		f.String("description", "", "Snapshot description")
		f.Bool("exclude-db", false, "Leave the database out")
		f.Bool("exclude-files", false, "Leave wp-content out")
		f.Bool("exclude-uploads", false, "Leave wp-content/uploads out")
		f.StringSlice("exclude", nil, "Paths under wp-content to leave out (repeatable)")
		f.Int("scrub", scrub.Full, "User scrubbing: 0 none, 1 hashes and emails, 2 all personal data")
		addDBFlags(c)
	}

	pf := pullCmd.Flags()
	pf.String("path", cwd, "Path to the WordPress install")
	pf.Bool("exclude-db", false, "Do not replace the database")
	pf.Bool("exclude-files", false, "Do not replace wp-content")
	pf.Bool("local", false, "Use the cached copy without asking")
	pf.Bool("remote", false, "Download a fresh copy even when one is cached")
	pf.String("site-mapping", "", "JSON, YAML or TOML file mapping blogs to URLs")
	pf.String("main-domain", "", "Main domain of a multisite network")
	pf.String("home-url", "", "Home URL of a single site")
	pf.String("site-url", "", "Site URL of a single site (default: home URL)")
	pf.StringSlice("skip-table", nil, "Tables without prefix to leave out of URL replacement")
	pf.Bool("confirm", false, "Replace the database and content without asking")
	pf.Bool("confirm-wp-download", false, "Download WordPress core when it is missing")
	pf.Bool("confirm-config-create", false, "Create wp-config.php when it is missing")
	pf.Bool("confirm-wp-version-change", false, "Change WordPress core to the snapshot's version")
	pf.Bool("confirm-ms-constant-update", false, "Update multisite constants in wp-config.php")
	addDBFlags(pullCmd)

	df := downloadCmd.Flags()
	df.Bool("exclude-db", false, "Skip the database")
	df.Bool("exclude-files", false, "Skip wp-content")
	df.Bool("force", false, "Replace a cached copy")

	for _, c := range []*cobra.Command{createCmd, pushCmd, pullCmd, downloadCmd} {
		c.Flags().String("repository", "", "Repository to use (default: first configured)")
	}
}
