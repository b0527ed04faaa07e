package main

import (
	"fmt"

	"wpsnapshots/internal/app"
	"wpsnapshots/internal/config"
	"wpsnapshots/internal/errs"

	"github.com/spf13/cobra"
)

const defaultRegion = "us-west-1"

var configureCmd = &cobra.Command{
	Use:   "configure [REPOSITORY]",
	Short: "Configure a repository and the author identity",
	Args:  cobra.MaximumNArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		f := cmd.Flags()
		rc := config.RepositoryConfig{}
		if len(args) > 0 {
			rc.Repository = args[0]
		}
		rc.AccessKeyID, _ = f.GetString("access-key-id")
		rc.SecretAccessKey, _ = f.GetString("secret-access-key")
		rc.Region, _ = f.GetString("region")
		rc.Backend, _ = f.GetString("backend")
		rc.Root, _ = f.GetString("root")
		rc.Endpoint, _ = f.GetString("endpoint")
		rc.TimeoutSeconds, _ = f.GetInt("timeout")
		name, _ := f.GetString("name")
		email, _ := f.GetString("email")

		if a.Interactive() {
			if err := askRepository(a, &rc, &name, &email); err != nil {
				return err
			}
		} else if rc.Repository == "" {
			return errs.Validationf("a repository name is required")
		}
		if existing, ok := a.Config().Repository(rc.Repository); ok {
			inherit(&rc, existing)
		}
		if rc.Region == "" && isAWS(rc) {
			rc.Region = defaultRegion
		}

		if err := a.Configure(cmd.Context(), rc, name, email); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Repository %s configured.\n", rc.Repository)
		return nil
	}),
}

// askRepository fills the values flags left empty by asking for them.
func askRepository(a *app.App, rc *config.RepositoryConfig, name, email *string) error {
	p := a.Prompter()
	cfg := a.Config()
	var err error

	if rc.Repository == "" {
		if rc.Repository, err = p.Ask("Repository slug (letters, numbers and dashes): ", "", config.ValidateRepositoryName); err != nil {
			return err
		}
	}
	existing, _ := cfg.Repository(rc.Repository)

	if isAWS(*rc) {
		if rc.AccessKeyID == "" {
			if rc.AccessKeyID, err = p.Ask(questionWithDefault("AWS Access Key ID", existing.AccessKeyID), existing.AccessKeyID, nil); err != nil {
				return err
			}
		}
		if rc.SecretAccessKey == "" {
			if rc.SecretAccessKey, err = p.Secret("AWS Secret Access Key: "); err != nil {
				return err
			}
		}
		if rc.Region == "" {
			def := firstNonEmpty(existing.Region, defaultRegion)
			if rc.Region, err = p.Ask(questionWithDefault("AWS region", def), def, nil); err != nil {
				return err
			}
		}
	}

	if *name == "" {
		if *name, err = p.Ask(questionWithDefault("Your name", cfg.Name), cfg.Name, nil); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = p.Ask(questionWithDefault("Your email", cfg.Email), cfg.Email, nil); err != nil {
			return err
		}
	}
	return nil
}

// inherit keeps the stored value of every field left empty.
func inherit(rc *config.RepositoryConfig, existing config.RepositoryConfig) {
	if rc.Region == "" {
		rc.Region = existing.Region
	}
	if rc.Backend == "" {
		rc.Backend = existing.Backend
	}
	if rc.Root == "" {
		rc.Root = existing.Root
	}
	if rc.Endpoint == "" {
		rc.Endpoint = existing.Endpoint
	}
	if rc.TimeoutSeconds == 0 {
		rc.TimeoutSeconds = existing.TimeoutSeconds
	}
	if rc.AccessKeyID == "" {
		rc.AccessKeyID = existing.AccessKeyID
	}
	if rc.SecretAccessKey == "" {
		rc.SecretAccessKey = existing.SecretAccessKey
	}
}

func isAWS(rc config.RepositoryConfig) bool {
	return rc.Backend == "" || rc.Backend == config.BackendAWS
}

func questionWithDefault(q, def string) string {
	if def == "" {
		return q + ": "
	}
	return fmt.Sprintf("%s (%s): ", q, def)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var createRepositoryCmd = &cobra.Command{
	Use:   "create-repository",
	Short: "Create the bucket and metadata table of a repository",
	Args:  cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		repo, _ := cmd.Flags().GetString("repository")
		res, err := a.CreateRepository(cmd.Context(), repo)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.BucketExisted {
			fmt.Fprintln(out, "Bucket already exists.")
		} else {
			fmt.Fprintln(out, "Bucket created.")
		}
		if res.TableExisted {
			fmt.Fprintln(out, "Metadata table already exists.")
		} else {
			fmt.Fprintln(out, "Metadata table created.")
		}
		fmt.Fprintln(out, "Repository ready.")
		return nil
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search a repository for snapshots; * lists every snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		repo, _ := cmd.Flags().GetString("repository")
		snaps, err := a.Search(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
			return nil
		}
		renderSnapshots(cmd.OutOrStdout(), snaps, false)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a snapshot from a repository",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string, a *app.App) error {
		repo, _ := cmd.Flags().GetString("repository")
		ok, err := confirmed(cmd, a, fmt.Sprintf("Delete snapshot %s from the repository?", args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.Validation, errs.CodeCancelled, "delete cancelled")
		}
		if err := a.Delete(cmd.Context(), args[0], repo); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s deleted.\n", args[0])
		return nil
	}),
}

// confirmed is true when --confirm is set or the operator agrees. It
// defaults to no.
func confirmed(cmd *cobra.Command, a *app.App, question string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("confirm"); yes {
		return true, nil
	}
	if !a.Interactive() {
		return false, nil
	}
	return a.Prompter().Confirm(question, false)
}

func init() {
	f := configureCmd.Flags()
	f.String("access-key-id", "", "AWS access key ID")
	f.String("secret-access-key", "", "AWS secret access key")
	f.String("region", "", "AWS region (default "+defaultRegion+")")
	f.String("backend", "", "Storage backend: aws, filesystem or memory")
	f.String("root", "", "Repository directory for the filesystem backend")
	f.String("endpoint", "", "S3 and DynamoDB compatible endpoint")
	f.Int("timeout", 0, "Network timeout in seconds (default 300)")
	f.String("name", "", "Your name, recorded on snapshots you create")
	f.String("email", "", "Your email, recorded on snapshots you create")

	for _, c := range []*cobra.Command{createRepositoryCmd, searchCmd, deleteCmd} {
		c.Flags().String("repository", "", "Repository to use (default: first configured)")
	}
	deleteCmd.Flags().Bool("confirm", false, "Delete without asking")
}
