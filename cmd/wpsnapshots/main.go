package main

import (
	"fmt"
	"os"

	"wpsnapshots/internal/app"
	"wpsnapshots/internal/prompt"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads .env files and the config and creates an App. The caller
// must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	if cwd, err := os.Getwd(); err == nil {
		if err := app.LoadEnv(cwd); err != nil {
			return nil, err
		}
	}

	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewApp(defaults, app.Options{
		Verbose:     verbose,
		Interactive: prompt.IsTerminal(os.Stdin),
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// run wraps a command body with App setup and logs failures with their
// diagnostics at debug level.
func run(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := fn(cmd, args, a); err != nil {
			a.Logger().Debug("command failed", "command", cmd.Name(), "error", err)
			return err
		}
		return nil
	}
}

var rootCmd = &cobra.Command{
	Use:          "wpsnapshots",
	Short:        "Share WordPress database and content snapshots through a repository",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(createRepositoryCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listLocalCmd)
	rootCmd.AddCommand(deleteLocalCmd)
}
