package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tmm-manager/tmm/internal/version"
	"github.com/tmm-manager/tmm/pkg/commands"
	"github.com/tmm-manager/tmm/pkg/errors"
	"github.com/tmm-manager/tmm/pkg/logging"
	"github.com/tmm-manager/tmm/pkg/style"
)

var (
	verbosity int
	force     bool
	dryRun    bool

	rootCmd = &cobra.Command{
		Use:   "tmm",
		Short: "A mod manager for native and compat-layer games",
		Long: `tmm installs game mods, orders them, and materializes the ordered
set into the game directory without touching original game files.
Deployments are recorded in a durable ledger and fully reversible.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Println(style.ErrorStyle.Render("error:"), err)
		if code := errors.GetErrorCode(err); code != errors.ErrUnknown {
			log.Debug().Str("code", string(code)).Msg("Command failed")
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false,
		"Force operations that would otherwise be refused (uninstall of a deployed mod)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"Plan the operation and report it without changing anything")

	rootCmd.AddCommand(versionCmd)
}

// newApp wires the command layer against the real environment.
func newApp() (*commands.App, error) {
	return commands.NewApp()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tmm version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
