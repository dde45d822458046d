// Package cli implements the larder command-line interface: a thin shell
// over the public store surface for inspecting and administering a database.
// See docs/ARCHITECTURE.md § CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "larder" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "larder",
		Short: "Larder is an embedded typed record store on SQLite",
		Long: `Larder manages typed records in a single-file SQLite database:
schema from record descriptors, structured queries, live subscriptions,
per-table row caps, and a migration ledger.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: .larder)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: .larder-db)")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "verbose logging to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newExecCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newRollbackCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
}

// storeConfig assembles the store configuration from flags and config.yaml.
func storeConfig() (types.Config, error) {
	v, err := loadConfig(resolveConfigDir())
	if err != nil {
		return types.Config{}, err
	}

	cfg := types.Config{
		DataDir:       v.GetString(cfgKeyDataDir),
		DatabaseFile:  v.GetString(cfgKeyDatabaseFile),
		BusyTimeoutMS: v.GetInt(cfgKeyBusyTimeoutMS),
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	return cfg, nil
}
