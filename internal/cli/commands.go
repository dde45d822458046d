// Subcommands for the larder CLI.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/pkg/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Version is the CLI version string.
const Version = "v0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "larder "+Version)
		},
	}
}

// openStore opens the store from resolved configuration.
func openStore() (*sqlite.Store, error) {
	cfg, err := storeConfig()
	if err != nil {
		return nil, err
	}

	opts := []sqlite.Option{}
	if flags.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sqlite.WithLogger(logger))
	}
	return sqlite.Open(cfg, opts...)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the larder database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "larder initialized")
			return nil
		},
	}
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.Query(cmd.Context(),
				"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", nil)
			if err != nil {
				return err
			}
			for _, row := range rows {
				name, err := types.AsString(row["name"])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run a raw SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sqlText := args[0]
			if isQuery(sqlText) {
				rows, err := store.Query(cmd.Context(), sqlText, nil)
				if err != nil {
					return err
				}
				for _, row := range rows {
					parts := make([]string, 0, len(row))
					for col, v := range row {
						parts = append(parts, fmt.Sprintf("%s=%v", col, types.ToDriver(v)))
					}
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, "\t"))
				}
				return nil
			}

			res, err := store.Execute(cmd.Context(), sqlText, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", res.RowsAffected)
			return nil
		},
	}
}

// isQuery reports whether the statement produces rows.
func isQuery(sqlText string) bool {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "PRAGMA")
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-table row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tables, err := store.Query(cmd.Context(),
				"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", nil)
			if err != nil {
				return err
			}
			for _, row := range tables {
				name, err := types.AsString(row["name"])
				if err != nil {
					return err
				}
				counts, err := store.Query(cmd.Context(), "SELECT COUNT(*) AS n FROM "+name, nil)
				if err != nil {
					return err
				}
				n := int64(0)
				if len(counts) > 0 {
					n, _ = types.AsInt64(counts[0]["n"])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, n)
			}
			return nil
		},
	}
}
