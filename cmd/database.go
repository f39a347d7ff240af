// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/openworkers/postgate/cmd/flags"
	"github.com/openworkers/postgate/internal/logging"
	"github.com/openworkers/postgate/pkg/store"
)

func databaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Manage tenant databases registered with postgate",
	}

	cmd.AddCommand(databaseCreateCmd())
	cmd.AddCommand(databaseListCmd())
	cmd.AddCommand(databaseDeleteCmd())

	return cmd
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	ctx := cmd.Context()
	log := logging.New(flags.LogLevel())
	st, err := store.New(ctx, flags.ControlPlaneURL(), log)
	if err != nil {
		return nil, fmt.Errorf("connecting to control plane: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing control-plane schema: %w", err)
	}
	return st, nil
}

func databaseCreateCmd() *cobra.Command {
	var name, schema, connStr, outputFormat string
	var dedicated bool
	var maxRows int

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if name == "" {
				name, _ = pterm.DefaultInteractiveTextInput.
					WithDefaultText("Name for the new database").
					Show()
			}

			cfg := store.DatabaseConfig{Name: name, MaxRows: maxRows}
			if dedicated {
				if connStr == "" {
					connStr, _ = pterm.DefaultInteractiveTextInput.
						WithDefaultText("Connection string for the dedicated database").
						Show()
				}
				cfg.Backend = store.BackendDedicated
				cfg.ConnStr = connStr
			} else {
				if schema == "" {
					schema = store.SuggestSchemaName(name)
				}
				cfg.Backend = store.BackendSchema
				cfg.Schema = schema
			}

			sp, _ := pterm.DefaultSpinner.WithText("Registering database...").Start()
			created, err := st.CreateDatabase(cmd.Context(), cfg)
			if err != nil {
				sp.Fail(fmt.Sprintf("Failed to register database: %s", err))
				return err
			}
			sp.Success("Database registered")

			return printAs(outputFormat, created)
		},
	}

	createCmd.Flags().StringVarP(&name, "name", "n", "", "Database name")
	createCmd.Flags().StringVarP(&schema, "schema", "s", "", "Schema name (schema backend only, default: derived from name)")
	createCmd.Flags().StringVar(&connStr, "conn-str", "", "Connection string (dedicated backend only)")
	createCmd.Flags().BoolVar(&dedicated, "dedicated", false, "Use a dedicated connection pool instead of the shared schema backend")
	createCmd.Flags().IntVar(&maxRows, "max-rows", 1000, "Maximum rows a single query may return")
	createCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")

	return createCmd
}

func databaseListCmd() *cobra.Command {
	var outputFormat string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tenant databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			dbs, err := st.ListDatabases(cmd.Context())
			if err != nil {
				return err
			}

			return printAs(outputFormat, dbs)
		},
	}

	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")

	return listCmd
}

func databaseDeleteCmd() *cobra.Command {
	var confirmed bool

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a registered tenant database and its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}

			if !confirmed {
				confirmed, _ = pterm.DefaultInteractiveConfirm.
					WithDefaultText("This deletes the database's metadata and, for a schema backend, its schema. Continue?").
					Show()
				if !confirmed {
					pterm.Info.Println("Aborted")
					return nil
				}
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			sp, _ := pterm.DefaultSpinner.WithText("Deleting database...").Start()
			if err := st.DeleteDatabase(cmd.Context(), id); err != nil {
				sp.Fail(fmt.Sprintf("Failed to delete database: %s", err))
				return err
			}
			sp.Success("Database deleted")
			return nil
		},
	}

	deleteCmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Skip the confirmation prompt")

	return deleteCmd
}
