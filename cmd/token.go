// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/openworkers/postgate/pkg/validator"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens for tenant databases",
	}

	cmd.AddCommand(tokenCreateCmd())
	cmd.AddCommand(tokenListCmd())
	cmd.AddCommand(tokenRevokeCmd())

	return cmd
}

var allOperations = []validator.Operation{
	validator.OpSelect, validator.OpInsert, validator.OpUpdate,
	validator.OpDelete, validator.OpCreate, validator.OpAlter, validator.OpDrop,
}

func tokenCreateCmd() *cobra.Command {
	var databaseID string
	var ops []string
	var outputFormat string

	createCmd := &cobra.Command{
		Use:   "create <database-id>",
		Short: "Mint a new bearer token for a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseID = args[0]
			id, err := parseUUID(databaseID)
			if err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(ops) == 0 {
				selected, _ := pterm.DefaultInteractiveMultiselect.
					WithDefaultText("Select allowed operations").
					WithOptions(operationNames()).
					Show()
				ops = selected
			}

			allowed := make(map[validator.Operation]bool, len(ops))
			for _, op := range ops {
				allowed[validator.Operation(strings.ToUpper(op))] = true
			}

			sp, _ := pterm.DefaultSpinner.WithText("Minting token...").Start()
			plaintext, info, err := st.CreateToken(cmd.Context(), id, allowed)
			if err != nil {
				sp.Fail(fmt.Sprintf("Failed to mint token: %s", err))
				return err
			}
			sp.Success("Token minted")

			pterm.Warning.Println("This token is shown once and is not stored in plaintext:")
			fmt.Println(plaintext)

			return printAs(outputFormat, info)
		},
	}

	createCmd.Flags().StringSliceVar(&ops, "allow", nil, "Allowed operations (SELECT, INSERT, UPDATE, DELETE, CREATE, ALTER, DROP)")
	createCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")

	return createCmd
}

func operationNames() []string {
	names := make([]string, len(allOperations))
	for i, op := range allOperations {
		names[i] = string(op)
	}
	return names
}

func tokenListCmd() *cobra.Command {
	var outputFormat string

	listCmd := &cobra.Command{
		Use:   "list <database-id>",
		Short: "List tokens issued for a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			tokens, err := st.ListTokens(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printAs(outputFormat, tokens)
		},
	}

	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")

	return listCmd
}

func tokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			sp, _ := pterm.DefaultSpinner.WithText("Revoking token...").Start()
			if err := st.DeleteToken(cmd.Context(), id); err != nil {
				sp.Fail(fmt.Sprintf("Failed to revoke token: %s", err))
				return err
			}
			sp.Success("Token revoked")
			return nil
		},
	}
}
