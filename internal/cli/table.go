package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// tableCommand creates the table management command.
func (c *CLI) tableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage the DynamoDB table",
	}

	cmd.AddCommand(c.tableCreateCommand())

	return cmd
}

// tableCreateCommand creates the "table create" subcommand.
func (c *CLI) tableCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the table and its ref index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.client.CreateTable(cmd.Context(), c.table.MarshalCreateTable()); err != nil {
				return fmt.Errorf("create table %s: %w", c.table.TableName, err)
			}

			c.printSuccess("Created table %s", c.table.TableName)
			c.printKeyValue("Ref index", c.table.RefIndexName)
			return nil
		},
	}
}
