package cli

import (
	"github.com/spf13/cobra"

	"github.com/nisimpson/reviewmap"
)

// itemCommand creates the item management command.
func (c *CLI) itemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage items",
	}

	cmd.AddCommand(c.itemCreateCommand())
	cmd.AddCommand(c.itemShowCommand())
	cmd.AddCommand(c.itemUpdateCommand())
	cmd.AddCommand(c.itemDeleteCommand())
	cmd.AddCommand(c.itemListCommand())

	return cmd
}

func (c *CLI) itemCreateCommand() *cobra.Command {
	var item reviewmap.Item

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.store.CreateItem(cmd.Context(), &item); err != nil {
				return err
			}
			c.printSuccess("Created %s", item)
			return nil
		},
	}

	cmd.Flags().StringVar(&item.Name, "name", "", "item name")
	cmd.Flags().Float64Var(&item.Price, "price", 0, "item price")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func (c *CLI) itemShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print an item with its reviews as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return err
			}

			doc, err := c.serializer().Serialize(cmd.Context(), &reviewmap.Item{ID: id})
			if err != nil {
				return err
			}
			return c.printJSON(doc)
		},
	}
}

func (c *CLI) itemUpdateCommand() *cobra.Command {
	var (
		name  string
		price float64
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change the name or price of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return err
			}

			item, err := c.store.GetItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("name") {
				item.Name = name
			}
			if cmd.Flags().Changed("price") {
				item.Price = price
			}

			if err := c.store.UpdateItem(cmd.Context(), item); err != nil {
				return err
			}
			c.printSuccess("Updated %s", item)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new item name")
	cmd.Flags().Float64Var(&price, "price", 0, "new item price")
	cmd.MarkFlagsOneRequired("name", "price")

	return cmd
}

func (c *CLI) itemDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an item without reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return err
			}

			if err := c.store.DeleteItem(cmd.Context(), id); err != nil {
				return err
			}
			c.printSuccess("Deleted item %d", id)
			return nil
		},
	}
}

func (c *CLI) itemListCommand() *cobra.Command {
	var opts reviewmap.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.store.ListItems(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if len(page.Items) == 0 {
				c.printInfo("No items")
			}
			for _, item := range page.Items {
				c.printRow(item.ID, item.Name, formatPrice(item.Price))
			}
			if page.Cursor != "" {
				c.printNextStep("More items", appName+" item list --cursor "+page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of items (0 for all)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "cursor printed by the previous page")

	return cmd
}
