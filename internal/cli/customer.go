package cli

import (
	"github.com/spf13/cobra"

	"github.com/nisimpson/reviewmap"
)

// customerCommand creates the customer management command.
func (c *CLI) customerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customers",
	}

	cmd.AddCommand(c.customerCreateCommand())
	cmd.AddCommand(c.customerShowCommand())
	cmd.AddCommand(c.customerUpdateCommand())
	cmd.AddCommand(c.customerDeleteCommand())
	cmd.AddCommand(c.customerListCommand())
	cmd.AddCommand(c.customerItemsCommand())
	cmd.AddCommand(c.customerAddItemCommand())

	return cmd
}

func (c *CLI) customerCreateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			customer := &reviewmap.Customer{Name: name}
			if err := c.store.CreateCustomer(cmd.Context(), customer); err != nil {
				return err
			}
			c.printSuccess("Created %s", customer)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "customer name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func (c *CLI) customerShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a customer with its reviews as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("customer", args[0])
			if err != nil {
				return err
			}

			doc, err := c.serializer().Serialize(cmd.Context(), &reviewmap.Customer{ID: id})
			if err != nil {
				return err
			}
			return c.printJSON(doc)
		},
	}
}

func (c *CLI) customerUpdateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Rename a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("customer", args[0])
			if err != nil {
				return err
			}

			customer := &reviewmap.Customer{ID: id, Name: name}
			if err := c.store.UpdateCustomer(cmd.Context(), customer); err != nil {
				return err
			}
			c.printSuccess("Updated %s", customer)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new customer name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func (c *CLI) customerDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a customer without reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("customer", args[0])
			if err != nil {
				return err
			}

			if err := c.store.DeleteCustomer(cmd.Context(), id); err != nil {
				return err
			}
			c.printSuccess("Deleted customer %d", id)
			return nil
		},
	}
}

func (c *CLI) customerListCommand() *cobra.Command {
	var opts reviewmap.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List customers by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.store.ListCustomers(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if len(page.Items) == 0 {
				c.printInfo("No customers")
			}
			for _, customer := range page.Items {
				c.printRow(customer.ID, customer.Name)
			}
			if page.Cursor != "" {
				c.printNextStep("More customers", appName+" customer list --cursor "+page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of customers (0 for all)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "cursor printed by the previous page")

	return cmd
}

func (c *CLI) customerItemsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "items ID",
		Short: "List the items a customer has reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("customer", args[0])
			if err != nil {
				return err
			}

			items, err := c.store.ItemsOf(cmd.Context(), id)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				c.printInfo("Customer %d has no items", id)
			}
			for _, item := range items {
				c.printRow(item.ID, item.Name, formatPrice(item.Price))
			}
			return nil
		},
	}
}

func (c *CLI) customerAddItemCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-item CUSTOMER_ID ITEM_ID",
		Short: "Add an item to a customer's items with an empty review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, itemID, err := parsePair(args)
			if err != nil {
				return err
			}

			review, err := c.store.AddItem(cmd.Context(), customerID, itemID)
			if err != nil {
				return err
			}
			c.printSuccess("Created %s", review)
			return nil
		},
	}
}
