package cli

import (
	"github.com/spf13/cobra"

	"github.com/nisimpson/reviewmap"
)

// reviewCommand creates the review management command.
func (c *CLI) reviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage reviews",
		Long: `Manage reviews. A review is identified by its customer and item ids; a
customer reviews an item at most once.`,
	}

	cmd.AddCommand(c.reviewCreateCommand())
	cmd.AddCommand(c.reviewShowCommand())
	cmd.AddCommand(c.reviewUpdateCommand())
	cmd.AddCommand(c.reviewDeleteCommand())

	return cmd
}

func (c *CLI) reviewCreateCommand() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "create CUSTOMER_ID ITEM_ID",
		Short: "Review an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, itemID, err := parsePair(args)
			if err != nil {
				return err
			}

			review := &reviewmap.Review{CustomerID: customerID, ItemID: itemID}
			if cmd.Flags().Changed("comment") {
				review.Comment = reviewmap.Comment(comment)
			}

			if err := c.store.CreateReview(cmd.Context(), review); err != nil {
				return err
			}
			c.printSuccess("Created %s", review)
			return nil
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "review comment")

	return cmd
}

func (c *CLI) reviewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show CUSTOMER_ID ITEM_ID",
		Short: "Print a review with its customer and item as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, itemID, err := parsePair(args)
			if err != nil {
				return err
			}

			doc, err := c.serializer().Serialize(cmd.Context(), &reviewmap.Review{CustomerID: customerID, ItemID: itemID})
			if err != nil {
				return err
			}
			return c.printJSON(doc)
		},
	}
}

func (c *CLI) reviewUpdateCommand() *cobra.Command {
	var (
		comment      string
		clearComment bool
	)

	cmd := &cobra.Command{
		Use:   "update CUSTOMER_ID ITEM_ID",
		Short: "Change or clear the comment of a review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, itemID, err := parsePair(args)
			if err != nil {
				return err
			}

			review := &reviewmap.Review{CustomerID: customerID, ItemID: itemID}
			if !clearComment {
				review.Comment = reviewmap.Comment(comment)
			}

			if err := c.store.UpdateReview(cmd.Context(), review); err != nil {
				return err
			}
			c.printSuccess("Updated %s", review)
			return nil
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "new review comment")
	cmd.Flags().BoolVar(&clearComment, "clear-comment", false, "remove the comment")
	cmd.MarkFlagsOneRequired("comment", "clear-comment")
	cmd.MarkFlagsMutuallyExclusive("comment", "clear-comment")

	return cmd
}

func (c *CLI) reviewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete CUSTOMER_ID ITEM_ID",
		Short: "Delete a review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, itemID, err := parsePair(args)
			if err != nil {
				return err
			}

			if err := c.store.DeleteReview(cmd.Context(), customerID, itemID); err != nil {
				return err
			}
			c.printSuccess("Deleted review of item %d by customer %d", itemID, customerID)
			return nil
		},
	}
}
