// Package cli implements the reviewmap command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nisimpson/reviewmap"
	"github.com/nisimpson/reviewmap/config"
)

// appName is the command name used in usage text.
const appName = "reviewmap"

// Client is the DynamoDB API used by the CLI: the store operations plus
// table creation.
type Client interface {
	reviewmap.DynamoDBClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// CLI holds shared state for all commands. The store is built before any
// subcommand runs.
type CLI struct {
	out      io.Writer
	errOut   io.Writer
	renderer *lipgloss.Renderer

	cfg    *config.Config
	client Client
	logger zerolog.Logger
	table  *reviewmap.Table
	store  *reviewmap.Store

	verbose   bool
	tableName string
}

// Option configures a CLI.
type Option func(*CLI)

// WithConfig uses cfg instead of loading the configuration from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(c *CLI) { c.cfg = cfg }
}

// WithClient uses client instead of a DynamoDB client built from the AWS
// configuration.
func WithClient(client Client) Option {
	return func(c *CLI) { c.client = client }
}

// WithErrorOutput sets where log output is written. Default stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(c *CLI) { c.errOut = w }
}

// New returns a CLI that prints command output to out.
func New(out io.Writer, opts ...Option) *CLI {
	c := &CLI{
		out:    out,
		errOut: os.Stderr,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.renderer = lipgloss.NewRenderer(out)
	return c
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Manage customers, items, and reviews stored in DynamoDB",
		Long: `reviewmap stores customers, items, and the reviews that link them in a
single DynamoDB table, and prints entities as nested JSON documents.

Configuration is read from REVIEWMAP_* environment variables and an optional
.env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&c.tableName, "table", "", "table name (overrides REVIEWMAP_TABLE__NAME)")

	root.AddCommand(c.tableCommand())
	root.AddCommand(c.customerCommand())
	root.AddCommand(c.itemCommand())
	root.AddCommand(c.reviewCommand())

	return root
}

func (c *CLI) setup(ctx context.Context) error {
	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	cfg := *c.cfg
	if c.verbose {
		cfg.Log.Level = zerolog.LevelDebugValue
	}
	if c.tableName != "" {
		cfg.Table.Name = c.tableName
	}

	logger, err := cfg.NewLogger(c.errOut)
	if err != nil {
		return err
	}
	c.logger = logger

	if c.client == nil {
		client, err := cfg.NewDynamoDBClient(ctx)
		if err != nil {
			return err
		}
		c.client = client
	}

	c.table = cfg.NewTable()
	c.store = reviewmap.NewStore(c.client, c.table, reviewmap.WithLogger(c.logger))
	c.logger.Debug().Str("table", c.table.TableName).Msg("store ready")
	return nil
}

func (c *CLI) serializer() *reviewmap.Serializer {
	return reviewmap.NewSerializer(c.store, reviewmap.WithMaxDepth(c.cfg.Serializer.MaxDepth))
}

// parseID parses a positive entity id argument.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

// parsePair parses the customer and item id arguments of a review.
func parsePair(args []string) (customerID, itemID int64, err error) {
	if customerID, err = parseID("customer", args[0]); err != nil {
		return 0, 0, err
	}
	if itemID, err = parseID("item", args[1]); err != nil {
		return 0, 0, err
	}
	return customerID, itemID, nil
}
