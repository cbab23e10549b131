// Package config loads reviewmap settings from the environment.
//
// Variables use the REVIEWMAP_ prefix and a double underscore between
// nesting levels, e.g. REVIEWMAP_TABLE__NAME sets table.name. A .env file in
// the working directory is loaded first if present.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/nisimpson/reviewmap"
	"github.com/rs/zerolog"
)

// Prefix of every environment variable read by Load.
const Prefix = "REVIEWMAP_"

// Config is the root configuration.
type Config struct {
	Env        string           `koanf:"env" validate:"required,oneof=development test production"`
	Table      TableConfig      `koanf:"table" validate:"required"`
	AWS        AWSConfig        `koanf:"aws"`
	Serializer SerializerConfig `koanf:"serializer"`
	Log        LogConfig        `koanf:"log" validate:"required"`
}

// TableConfig describes the DynamoDB table.
type TableConfig struct {
	Name          string        `koanf:"name" validate:"required"`
	RefIndex      string        `koanf:"ref_index" validate:"required"`
	PaginationTTL time.Duration `koanf:"pagination_ttl" validate:"min=1m"`
}

// AWSConfig overrides the SDK defaults. Endpoint points the client at
// DynamoDB Local or another compatible endpoint.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`
}

// SerializerConfig bounds document nesting.
type SerializerConfig struct {
	MaxDepth int `koanf:"max_depth" validate:"min=1"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the configuration used for unset variables.
func Default() *Config {
	return &Config{
		Env: "development",
		Table: TableConfig{
			Name:          "reviews",
			RefIndex:      "ref-index",
			PaginationTTL: 24 * time.Hour,
		},
		Serializer: SerializerConfig{MaxDepth: reviewmap.DefaultMaxDepth},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the environment over Default and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(Prefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, Prefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// NewTable returns the table described by c.
func (c *Config) NewTable() *reviewmap.Table {
	table := reviewmap.NewTable(c.Table.Name)
	table.RefIndexName = c.Table.RefIndex
	table.PaginationTTL = c.Table.PaginationTTL
	return table
}

// NewLogger builds a zerolog logger writing to w. A nil w writes to stderr.
func (c *Config) NewLogger(w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}

	if c.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("env", c.Env).
		Logger(), nil
}

// NewDynamoDBClient loads the shared AWS configuration and returns a
// DynamoDB client honouring the region and endpoint overrides.
func (c *Config) NewDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.AWS.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.AWS.Endpoint)
		}
	}), nil
}
