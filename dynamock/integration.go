package dynamock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nisimpson/reviewmap"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Port             int
	SkipIfNotRunning bool
	TablePrefix      string
	CleanupTimeout   time.Duration
}

// DefaultIntegrationTestConfig returns a default configuration for integration tests.
func DefaultIntegrationTestConfig() *IntegrationTestConfig {
	return &IntegrationTestConfig{
		Port:             DefaultLocalPort,
		SkipIfNotRunning: true,
		TablePrefix:      "reviewmap-test",
		CleanupTimeout:   30 * time.Second,
	}
}

// NewTestTable generates a unique table name for testing.
func NewTestTable(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// RunIntegrationTest creates a fresh review table on DynamoDB Local, runs fn
// with it, and deletes the table afterwards. The test is skipped in short
// mode, and when DynamoDB Local is not running unless config says otherwise.
func RunIntegrationTest(t *testing.T, config *IntegrationTestConfig, fn func(local *LocalDynamoDB, table *reviewmap.Table)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	if config == nil {
		config = DefaultIntegrationTestConfig()
	}

	local := NewLocalDynamoDB(config.Port)
	ctx := context.Background()

	if !local.IsAvailable(ctx) {
		if config.SkipIfNotRunning {
			t.Skipf("DynamoDB Local not available on port %d", config.Port)
		}
		t.Fatalf("DynamoDB Local not available on port %d", config.Port)
	}

	table := reviewmap.NewTable(NewTestTable(config.TablePrefix))
	if err := local.CreateTable(ctx, table); err != nil {
		t.Fatalf("Failed to create test table %s: %v", table.TableName, err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), config.CleanupTimeout)
		defer cancel()

		if err := local.DeleteTable(cleanupCtx, table.TableName); err != nil {
			t.Errorf("Failed to cleanup table %s: %v", table.TableName, err)
		}
	})

	fn(local, table)
}

// NewMemoryStore returns a store over a fresh MemoryClient, for unit tests.
func NewMemoryStore(opts ...reviewmap.StoreOption) (*reviewmap.Store, *MemoryClient, *reviewmap.Table) {
	client := NewMemoryClient()
	table := reviewmap.NewTable("reviews")
	return reviewmap.NewStore(client, table, opts...), client, table
}
