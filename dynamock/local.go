package dynamock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
)

// DefaultLocalPort is the default port for DynamoDB Local.
const DefaultLocalPort = 8000

// LocalDynamoDB represents a connection to a local DynamoDB instance.
type LocalDynamoDB struct {
	Client   *dynamodb.Client
	Endpoint string
	Port     int
}

// NewLocalClient creates a DynamoDB client for DynamoDB Local on port.
//
//	client := dynamock.NewLocalClient(8000)
//	store := reviewmap.NewStore(client, reviewmap.NewTable("reviews"))
func NewLocalClient(port int) *dynamodb.Client {
	cfg := aws.Config{
		Region:      "us-east-1", // ignored by DynamoDB Local
		Credentials: aws.AnonymousCredentials{},
	}
	return NewLocalClientFromConfig(cfg, port)
}

// NewLocalClientFromConfig creates a DynamoDB Local client from cfg, replacing
// its endpoint and credentials.
func NewLocalClientFromConfig(cfg aws.Config, port int) *dynamodb.Client {
	endpoint := fmt.Sprintf("http://localhost:%d", port)
	cfg.Credentials = aws.AnonymousCredentials{}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// NewLocalDynamoDB creates a LocalDynamoDB for the specified port.
func NewLocalDynamoDB(port int) *LocalDynamoDB {
	return &LocalDynamoDB{
		Client:   NewLocalClient(port),
		Endpoint: fmt.Sprintf("http://localhost:%d", port),
		Port:     port,
	}
}

// NewDefaultLocalDynamoDB creates a LocalDynamoDB on DefaultLocalPort.
func NewDefaultLocalDynamoDB() *LocalDynamoDB {
	return NewLocalDynamoDB(DefaultLocalPort)
}

// IsAvailable checks if DynamoDB Local is running on the configured port.
func (l *LocalDynamoDB) IsAvailable(ctx context.Context) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", l.Port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()

	_, err = l.Client.ListTables(ctx, &dynamodb.ListTablesInput{})
	return err == nil
}

// CreateTable creates the review table described by table and waits until it
// is active.
func (l *LocalDynamoDB) CreateTable(ctx context.Context, table *reviewmap.Table) error {
	if _, err := l.Client.CreateTable(ctx, table.MarshalCreateTable()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.TableName, err)
	}
	return l.WaitForTableActive(ctx, table.TableName, 30*time.Second)
}

// WaitForTableActive blocks until tableName exists and is active, or timeout
// elapses.
func (l *LocalDynamoDB) WaitForTableActive(ctx context.Context, tableName string, timeout time.Duration) error {
	waiter := dynamodb.NewTableExistsWaiter(l.Client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = 100 * time.Millisecond
		o.MaxDelay = time.Second
	})

	err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, timeout)
	if err != nil {
		return fmt.Errorf("table %s is not active: %w", tableName, err)
	}
	return nil
}

// DeleteTable deletes tableName and waits until it is gone. Deleting a table
// that does not exist succeeds.
func (l *LocalDynamoDB) DeleteTable(ctx context.Context, tableName string) error {
	_, err := l.Client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)})

	var notFound *types.ResourceNotFoundException
	switch {
	case errors.As(err, &notFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(l.Client, func(o *dynamodb.TableNotExistsWaiterOptions) {
		o.MinDelay = 100 * time.Millisecond
		o.MaxDelay = time.Second
	})

	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 30*time.Second)
	if err != nil {
		return fmt.Errorf("table %s was not deleted: %w", tableName, err)
	}
	return nil
}
