// Package dynamock provides test doubles and helpers for the reviewmap store.
//
// This package includes:
//   - An expectation-based mock DynamoDB client for unit testing
//   - An in-memory table client that enforces the store's conditions
//   - DynamoDB Local helpers and an integration test runner
//   - Fixture seeding through the store
//
// # Mock Client
//
// MockClient fails the test on any operation without an expectation:
//
//	mock := dynamock.NewMockClient(t)
//	mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
//		return &dynamodb.PutItemOutput{}, nil
//	}
//
// # Memory Client
//
// MemoryClient keeps rows in memory and evaluates the conditions, key
// conditions, counters, and transactions the store issues:
//
//	store, client, table := dynamock.NewMemoryStore()
//	_ = store.CreateCustomer(ctx, &reviewmap.Customer{Name: "Ada"})
//	rows := client.Records(table.TableName)
//
// # Fixtures
//
//	seeded, err := dynamock.NewFixture().
//		WithCustomer("Ada").
//		WithItem("Widget", 9.99).
//		WithReview("Ada", "Widget", reviewmap.Comment("Great")).
//		Seed(ctx, store)
//
// Fixtures can also be loaded from JSON with LoadFixture.
//
// # Local DynamoDB
//
//	dynamock.RunIntegrationTest(t, nil, func(local *dynamock.LocalDynamoDB, table *reviewmap.Table) {
//		store := reviewmap.NewStore(local.Client, table)
//		// ...
//	})
package dynamock
