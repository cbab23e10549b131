package reviewmap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// mockDynamoDBClient keeps rows in a map without evaluating conditions.
type mockDynamoDBClient struct {
	items map[string]Record
}

func newMockDynamoDBClient() *mockDynamoDBClient {
	return &mockDynamoDBClient{items: make(map[string]Record)}
}

func mockKey(r Record) string {
	return r[AttributeNameSource].(*types.AttributeValueMemberS).Value + "|" +
		r[AttributeNameTarget].(*types.AttributeValueMemberS).Value
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.items[mockKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, requests := range params.RequestItems {
		for _, request := range requests {
			if request.PutRequest != nil {
				m.items[mockKey(request.PutRequest.Item)] = request.PutRequest.Item
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if item, exists := m.items[mockKey(params.Key)]; exists {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(m.items, mockKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDBClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestNewTable(t *testing.T) {
	table := NewTable("reviews")

	if table.TableName != "reviews" {
		t.Errorf("Expected table name 'reviews', got %s", table.TableName)
	}
	if table.RefIndexName != "ref-index" {
		t.Errorf("Expected ref index 'ref-index', got %s", table.RefIndexName)
	}
	if table.KeyDelimiter != "#" {
		t.Errorf("Expected key delimiter '#', got %s", table.KeyDelimiter)
	}
	if table.PaginationTTL != 24*time.Hour {
		t.Errorf("Expected pagination TTL 24h, got %v", table.PaginationTTL)
	}
}

func TestDefaultClock(t *testing.T) {
	if loc := DefaultClock().Location(); loc != time.UTC {
		t.Errorf("Expected UTC, got %v", loc)
	}
}

func TestMarshalRow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := func(opts *MarshalOptions) { opts.Tick = fixedClock(now) }

	t.Run("customer", func(t *testing.T) {
		row, err := MarshalRow(&Customer{ID: 7, Name: "Ada"}, tick)
		if err != nil {
			t.Fatalf("Failed to marshal row: %v", err)
		}

		if row.Source != "customer#7" || row.Target != "customer#7" {
			t.Errorf("Expected self row customer#7, got %s/%s", row.Source, row.Target)
		}
		if row.Label != LabelCustomer {
			t.Errorf("Expected label %s, got %s", LabelCustomer, row.Label)
		}
		if row.GSI1SK != "00000000000000000007" {
			t.Errorf("Expected padded ref sort key, got %s", row.GSI1SK)
		}
		if !row.CreatedAt.Equal(now) || !row.UpdatedAt.Equal(now) {
			t.Errorf("Expected timestamps %v, got %v/%v", now, row.CreatedAt, row.UpdatedAt)
		}
		if !row.Expires.IsZero() {
			t.Errorf("Expected no expiry, got %v", row.Expires)
		}
	})

	t.Run("review", func(t *testing.T) {
		row, err := MarshalRow(&Review{CustomerID: 3, ItemID: 12}, tick)
		if err != nil {
			t.Fatalf("Failed to marshal row: %v", err)
		}

		if row.Source != "customer#3" || row.Target != "item#12" {
			t.Errorf("Expected customer#3/item#12, got %s/%s", row.Source, row.Target)
		}
		if row.Label != LabelReview {
			t.Errorf("Expected label %s, got %s", LabelReview, row.Label)
		}
		want := "item#00000000000000000012#customer#00000000000000000003"
		if row.GSI1SK != want {
			t.Errorf("Expected ref sort key %s, got %s", want, row.GSI1SK)
		}
	})

	t.Run("time to live", func(t *testing.T) {
		row, err := MarshalRow(&PageCursor{Cursor: "abc"}, tick, func(opts *MarshalOptions) {
			opts.TimeToLive = time.Hour
		})
		if err != nil {
			t.Fatalf("Failed to marshal row: %v", err)
		}

		if !row.Expires.Equal(now.Add(time.Hour)) {
			t.Errorf("Expected expiry %v, got %v", now.Add(time.Hour), row.Expires)
		}
	})

	t.Run("preset timestamps", func(t *testing.T) {
		created := now.Add(-48 * time.Hour)
		row, err := MarshalRow(&Item{ID: 1, Name: "Widget"}, tick, func(opts *MarshalOptions) {
			opts.Created = created
		})
		if err != nil {
			t.Fatalf("Failed to marshal row: %v", err)
		}

		if !row.CreatedAt.Equal(created) {
			t.Errorf("Expected created %v, got %v", created, row.CreatedAt)
		}
		if !row.UpdatedAt.Equal(now) {
			t.Errorf("Expected updated %v, got %v", now, row.UpdatedAt)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		if _, err := MarshalRow(&Customer{}); err == nil {
			t.Error("Expected error for zero id")
		}
		if _, err := MarshalRow(&Review{CustomerID: 1}); err == nil {
			t.Error("Expected error for zero item id")
		}
	})
}

func TestMarshalOptionsHelpers(t *testing.T) {
	opts := newMarshalOptions()
	opts.WithSelfTarget(PrefixItem, "9")

	if got := opts.sourceKey(); got != "item#9" {
		t.Errorf("Expected source key item#9, got %s", got)
	}
	if got := opts.targetKey(); got != "item#9" {
		t.Errorf("Expected target key item#9, got %s", got)
	}
	if opts.Label != PrefixItem {
		t.Errorf("Expected label %s, got %s", PrefixItem, opts.Label)
	}

	custom := newMarshalOptions(func(mo *MarshalOptions) { mo.KeyDelimiter = "|" })
	custom.WithSelfTarget(PrefixCustomer, "1")
	if got := custom.sourceKey(); got != "customer|1" {
		t.Errorf("Expected source key customer|1, got %s", got)
	}
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		in   Marshaler
		want string
	}{
		{"customer", &Customer{ID: 1}, "customer#1"},
		{"item", &Item{ID: 2}, "item#2"},
		{"review", &Review{CustomerID: 1, ItemID: 2}, "customer#1/item#2"},
		{"invalid", &Item{}, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyString(tt.in, "#"); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestUnmarshalRow(t *testing.T) {
	table := NewTable("reviews")

	t.Run("review with comment", func(t *testing.T) {
		input, err := table.MarshalPut(&Review{CustomerID: 1, ItemID: 2, Comment: Comment("Great")})
		if err != nil {
			t.Fatalf("Failed to marshal put: %v", err)
		}

		var review Review
		row, err := UnmarshalRow(input.Item, &review)
		if err != nil {
			t.Fatalf("Failed to unmarshal row: %v", err)
		}

		if review.CustomerID != 1 || review.ItemID != 2 {
			t.Errorf("Expected review (1, 2), got %s", review)
		}
		if review.Comment == nil || *review.Comment != "Great" {
			t.Errorf("Expected comment 'Great', got %v", review.Comment)
		}
		if row.Label != LabelReview {
			t.Errorf("Expected label %s, got %s", LabelReview, row.Label)
		}
	})

	t.Run("review without comment", func(t *testing.T) {
		input, err := table.MarshalPut(&Review{CustomerID: 1, ItemID: 2})
		if err != nil {
			t.Fatalf("Failed to marshal put: %v", err)
		}

		var review Review
		if _, err := UnmarshalRow(input.Item, &review); err != nil {
			t.Fatalf("Failed to unmarshal row: %v", err)
		}
		if review.Comment != nil {
			t.Errorf("Expected nil comment, got %q", *review.Comment)
		}
	})

	t.Run("missing data attribute", func(t *testing.T) {
		record := Record{
			AttributeNameSource: &types.AttributeValueMemberS{Value: "customer#1"},
			AttributeNameTarget: &types.AttributeValueMemberS{Value: "customer#1"},
		}

		var c Customer
		_, err := UnmarshalRow(record, &c)
		if err == nil || !strings.Contains(err.Error(), "data attribute not found") {
			t.Errorf("Expected missing data error, got %v", err)
		}
	})

	t.Run("invalid data type", func(t *testing.T) {
		record := Record{
			AttributeNameSource: &types.AttributeValueMemberS{Value: "customer#1"},
			AttributeNameTarget: &types.AttributeValueMemberS{Value: "customer#1"},
			AttributeNameData:   &types.AttributeValueMemberS{Value: "not a map"},
		}

		var c Customer
		if _, err := UnmarshalRow(record, &c); err == nil {
			t.Error("Expected error for invalid data type")
		}
	})
}

func TestUnmarshalList(t *testing.T) {
	table := NewTable("reviews")

	var records []Record
	for _, c := range []*Customer{{ID: 1, Name: "Ada"}, {ID: 2, Name: "Grace"}} {
		input, err := table.MarshalPut(c)
		if err != nil {
			t.Fatalf("Failed to marshal put: %v", err)
		}
		records = append(records, input.Item)
	}

	var customers []Customer
	rows, err := UnmarshalList(records, &customers)
	if err != nil {
		t.Fatalf("Failed to unmarshal list: %v", err)
	}

	if len(customers) != 2 || len(rows) != 2 {
		t.Fatalf("Expected 2 customers and rows, got %d/%d", len(customers), len(rows))
	}
	if customers[1].Name != "Grace" {
		t.Errorf("Expected Grace, got %s", customers[1].Name)
	}
}
