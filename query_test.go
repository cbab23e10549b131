package reviewmap

import (
	"math"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// values returns the string values of the query's expression attributes.
func values(t *testing.T, vals map[string]types.AttributeValue) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	for _, v := range vals {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			t.Fatalf("Expected string value, got %T", v)
		}
		out[s.Value] = true
	}
	return out
}

func TestQueryList(t *testing.T) {
	table := NewTable("test-table")

	t.Run("basic query", func(t *testing.T) {
		queryInput, err := table.MarshalQuery(&QueryList{Label: LabelCustomer, Limit: 10})
		if err != nil {
			t.Fatalf("Failed to marshal query: %v", err)
		}

		if *queryInput.TableName != "test-table" {
			t.Errorf("Expected table name 'test-table', got %s", *queryInput.TableName)
		}
		if *queryInput.IndexName != "ref-index" {
			t.Errorf("Expected index name 'ref-index', got %s", *queryInput.IndexName)
		}
		if *queryInput.Limit != 10 {
			t.Errorf("Expected limit 10, got %d", *queryInput.Limit)
		}
		if !*queryInput.ScanIndexForward {
			t.Error("Expected ascending scan")
		}
		if !values(t, queryInput.ExpressionAttributeValues)[LabelCustomer] {
			t.Errorf("Expected label value %s", LabelCustomer)
		}
	})

	t.Run("start key and direction", func(t *testing.T) {
		start := Record{AttributeNameSource: &types.AttributeValueMemberS{Value: "customer#1"}}

		queryInput, err := table.MarshalQuery(&QueryList{
			Label:          LabelItem,
			StartKey:       start,
			SortDescending: true,
		})
		if err != nil {
			t.Fatalf("Failed to marshal query: %v", err)
		}

		if queryInput.ExclusiveStartKey == nil {
			t.Error("Expected exclusive start key")
		}
		if *queryInput.ScanIndexForward {
			t.Error("Expected descending scan")
		}
		if queryInput.Limit != nil {
			t.Errorf("Expected no limit, got %d", *queryInput.Limit)
		}
	})

	t.Run("limit is clamped to int32", func(t *testing.T) {
		queryInput, err := table.MarshalQuery(&QueryList{Label: LabelItem, Limit: math.MaxInt})
		if err != nil {
			t.Fatalf("Failed to marshal query: %v", err)
		}
		if queryInput.Limit == nil || *queryInput.Limit != math.MaxInt32 {
			t.Errorf("Expected limit %d, got %v", math.MaxInt32, queryInput.Limit)
		}
	})
}

func TestLimit32(t *testing.T) {
	tests := []struct {
		in   int
		want *int32
	}{
		{0, nil},
		{-1, nil},
		{25, aws.Int32(25)},
		{math.MaxInt32, aws.Int32(math.MaxInt32)},
		{math.MaxInt, aws.Int32(math.MaxInt32)},
	}

	for _, tt := range tests {
		got := limit32(tt.in)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("limit32(%d) = %v, want %v", tt.in, aws.ToInt32(got), aws.ToInt32(tt.want))
		}
	}
}

func TestQueryEntity(t *testing.T) {
	table := NewTable("test-table")

	t.Run("reviews of customer", func(t *testing.T) {
		queryInput, err := table.MarshalQuery(reviewsOfCustomer(5, "#"))
		if err != nil {
			t.Fatalf("Failed to marshal query: %v", err)
		}

		if queryInput.IndexName != nil {
			t.Errorf("Expected table query, got index %s", *queryInput.IndexName)
		}
		vals := values(t, queryInput.ExpressionAttributeValues)
		if !vals["customer#5"] || !vals["item#"] {
			t.Errorf("Expected customer#5 and item# values, got %v", vals)
		}
	})

	t.Run("invalid source", func(t *testing.T) {
		if _, err := table.MarshalQuery(&QueryEntity{Source: &Customer{}}); err == nil {
			t.Error("Expected error for invalid source")
		}
	})
}

func TestReviewsOfItemQuery(t *testing.T) {
	table := NewTable("test-table")

	queryInput, err := table.MarshalQuery(reviewsOfItem(12, "#"))
	if err != nil {
		t.Fatalf("Failed to marshal query: %v", err)
	}

	if aws.ToString(queryInput.IndexName) != "ref-index" {
		t.Errorf("Expected ref-index, got %s", aws.ToString(queryInput.IndexName))
	}
	vals := values(t, queryInput.ExpressionAttributeValues)
	if !vals[LabelReview] {
		t.Errorf("Expected label value %s, got %v", LabelReview, vals)
	}
	if !vals["item#00000000000000000012#"] {
		t.Errorf("Expected padded item prefix, got %v", vals)
	}
}

func TestQueryUseRefIndex(t *testing.T) {
	if !(QueryList{}).UseRefIndex() {
		t.Error("Expected QueryList to use the ref index")
	}
	if (QueryEntity{}).UseRefIndex() {
		t.Error("Expected QueryEntity to use the table")
	}
}
