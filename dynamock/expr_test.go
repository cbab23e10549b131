package dynamock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
)

func TestExpressionHolds(t *testing.T) {
	expr := expression{
		names: map[string]string{"#hk": "hk", "#n": "reviews", "#sk": "sk"},
		values: map[string]types.AttributeValue{
			":0":   &types.AttributeValueMemberN{Value: "0"},
			":2":   &types.AttributeValueMemberN{Value: "2"},
			":pre": &types.AttributeValueMemberS{Value: "item#"},
		},
	}

	row := reviewmap.Record{
		"hk":      &types.AttributeValueMemberS{Value: "customer#1"},
		"sk":      &types.AttributeValueMemberS{Value: "item#3"},
		"reviews": &types.AttributeValueMemberN{Value: "2"},
	}
	unreviewed := reviewmap.Record{
		"hk": &types.AttributeValueMemberS{Value: "item#3"},
		"sk": &types.AttributeValueMemberS{Value: "item#3"},
	}

	unreferenced := "(attribute_exists (#hk)) AND ((attribute_not_exists (#n)) OR (#n = :0))"

	tests := []struct {
		name   string
		cond   string
		record reviewmap.Record
		want   bool
	}{
		{"empty", "", nil, true},
		{"exists", "attribute_exists (#hk)", row, true},
		{"exists on missing row", "attribute_exists (#hk)", nil, false},
		{"not exists on missing row", "attribute_not_exists (#hk)", nil, true},
		{"unreferenced with reviews", unreferenced, row, false},
		{"unreferenced without count", unreferenced, unreviewed, true},
		{"unreferenced missing row", unreferenced, nil, false},
		{"equal", "#n = :2", row, true},
		{"not equal", "#n <> :2", row, false},
		{"greater", "#n > :0", row, true},
		{"compare missing", "#n >= :0", unreviewed, false},
		{"begins with", "begins_with (#sk, :pre)", row, true},
		{"not", "NOT (attribute_exists (#n))", unreviewed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expr.holds(tt.cond, tt.record)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.cond, got)
			}
		})
	}

	t.Run("errors", func(t *testing.T) {
		for _, cond := range []string{"#missing = :0", "#n = :missing", "contains (#sk, :pre)", "(#n = :0", "#n = :0 :2"} {
			if _, err := expr.holds(cond, row); err == nil {
				t.Errorf("Expected error for %q", cond)
			}
		}
	})
}

func TestExpressionApply(t *testing.T) {
	expr := expression{
		names: map[string]string{"#d": "data", "#n": "reviews", "#u": "updated_at"},
		values: map[string]types.AttributeValue{
			":d":   &types.AttributeValueMemberS{Value: "new"},
			":one": &types.AttributeValueMemberN{Value: "1"},
			":neg": &types.AttributeValueMemberN{Value: "-1"},
		},
	}

	record := reviewmap.Record{"data": &types.AttributeValueMemberS{Value: "old"}}

	changed, err := expr.apply("SET #d = :d, #u = :d\nADD #n :one\n", record)
	if err != nil {
		t.Fatalf("Failed to apply: %v", err)
	}
	if len(changed) != 3 {
		t.Errorf("Expected 3 changed attributes, got %v", changed)
	}
	if record["data"].(*types.AttributeValueMemberS).Value != "new" {
		t.Errorf("Expected data to be set, got %v", record["data"])
	}
	if record["reviews"].(*types.AttributeValueMemberN).Value != "1" {
		t.Errorf("Expected count 1, got %v", record["reviews"])
	}

	if _, err := expr.apply("ADD #n :neg", record); err != nil {
		t.Fatalf("Failed to apply: %v", err)
	}
	if record["reviews"].(*types.AttributeValueMemberN).Value != "0" {
		t.Errorf("Expected count 0, got %v", record["reviews"])
	}

	if _, err := expr.apply("REMOVE #u", record); err != nil {
		t.Fatalf("Failed to apply: %v", err)
	}
	if _, ok := record["updated_at"]; ok {
		t.Error("Expected updated_at to be removed")
	}

	for _, update := range []string{"", "DELETE #n :one", "SET #d = if_not_exists(#d, :d)", "ADD #d :d"} {
		if _, err := expr.apply(update, reviewmap.Record{"data": &types.AttributeValueMemberS{Value: "x"}}); err == nil {
			t.Errorf("Expected error for %q", update)
		}
	}
}
