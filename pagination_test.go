package reviewmap

import (
	"context"
	"encoding/base64"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestPagination(t *testing.T) {
	table := NewTable("test-table")
	client := newMockDynamoDBClient()
	paginator := table.Paginator(client)
	ctx := context.Background()

	t.Run("nil lastkey returns empty cursor", func(t *testing.T) {
		cursor, err := paginator.PageCursor(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to create cursor: %v", err)
		}
		if cursor != "" {
			t.Errorf("Expected empty cursor for nil lastkey, got %s", cursor)
		}
	})

	t.Run("valid lastkey round trips", func(t *testing.T) {
		lastkey := Record{
			AttributeNameSource:     &types.AttributeValueMemberS{Value: "customer#3"},
			AttributeNameTarget:     &types.AttributeValueMemberS{Value: "customer#3"},
			AttributeNameLabel:      &types.AttributeValueMemberS{Value: LabelCustomer},
			AttributeNameRefSortKey: &types.AttributeValueMemberS{Value: sortID(3)},
		}

		cursor, err := paginator.PageCursor(ctx, lastkey)
		if err != nil {
			t.Fatalf("Failed to create cursor: %v", err)
		}
		if cursor == "" {
			t.Fatal("Expected non-empty cursor for valid lastkey")
		}

		startKey, err := paginator.StartKey(ctx, cursor)
		if err != nil {
			t.Fatalf("Failed to get start key: %v", err)
		}
		if !reflect.DeepEqual(startKey, lastkey) {
			t.Errorf("Expected start key %v, got %v", lastkey, startKey)
		}
	})

	t.Run("cursor row expires", func(t *testing.T) {
		lastkey := Record{
			AttributeNameSource: &types.AttributeValueMemberS{Value: "item#1"},
			AttributeNameTarget: &types.AttributeValueMemberS{Value: "item#1"},
		}

		cursor, err := paginator.PageCursor(ctx, lastkey)
		if err != nil {
			t.Fatalf("Failed to create cursor: %v", err)
		}

		var found bool
		for key, item := range client.items {
			if !strings.HasPrefix(key, PrefixPage+"#"+cursor) {
				continue
			}
			found = true
			expires, ok := item[AttributeNameExpires].(*types.AttributeValueMemberN)
			if !ok {
				t.Fatalf("Expected numeric expires attribute, got %T", item[AttributeNameExpires])
			}
			if expires.Value == "" || strings.HasPrefix(expires.Value, "-") {
				t.Errorf("Expected future expiry, got %s", expires.Value)
			}
		}
		if !found {
			t.Error("Expected cursor row to be stored")
		}
	})

	t.Run("empty cursor returns nil start key", func(t *testing.T) {
		startKey, err := paginator.StartKey(ctx, "")
		if err != nil {
			t.Fatalf("Failed to get start key: %v", err)
		}
		if startKey != nil {
			t.Error("Expected nil key for empty cursor")
		}
	})

	t.Run("unknown cursor returns nil", func(t *testing.T) {
		startKey, err := paginator.StartKey(ctx, "non-existent-cursor")
		if err != nil {
			t.Errorf("Unexpected error for unknown cursor: %v", err)
		}
		if startKey != nil {
			t.Error("Expected nil key for unknown cursor")
		}
	})

	t.Run("cursor with empty key data returns nil", func(t *testing.T) {
		putInput, err := table.MarshalPut(&PageCursor{Cursor: "empty-cursor", Key: []byte{}})
		if err != nil {
			t.Fatalf("Failed to marshal empty cursor: %v", err)
		}
		if _, err = client.PutItem(ctx, putInput); err != nil {
			t.Fatalf("Failed to store empty cursor: %v", err)
		}

		startKey, err := paginator.StartKey(ctx, "empty-cursor")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if startKey != nil {
			t.Error("Expected nil key for empty key data")
		}
	})

	t.Run("corrupt key data", func(t *testing.T) {
		putInput, err := table.MarshalPut(&PageCursor{Cursor: "corrupt", Key: []byte("not gob")})
		if err != nil {
			t.Fatalf("Failed to marshal cursor: %v", err)
		}
		if _, err = client.PutItem(ctx, putInput); err != nil {
			t.Fatalf("Failed to store cursor: %v", err)
		}

		if _, err := paginator.StartKey(ctx, "corrupt"); err == nil {
			t.Error("Expected decode error")
		}
	})
}

func TestPageCursorRow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	row, err := MarshalRow(&PageCursor{Cursor: "abc"}, func(opts *MarshalOptions) {
		opts.Tick = fixedClock(now)
		opts.TimeToLive = 24 * time.Hour
	})
	if err != nil {
		t.Fatalf("Failed to marshal cursor: %v", err)
	}

	if row.Source != "page#abc" || row.Target != "page#abc" {
		t.Errorf("Expected page#abc self row, got %s/%s", row.Source, row.Target)
	}
	if row.Label != LabelPage {
		t.Errorf("Expected label %s, got %s", LabelPage, row.Label)
	}
	if !row.Expires.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("Expected expiry a day later, got %v", row.Expires)
	}
}

func TestGenerateCursor(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 10; i++ {
		cursor, err := generateCursor()
		if err != nil {
			t.Fatalf("Failed to generate cursor: %v", err)
		}
		if seen[cursor] {
			t.Errorf("Duplicate cursor %s", cursor)
		}
		seen[cursor] = true

		if _, err := base64.URLEncoding.DecodeString(cursor); err != nil {
			t.Errorf("Expected base64 cursor, got %s: %v", cursor, err)
		}
	}
}
