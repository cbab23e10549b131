package reviewmap

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func init() {
	gob.Register(map[string]types.AttributeValue{})
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberBS{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberBOOL{})
}

// Paginator converts last evaluated keys into opaque cursors for callers of
// the list operations, and cursors back into start keys.
type Paginator interface {
	// PageCursor generates a cursor from the provided last key. Implementors
	// should return an empty cursor if the key is nil or empty.
	PageCursor(ctx context.Context, lastkey Record) (string, error)
	// StartKey resolves a cursor into a start key. Implementors should return
	// a nil key if the cursor is an empty string.
	StartKey(ctx context.Context, cursor string) (Record, error)
}

// TablePaginator implements Paginator by storing start keys in the same table.
type TablePaginator struct {
	table  *Table
	client DynamoDBClient
}

// PageCursor is the row that stores a gob encoded last evaluated key under a
// random cursor id. It expires after the table's PaginationTTL.
type PageCursor struct {
	Cursor string
	Key    []byte
}

// MarshalSelf implements Marshaler with a self row labelled "page".
func (p *PageCursor) MarshalSelf(opts *MarshalOptions) error {
	opts.WithSelfTarget(PrefixPage, p.Cursor)
	opts.Label = LabelPage
	opts.RefSortKey = p.Cursor
	return nil
}

// PageCursor implements Paginator.
func (t *TablePaginator) PageCursor(ctx context.Context, lastkey Record) (string, error) {
	if len(lastkey) == 0 {
		return "", nil
	}

	cursor, err := generateCursor()
	if err != nil {
		return "", fmt.Errorf("failed to generate cursor: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lastkey); err != nil {
		return "", fmt.Errorf("failed to encode last key: %w", err)
	}

	putInput, err := t.table.MarshalPut(&PageCursor{Cursor: cursor, Key: buf.Bytes()}, func(opts *MarshalOptions) {
		opts.TimeToLive = t.table.PaginationTTL
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal page cursor: %w", err)
	}

	if _, err = t.client.PutItem(ctx, putInput); err != nil {
		return "", fmt.Errorf("failed to store page cursor: %w", err)
	}

	return cursor, nil
}

// StartKey implements Paginator. An unknown or expired cursor yields a nil key.
func (t *TablePaginator) StartKey(ctx context.Context, cursor string) (Record, error) {
	if cursor == "" {
		return nil, nil
	}

	pageCursor := &PageCursor{Cursor: cursor}

	getInput, err := t.table.MarshalGet(pageCursor)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal get request: %w", err)
	}

	result, err := t.client.GetItem(ctx, getInput)
	if err != nil {
		return nil, fmt.Errorf("failed to get page cursor: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	if _, err = UnmarshalRow(result.Item, pageCursor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal page cursor: %w", err)
	}

	if len(pageCursor.Key) == 0 {
		return nil, nil
	}

	var keyData map[string]types.AttributeValue
	if err := gob.NewDecoder(bytes.NewBuffer(pageCursor.Key)).Decode(&keyData); err != nil {
		return nil, fmt.Errorf("failed to decode last key: %w", err)
	}

	return keyData, nil
}

// Paginator returns a Paginator backed by the table.
func (t *Table) Paginator(client DynamoDBClient) Paginator {
	return &TablePaginator{
		table:  t,
		client: client,
	}
}

// generateCursor creates a unique cursor from the current time and random bytes.
func generateCursor() (string, error) {
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	combined := fmt.Sprintf("%d_%s", time.Now().UnixNano(), base64.URLEncoding.EncodeToString(randomBytes))
	return base64.URLEncoding.EncodeToString([]byte(combined)), nil
}
