// Package reviewmap provides a relational data layer for customers, items,
// and the reviews that join them, stored in a single DynamoDB table.
package reviewmap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNotFound is returned when a row does not exist in the table.
var ErrNotFound = errors.New("entity not found")

// Clock is a function type that returns the current time for dependency injection.
type Clock func() time.Time

// DefaultClock returns the current UTC time.
func DefaultClock() time.Time {
	return time.Now().UTC()
}

// Key prefixes and labels for each row kind.
const (
	PrefixCustomer = "customer"
	PrefixItem     = "item"
	PrefixSequence = "sequence"
	PrefixPage     = "page"

	LabelCustomer = "customer"
	LabelItem     = "item"
	LabelReview   = "review"
	LabelSequence = "sequence"
	LabelPage     = "page"
)

// MarshalOptions contains configuration options for marshaling entities to rows.
type MarshalOptions struct {
	SourceID     string        // The entity source identifier
	SourcePrefix string        // The entity source prefix, usually the entity kind
	TargetID     string        // The entity target identifier
	TargetPrefix string        // The entity target prefix
	TimeToLive   time.Duration // The lifetime of the row
	Label        string        // The row label
	Created      time.Time     // Creation timestamp
	Updated      time.Time     // Modification timestamp
	RefSortKey   string        // Sort key of the row on the ref index
	Tick         Clock         // Function to get current time for timestamps
	KeyDelimiter string        // Delimiter to join id and prefix into hash and sort keys
}

// WithSelfTarget configures the MarshalOptions for a self row, where the source
// and target keys are the same. Customers and items are stored as self rows.
func (mo *MarshalOptions) WithSelfTarget(prefix, id string) *MarshalOptions {
	mo.SourceID = id
	mo.TargetID = id
	mo.SourcePrefix = prefix
	mo.TargetPrefix = prefix
	mo.Label = prefix
	return mo
}

func (mo *MarshalOptions) apply(opts []func(*MarshalOptions)) {
	for _, opt := range opts {
		opt(mo)
	}
}

func (mo MarshalOptions) sourceKey() string {
	return mo.SourcePrefix + mo.KeyDelimiter + mo.SourceID
}

func (mo MarshalOptions) targetKey() string {
	return mo.TargetPrefix + mo.KeyDelimiter + mo.TargetID
}

func newMarshalOptions(opts ...func(*MarshalOptions)) MarshalOptions {
	options := MarshalOptions{
		Tick:         DefaultClock,
		KeyDelimiter: "#",
	}
	options.apply(opts)
	return options
}

// Row is a single record of the table. Customers and items are self rows
// (source == target); a review is a row from its customer to its item, so
// the composite key (customer_id, item_id) is the table's primary key.
//
//	| hk         | sk         | label    | gsi1_sk                  |
//	| ========== | ========== | ======== | ======================== |
//	| customer#1 | customer#1 | customer | 00000000000000000001     |
//	| item#1     | item#1     | item     | 00000000000000000001     |
//	| customer#1 | item#1     | review   | item#000..01#customer#000..01 |
//
// Reviews of a customer are found in the customer's partition; reviews of
// an item are found on the ref index under the "review" label.
//
// Customer and item rows also count the reviews that reference them in the
// reviews attribute. The count is maintained only by review transactions
// and guards deletes.
type Row struct {
	Source    string    `dynamodbav:"hk"`
	Target    string    `dynamodbav:"sk"`
	Label     string    `dynamodbav:"label"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	Expires   time.Time `dynamodbav:"expires,unixtime"`
	Data      any       `dynamodbav:"data,omitempty"`
	GSI1SK    string    `dynamodbav:"gsi1_sk,omitempty"`
	Reviews   int64     `dynamodbav:"reviews,omitempty"`
}

const (
	AttributeNameSource     = "hk"
	AttributeNameTarget     = "sk"
	AttributeNameLabel      = "label"
	AttributeNameCreated    = "created_at"
	AttributeNameUpdated    = "updated_at"
	AttributeNameExpires    = "expires"
	AttributeNameData       = "data"
	AttributeNameRefSortKey = "gsi1_sk"
	AttributeNameSequence   = "seq"
	AttributeNameReviews    = "reviews"
)

// NewRow builds a row holding data with the keys described by opts.
func NewRow(data any, opts MarshalOptions) Row {
	if opts.Created.IsZero() {
		opts.Created = opts.Tick()
	}
	if opts.Updated.IsZero() {
		opts.Updated = opts.Tick()
	}

	row := Row{
		Source:    opts.sourceKey(),
		Target:    opts.targetKey(),
		Label:     opts.Label,
		CreatedAt: opts.Created,
		UpdatedAt: opts.Updated,
		Data:      data,
		GSI1SK:    opts.RefSortKey,
	}

	if opts.TimeToLive > 0 {
		row.Expires = opts.Created.Add(opts.TimeToLive)
	}

	return row
}

// Marshaler can marshal itself into row options.
type Marshaler interface {
	// MarshalSelf is invoked by [MarshalRow]. Implementers should set the
	// key fields and label of the provided options.
	MarshalSelf(*MarshalOptions) error
}

// MarshalRow marshals the input into its table row.
func MarshalRow(in Marshaler, opts ...func(*MarshalOptions)) (Row, error) {
	marshalOpts := newMarshalOptions(opts...)

	if err := in.MarshalSelf(&marshalOpts); err != nil {
		return Row{}, fmt.Errorf("failed to marshal self: %w", err)
	}

	return NewRow(in, marshalOpts), nil
}

// Record is an alias for the dynamodb attribute value map.
type Record = map[string]types.AttributeValue

// UnmarshalRow extracts the data out of record into out, then unmarshals the
// entire record to a [Row].
func UnmarshalRow(record Record, out any) (Row, error) {
	var row Row
	if err := attributevalue.UnmarshalMap(record, &row); err != nil {
		return row, fmt.Errorf("failed to unmarshal row: %w", err)
	}

	data, ok := record[AttributeNameData]
	if !ok {
		return row, fmt.Errorf("data attribute not found")
	}
	if err := attributevalue.Unmarshal(data, out); err != nil {
		return row, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return row, nil
}

// UnmarshalList calls [UnmarshalRow] on each record and appends the result to out.
func UnmarshalList[T any](records []Record, out *[]T) ([]Row, error) {
	var rows []Row

	for i, record := range records {
		var value T
		row, err := UnmarshalRow(record, &value)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		*out = append(*out, value)
		rows = append(rows, row)
	}

	return rows, nil
}

// formatID renders an entity id as used in hash and sort keys.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// keyString renders the primary key of in for error messages and logs:
// "customer#1" for self rows, "customer#1/item#2" otherwise.
func keyString(in Marshaler, delim string) string {
	opts := newMarshalOptions(func(mo *MarshalOptions) { mo.KeyDelimiter = delim })
	if err := in.MarshalSelf(&opts); err != nil {
		return "?"
	}
	if opts.sourceKey() == opts.targetKey() {
		return opts.sourceKey()
	}
	return opts.sourceKey() + "/" + opts.targetKey()
}

// sortID renders an entity id so that lexical order on the ref index
// matches numeric order.
func sortID(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// DynamoDBClient is the subset of the DynamoDB API used by the store.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}
