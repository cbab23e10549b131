package reviewmap

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// MaxBatchSize is the maximum number of items allowed in a DynamoDB batch operation.
	MaxBatchSize = 25
)

// Table contains DynamoDB table configuration.
type Table struct {
	TableName     string        // Main table name
	RefIndexName  string        // Ref index name (maps to gsi1_sk attribute)
	KeyDelimiter  string        // Delimiter for hash and sort keys. Default is '#'.
	PaginationTTL time.Duration // TTL for pagination cursors stored in table
	Tick          Clock         // Clock for row timestamps
}

// NewTable creates a new Table with default configuration.
func NewTable(tableName string) *Table {
	return &Table{
		TableName:     tableName,
		RefIndexName:  "ref-index",
		KeyDelimiter:  "#",
		PaginationTTL: 24 * time.Hour,
		Tick:          DefaultClock,
	}
}

func (t *Table) defaults(opts []func(*MarshalOptions)) func(*MarshalOptions) {
	return func(mo *MarshalOptions) {
		mo.KeyDelimiter = t.KeyDelimiter
		if t.Tick != nil {
			mo.Tick = t.Tick
		}
		mo.apply(opts)
	}
}

// marshalKey returns the primary key of the row for in.
func (t *Table) marshalKey(in Marshaler, opts ...func(*MarshalOptions)) (Record, MarshalOptions, error) {
	marshalOpts := newMarshalOptions(t.defaults(opts))

	if err := in.MarshalSelf(&marshalOpts); err != nil {
		return nil, marshalOpts, fmt.Errorf("failed to marshal self: %w", err)
	}

	key := Record{
		AttributeNameSource: &types.AttributeValueMemberS{Value: marshalOpts.sourceKey()},
		AttributeNameTarget: &types.AttributeValueMemberS{Value: marshalOpts.targetKey()},
	}
	return key, marshalOpts, nil
}

func (t *Table) marshalRecord(in Marshaler, opts ...func(*MarshalOptions)) (Record, error) {
	row, err := MarshalRow(in, t.defaults(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}

	record, err := attributevalue.MarshalMap(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return record, nil
}

// rowExists and rowMissing are the conditions used on writes.
func rowExists() expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(AttributeNameSource))
}

func rowMissing() expression.ConditionBuilder {
	return expression.AttributeNotExists(expression.Name(AttributeNameSource))
}

// rowUnreferenced holds for an existing row that no review counts against.
func rowUnreferenced() expression.ConditionBuilder {
	reviews := expression.Name(AttributeNameReviews)
	return rowExists().And(
		expression.AttributeNotExists(reviews).Or(reviews.Equal(expression.Value(0))),
	)
}

func buildCondition(cond expression.ConditionBuilder) (expression.Expression, error) {
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return expr, fmt.Errorf("failed to build expression: %w", err)
	}
	return expr, nil
}

// MarshalPut marshals the input into an unconditional put item request.
func (t *Table) MarshalPut(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.PutItemInput, error) {
	record, err := t.marshalRecord(in, opts...)
	if err != nil {
		return nil, err
	}

	return &dynamodb.PutItemInput{
		TableName: aws.String(t.TableName),
		Item:      record,
	}, nil
}

// MarshalCreate marshals the input into a put item request that fails if a
// row with the same key already exists.
func (t *Table) MarshalCreate(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.PutItemInput, error) {
	input, err := t.MarshalPut(in, opts...)
	if err != nil {
		return nil, err
	}

	expr, err := buildCondition(rowMissing())
	if err != nil {
		return nil, err
	}

	input.ConditionExpression = expr.Condition()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()
	return input, nil
}

// MarshalUpdate marshals the input into an update item request that sets
// the data and modification time of an existing row. Other attributes of the
// row, such as its creation time and review count, are left as stored. The
// request fails if the row does not exist.
func (t *Table) MarshalUpdate(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.UpdateItemInput, error) {
	key, _, err := t.marshalKey(in, opts...)
	if err != nil {
		return nil, err
	}

	row, err := MarshalRow(in, t.defaults(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}

	update := expression.
		Set(expression.Name(AttributeNameData), expression.Value(row.Data)).
		Set(expression.Name(AttributeNameUpdated), expression.Value(row.UpdatedAt))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(rowExists()).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// MarshalBatch marshals the inputs into batch write put requests, chunked in
// sizes of 25 or less.
func (t *Table) MarshalBatch(in []Marshaler, opts ...func(*MarshalOptions)) ([]*dynamodb.BatchWriteItemInput, error) {
	var batches []*dynamodb.BatchWriteItemInput

	for i := 0; i < len(in); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(in))

		var writeRequests []types.WriteRequest
		for _, m := range in[i:end] {
			record, err := t.marshalRecord(m, opts...)
			if err != nil {
				return nil, err
			}

			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: record},
			})
		}

		batches = append(batches, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				t.TableName: writeRequests,
			},
		})
	}

	return batches, nil
}

// MarshalGet marshals the input into a get item request for its row.
func (t *Table) MarshalGet(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.GetItemInput, error) {
	key, _, err := t.marshalKey(in, opts...)
	if err != nil {
		return nil, err
	}

	return &dynamodb.GetItemInput{
		TableName: aws.String(t.TableName),
		Key:       key,
	}, nil
}

// MarshalDelete marshals the input into a delete item request that fails if
// the row does not exist.
func (t *Table) MarshalDelete(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.DeleteItemInput, error) {
	return t.marshalConditionalDelete(in, rowExists(), opts...)
}

// MarshalDeleteUnreferenced marshals the input into a delete item request
// that fails if the row does not exist or if reviews still count against it.
// A failed request returns the stored row, so the two cases can be told
// apart.
func (t *Table) MarshalDeleteUnreferenced(in Marshaler, opts ...func(*MarshalOptions)) (*dynamodb.DeleteItemInput, error) {
	input, err := t.marshalConditionalDelete(in, rowUnreferenced(), opts...)
	if err != nil {
		return nil, err
	}
	input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	return input, nil
}

func (t *Table) marshalConditionalDelete(in Marshaler, cond expression.ConditionBuilder, opts ...func(*MarshalOptions)) (*dynamodb.DeleteItemInput, error) {
	key, _, err := t.marshalKey(in, opts...)
	if err != nil {
		return nil, err
	}

	expr, err := buildCondition(cond)
	if err != nil {
		return nil, err
	}

	return &dynamodb.DeleteItemInput{
		TableName:                 aws.String(t.TableName),
		Key:                       key,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// marshalCount builds a transact item that adds delta to the review count
// of the customer or item row at key. It fails if the row does not exist.
func (t *Table) marshalCount(key Record, delta int) (types.TransactWriteItem, error) {
	update := expression.Add(expression.Name(AttributeNameReviews), expression.Value(delta))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(rowExists()).Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
	}

	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(t.TableName),
			Key:                       key,
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// marshalCounts builds the count updates of the customer and item a review
// references, in that order.
func (t *Table) marshalCounts(review *Review, delta int, opts ...func(*MarshalOptions)) ([]types.TransactWriteItem, error) {
	customerKey, _, err := t.marshalKey(&Customer{ID: review.CustomerID}, opts...)
	if err != nil {
		return nil, err
	}

	itemKey, _, err := t.marshalKey(&Item{ID: review.ItemID}, opts...)
	if err != nil {
		return nil, err
	}

	customer, err := t.marshalCount(customerKey, delta)
	if err != nil {
		return nil, err
	}

	item, err := t.marshalCount(itemKey, delta)
	if err != nil {
		return nil, err
	}

	return []types.TransactWriteItem{customer, item}, nil
}

// MarshalCreateReview marshals a review into a transaction of three items:
//
//	0: increment of the customer's review count, only if the customer exists
//	1: increment of the item's review count, only if the item exists
//	2: put of the review row, only if the pair is not reviewed yet
//
// The transaction writes nothing when any of them fails.
func (t *Table) MarshalCreateReview(review *Review, opts ...func(*MarshalOptions)) (*dynamodb.TransactWriteItemsInput, error) {
	counts, err := t.marshalCounts(review, 1, opts...)
	if err != nil {
		return nil, err
	}

	put, err := t.MarshalCreate(review, opts...)
	if err != nil {
		return nil, err
	}

	return &dynamodb.TransactWriteItemsInput{
		TransactItems: append(counts, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 put.TableName,
				Item:                      put.Item,
				ConditionExpression:       put.ConditionExpression,
				ExpressionAttributeNames:  put.ExpressionAttributeNames,
				ExpressionAttributeValues: put.ExpressionAttributeValues,
			},
		}),
	}, nil
}

// MarshalDeleteReview marshals the removal of a review into a transaction of
// three items:
//
//	0: delete of the review row, only if it exists
//	1: decrement of the customer's review count, only if the customer exists
//	2: decrement of the item's review count, only if the item exists
func (t *Table) MarshalDeleteReview(review *Review, opts ...func(*MarshalOptions)) (*dynamodb.TransactWriteItemsInput, error) {
	del, err := t.MarshalDelete(review, opts...)
	if err != nil {
		return nil, err
	}

	counts, err := t.marshalCounts(review, -1, opts...)
	if err != nil {
		return nil, err
	}

	return &dynamodb.TransactWriteItemsInput{
		TransactItems: append([]types.TransactWriteItem{{
			Delete: &types.Delete{
				TableName:                 del.TableName,
				Key:                       del.Key,
				ConditionExpression:       del.ConditionExpression,
				ExpressionAttributeNames:  del.ExpressionAttributeNames,
				ExpressionAttributeValues: del.ExpressionAttributeValues,
			},
		}}, counts...),
	}, nil
}

// MarshalNextID marshals an update request that atomically increments the id
// counter of kind and returns the new value.
func (t *Table) MarshalNextID(kind Kind) (*dynamodb.UpdateItemInput, error) {
	key, _, err := t.marshalKey(&sequence{kind: kind})
	if err != nil {
		return nil, err
	}

	update := expression.Add(expression.Name(AttributeNameSequence), expression.Value(1))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.TableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	}, nil
}

// MarshalQuery marshals the input into a query request.
func (t *Table) MarshalQuery(in QueryMarshaler, opts ...func(*MarshalOptions)) (*dynamodb.QueryInput, error) {
	marshalOpts := newMarshalOptions(t.defaults(opts))

	input, err := in.MarshalQuery(&marshalOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	input.TableName = aws.String(t.TableName)

	if in.UseRefIndex() {
		input.IndexName = aws.String(t.RefIndexName)
	}

	return input, nil
}

// MarshalCreateTable returns the table definition: hk/sk primary key and the
// label/gsi1_sk ref index, billed on demand.
func (t *Table) MarshalCreateTable() *dynamodb.CreateTableInput {
	attr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		}
	}
	key := func(name string, kt types.KeyType) types.KeySchemaElement {
		return types.KeySchemaElement{AttributeName: aws.String(name), KeyType: kt}
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(t.TableName),
		AttributeDefinitions: []types.AttributeDefinition{
			attr(AttributeNameSource),
			attr(AttributeNameTarget),
			attr(AttributeNameLabel),
			attr(AttributeNameRefSortKey),
		},
		KeySchema: []types.KeySchemaElement{
			key(AttributeNameSource, types.KeyTypeHash),
			key(AttributeNameTarget, types.KeyTypeRange),
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(t.RefIndexName),
				KeySchema: []types.KeySchemaElement{
					key(AttributeNameLabel, types.KeyTypeHash),
					key(AttributeNameRefSortKey, types.KeyTypeRange),
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}
