package reviewmap

import (
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// QueryMarshaler can marshal input into a dynamodb query request.
type QueryMarshaler interface {
	MarshalQuery(*MarshalOptions) (*dynamodb.QueryInput, error)
	UseRefIndex() bool
}

// QueryList is a QueryMarshaler that searches the ref index for rows with a
// specific label, such as all customers or all reviews of an item.
type QueryList struct {
	Label          string                         // The row label
	RefSortFilter  expression.KeyConditionBuilder // Optional filter on the ref sort key
	Limit          int                            // Maximum number of items to return
	StartKey       Record                         // Exclusive start key for pagination
	SortDescending bool                           // Scan direction (default: false)
}

// MarshalQuery implements QueryMarshaler for QueryList.
func (q *QueryList) MarshalQuery(opts *MarshalOptions) (*dynamodb.QueryInput, error) {
	keyCondition := expression.Key(AttributeNameLabel).Equal(expression.Value(q.Label))

	if q.RefSortFilter.IsSet() {
		keyCondition = keyCondition.And(q.RefSortFilter)
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.SortDescending),
	}

	input.Limit = limit32(q.Limit)

	if q.StartKey != nil {
		input.ExclusiveStartKey = q.StartKey
	}

	return input, nil
}

// limit32 converts a page size into a query limit, clamped to the int32
// range. Zero or less means no limit.
func limit32(n int) *int32 {
	if n <= 0 {
		return nil
	}
	if n > math.MaxInt32 {
		return aws.Int32(math.MaxInt32)
	}
	return aws.Int32(int32(n))
}

// QueryEntity is a QueryMarshaler that searches within an entity's partition,
// such as the reviews written by a customer. Results come back in sort key
// order; callers page through them with the query paginator.
type QueryEntity struct {
	Source       Marshaler                      // The source entity
	TargetFilter expression.KeyConditionBuilder // Optional filter on the table sort key
}

// MarshalQuery implements QueryMarshaler for QueryEntity.
func (q *QueryEntity) MarshalQuery(opts *MarshalOptions) (*dynamodb.QueryInput, error) {
	sourceOpts := *opts
	if err := q.Source.MarshalSelf(&sourceOpts); err != nil {
		return nil, fmt.Errorf("failed to marshal source: %w", err)
	}

	keyCondition := expression.Key(AttributeNameSource).Equal(expression.Value(sourceOpts.sourceKey()))

	if q.TargetFilter.IsSet() {
		keyCondition = keyCondition.And(q.TargetFilter)
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &dynamodb.QueryInput{
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

func (QueryEntity) UseRefIndex() bool { return false }
func (QueryList) UseRefIndex() bool   { return true }

// reviewsOfCustomer selects the review rows in a customer's partition.
func reviewsOfCustomer(customerID int64, delim string) *QueryEntity {
	return &QueryEntity{
		Source:       &Customer{ID: customerID},
		TargetFilter: expression.Key(AttributeNameTarget).BeginsWith(PrefixItem + delim),
	}
}

// reviewsOfItem selects the review rows of an item on the ref index.
func reviewsOfItem(itemID int64, delim string) *QueryList {
	return &QueryList{
		Label:         LabelReview,
		RefSortFilter: expression.Key(AttributeNameRefSortKey).BeginsWith(itemRefPrefix(itemID, delim)),
	}
}
