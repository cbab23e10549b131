package dynamock

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
)

var (
	reEquals     = regexp.MustCompile(`(#\w+)\s*=\s*(:\w+)`)
	reBeginsWith = regexp.MustCompile(`begins_with\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)`)
)

// MemoryClient is an in-memory table that understands the requests built by
// reviewmap.Table: primary key and ref index queries with equality and
// begins_with key conditions, condition expressions over attribute
// existence and comparisons, SET/ADD/REMOVE updates, batch writes, and
// all-or-nothing transactions.
//
// It is a test double, not an emulator. Any other expression is rejected.
type MemoryClient struct {
	mu     sync.Mutex
	tables map[string]map[string]reviewmap.Record

	// RefIndexName is the index queried on label and gsi1_sk. Default "ref-index".
	RefIndexName string
}

var _ reviewmap.DynamoDBClient = (*MemoryClient)(nil)

// NewMemoryClient returns an empty in-memory table client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		tables:       make(map[string]map[string]reviewmap.Record),
		RefIndexName: "ref-index",
	}
}

// Records returns a copy of every record of table ordered by hk and sk.
func (m *MemoryClient) Records(table string) []reviewmap.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]reviewmap.Record, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		records = append(records, copyRecord(r))
	}
	slices.SortFunc(records, func(a, b reviewmap.Record) int {
		return strings.Compare(recordKey(a), recordKey(b))
	})
	return records
}

func (m *MemoryClient) table(name *string) map[string]reviewmap.Record {
	t, ok := m.tables[aws.ToString(name)]
	if !ok {
		t = make(map[string]reviewmap.Record)
		m.tables[aws.ToString(name)] = t
	}
	return t
}

// CreateTable registers an empty table. Tables are also created implicitly by
// the first write, so creating one that was already written to fails.
func (m *MemoryClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := aws.ToString(params.TableName)
	if _, ok := m.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	m.tables[name] = make(map[string]reviewmap.Record)
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (m *MemoryClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(params.TableName)
	key := recordKey(params.Item)
	expr := expression{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	if ok, err := expr.holds(aws.ToString(params.ConditionExpression), t[key]); err != nil {
		return nil, err
	} else if !ok {
		return nil, conditionFailed(t[key], params.ReturnValuesOnConditionCheckFailure)
	}
	t[key] = copyRecord(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.table(params.TableName)[recordKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyRecord(record)}, nil
}

func (m *MemoryClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(params.TableName)
	key := recordKey(params.Key)
	expr := expression{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	if ok, err := expr.holds(aws.ToString(params.ConditionExpression), t[key]); err != nil {
		return nil, err
	} else if !ok {
		return nil, conditionFailed(t[key], params.ReturnValuesOnConditionCheckFailure)
	}
	delete(t, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

// UpdateItem applies the update to the row, creating it from the key when
// it does not exist and the condition allows.
func (m *MemoryClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(params.TableName)
	key := recordKey(params.Key)
	expr := expression{names: params.ExpressionAttributeNames, values: params.ExpressionAttributeValues}
	if ok, err := expr.holds(aws.ToString(params.ConditionExpression), t[key]); err != nil {
		return nil, err
	} else if !ok {
		return nil, conditionFailed(t[key], params.ReturnValuesOnConditionCheckFailure)
	}

	record := copyRecord(params.Key)
	if current, ok := t[key]; ok {
		record = copyRecord(current)
	}
	changed, err := expr.apply(aws.ToString(params.UpdateExpression), record)
	if err != nil {
		return nil, err
	}
	t[key] = record

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueUpdatedNew:
		out.Attributes = make(reviewmap.Record, len(changed))
		for _, name := range changed {
			if av, ok := record[name]; ok {
				out.Attributes[name] = av
			}
		}
	case types.ReturnValueAllNew:
		out.Attributes = copyRecord(record)
	}
	return out, nil
}

func (m *MemoryClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, requests := range params.RequestItems {
		t := m.table(aws.String(name))
		for _, req := range requests {
			switch {
			case req.PutRequest != nil:
				t[recordKey(req.PutRequest.Item)] = copyRecord(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				delete(t, recordKey(req.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// TransactWriteItems evaluates every condition before applying any write.
// When a condition fails, the returned TransactionCanceledException carries
// one reason per transact item.
func (m *MemoryClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		reasons = make([]types.CancellationReason, len(params.TransactItems))
		failed  bool
	)

	for i, item := range params.TransactItems {
		var (
			table *string
			key   reviewmap.Record
			cond  *string
			expr  expression
		)
		switch {
		case item.ConditionCheck != nil:
			c := item.ConditionCheck
			table, key, cond = c.TableName, c.Key, c.ConditionExpression
			expr = expression{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		case item.Put != nil:
			c := item.Put
			table, key, cond = c.TableName, c.Item, c.ConditionExpression
			expr = expression{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		case item.Delete != nil:
			c := item.Delete
			table, key, cond = c.TableName, c.Key, c.ConditionExpression
			expr = expression{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		case item.Update != nil:
			c := item.Update
			table, key, cond = c.TableName, c.Key, c.ConditionExpression
			expr = expression{names: c.ExpressionAttributeNames, values: c.ExpressionAttributeValues}
		default:
			return nil, errors.New("dynamock: unsupported transact item")
		}

		ok, err := expr.holds(aws.ToString(cond), m.table(table)[recordKey(key)])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			continue
		}
		failed = true
		reasons[i] = types.CancellationReason{
			Code:    aws.String("ConditionalCheckFailed"),
			Message: aws.String("The conditional request failed"),
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// Updates are applied to copies first so that an invalid update
	// expression leaves every row untouched.
	updated := make(map[int]reviewmap.Record)
	for i, item := range params.TransactItems {
		if u := item.Update; u != nil {
			record := copyRecord(u.Key)
			if current, ok := m.table(u.TableName)[recordKey(u.Key)]; ok {
				record = copyRecord(current)
			}
			expr := expression{names: u.ExpressionAttributeNames, values: u.ExpressionAttributeValues}
			if _, err := expr.apply(aws.ToString(u.UpdateExpression), record); err != nil {
				return nil, err
			}
			updated[i] = record
		}
	}

	for i, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			m.table(item.Put.TableName)[recordKey(item.Put.Item)] = copyRecord(item.Put.Item)
		case item.Delete != nil:
			delete(m.table(item.Delete.TableName), recordKey(item.Delete.Key))
		case item.Update != nil:
			m.table(item.Update.TableName)[recordKey(item.Update.Key)] = updated[i]
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	partitionAttr, sortAttr := reviewmap.AttributeNameSource, reviewmap.AttributeNameTarget
	useIndex := aws.ToString(params.IndexName) != ""
	if useIndex {
		if aws.ToString(params.IndexName) != m.RefIndexName {
			return nil, fmt.Errorf("dynamock: unknown index %q", aws.ToString(params.IndexName))
		}
		partitionAttr, sortAttr = reviewmap.AttributeNameLabel, reviewmap.AttributeNameRefSortKey
	}

	cond, err := parseKeyCondition(params)
	if err != nil {
		return nil, err
	}
	if cond.equalsAttr != partitionAttr {
		return nil, fmt.Errorf("dynamock: key condition must match %s, got %s", partitionAttr, cond.equalsAttr)
	}
	if cond.prefixAttr != "" && cond.prefixAttr != sortAttr {
		return nil, fmt.Errorf("dynamock: begins_with must apply to %s, got %s", sortAttr, cond.prefixAttr)
	}

	var matches []reviewmap.Record
	for _, record := range m.table(params.TableName) {
		pk, ok := stringAttr(record, partitionAttr)
		if !ok || pk != cond.equals {
			continue
		}
		sk, ok := stringAttr(record, sortAttr)
		if !ok || !strings.HasPrefix(sk, cond.prefix) {
			continue
		}
		matches = append(matches, record)
	}

	order := func(r reviewmap.Record) string {
		sk, _ := stringAttr(r, sortAttr)
		return sk + "\x00" + recordKey(r)
	}

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	slices.SortFunc(matches, func(a, b reviewmap.Record) int {
		if forward {
			return strings.Compare(order(a), order(b))
		}
		return strings.Compare(order(b), order(a))
	})

	if len(params.ExclusiveStartKey) > 0 {
		start := order(params.ExclusiveStartKey)
		i := slices.IndexFunc(matches, func(r reviewmap.Record) bool {
			if forward {
				return order(r) > start
			}
			return order(r) < start
		})
		if i < 0 {
			i = len(matches)
		}
		matches = matches[i:]
	}

	out := &dynamodb.QueryOutput{}
	if limit := int(aws.ToInt32(params.Limit)); limit > 0 && len(matches) > limit {
		matches = matches[:limit]
		last := matches[limit-1]
		out.LastEvaluatedKey = reviewmap.Record{
			reviewmap.AttributeNameSource: last[reviewmap.AttributeNameSource],
			reviewmap.AttributeNameTarget: last[reviewmap.AttributeNameTarget],
		}
		if useIndex {
			out.LastEvaluatedKey[partitionAttr] = last[partitionAttr]
			out.LastEvaluatedKey[sortAttr] = last[sortAttr]
		}
	}

	for _, r := range matches {
		out.Items = append(out.Items, copyRecord(r))
	}
	return out, nil
}

type keyCondition struct {
	equalsAttr string
	equals     string
	prefixAttr string
	prefix     string
}

func parseKeyCondition(params *dynamodb.QueryInput) (keyCondition, error) {
	var (
		cond keyCondition
		expr = aws.ToString(params.KeyConditionExpression)
	)

	value := func(alias string) (string, error) {
		s, ok := params.ExpressionAttributeValues[alias].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("dynamock: value %s must be a string", alias)
		}
		return s.Value, nil
	}

	eq := reEquals.FindStringSubmatch(expr)
	if eq == nil {
		return cond, fmt.Errorf("dynamock: unsupported key condition %q", expr)
	}
	cond.equalsAttr = params.ExpressionAttributeNames[eq[1]]

	var err error
	if cond.equals, err = value(eq[2]); err != nil {
		return cond, err
	}

	if bw := reBeginsWith.FindStringSubmatch(expr); bw != nil {
		cond.prefixAttr = params.ExpressionAttributeNames[bw[1]]
		if cond.prefix, err = value(bw[2]); err != nil {
			return cond, err
		}
	}
	return cond, nil
}

// conditionFailed returns the error of a failed condition, carrying the
// current row when the request asked for it.
func conditionFailed(current reviewmap.Record, rv types.ReturnValuesOnConditionCheckFailure) error {
	err := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld && current != nil {
		err.Item = copyRecord(current)
	}
	return err
}

func recordKey(r reviewmap.Record) string {
	hk, _ := stringAttr(r, reviewmap.AttributeNameSource)
	sk, _ := stringAttr(r, reviewmap.AttributeNameTarget)
	return hk + "\x00" + sk
}

func stringAttr(r reviewmap.Record, name string) (string, bool) {
	s, ok := r[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func number(av types.AttributeValue) (int64, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamock: expected a number, got %T", av)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func copyRecord(r reviewmap.Record) reviewmap.Record {
	out := make(reviewmap.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
