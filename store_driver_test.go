package reviewmap_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
	"github.com/nisimpson/reviewmap/dynamock"
)

func newMockStore(t *testing.T) (*reviewmap.Store, *dynamock.MockClient) {
	t.Helper()
	mock := dynamock.NewMockClient(t)
	return reviewmap.NewStore(mock, reviewmap.NewTable("reviews")), mock
}

func TestStoreDriverErrors(t *testing.T) {
	ctx := context.Background()
	throttled := &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}

	t.Run("get failure is not a serialization error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return nil, throttled
		}

		_, err := reviewmap.NewSerializer(store).Serialize(ctx, &reviewmap.Customer{ID: 1})
		if errors.Is(err, reviewmap.ErrSerialization) {
			t.Errorf("Expected a driver error, got %v", err)
		}

		var pte *types.ProvisionedThroughputExceededException
		if !errors.As(err, &pte) {
			t.Fatalf("Expected ProvisionedThroughputExceededException, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to load customer customer#1") {
			t.Errorf("Expected load context in %q", err.Error())
		}
	})

	t.Run("transaction conflict passes through", func(t *testing.T) {
		store, mock := newMockStore(t)
		conflict := &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("TransactionConflict")},
				{Code: aws.String("None")},
			},
		}
		mock.TransactWriteItemsFunc = func(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, conflict
		}

		err := store.CreateReview(ctx, &reviewmap.Review{CustomerID: 1, ItemID: 2})

		var constraintErr *reviewmap.ConstraintError
		if errors.As(err, &constraintErr) {
			t.Errorf("Expected conflict to stay unmapped, got %v", constraintErr)
		}
		var txErr *types.TransactionCanceledException
		if !errors.As(err, &txErr) {
			t.Fatalf("Expected TransactionCanceledException, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to create review") {
			t.Errorf("Expected create context in %q", err.Error())
		}

		// A conflict is not a missing customer or item either.
		err = store.DeleteReview(ctx, 1, 2)
		if !errors.As(err, &txErr) || errors.Is(err, reviewmap.ErrNotFound) {
			t.Errorf("Expected unmapped conflict on delete, got %v", err)
		}
	})

	t.Run("put throttle is wrapped", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.UpdateFunc = func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return &dynamodb.UpdateItemOutput{
				Attributes: reviewmap.Record{reviewmap.AttributeNameSequence: &types.AttributeValueMemberN{Value: "7"}},
			}, nil
		}
		mock.PutFunc = func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, throttled
		}

		c := &reviewmap.Customer{Name: "Ada"}
		err := store.CreateCustomer(ctx, c)

		var pte *types.ProvisionedThroughputExceededException
		if !errors.As(err, &pte) {
			t.Fatalf("Expected ProvisionedThroughputExceededException, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to create customer customer#7") {
			t.Errorf("Expected create context in %q", err.Error())
		}
		if errors.Is(err, reviewmap.ErrUniqueConstraint) {
			t.Error("Expected throttle not to be a constraint violation")
		}
	})

	t.Run("sequence failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.UpdateFunc = func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, throttled
		}

		err := store.CreateItem(ctx, &reviewmap.Item{Name: "Widget"})
		if !errors.As(err, new(*types.ProvisionedThroughputExceededException)) {
			t.Errorf("Expected ProvisionedThroughputExceededException, got %v", err)
		}
	})
}

func TestStoreRestrictDeleteWithoutReturnedRow(t *testing.T) {
	ctx := context.Background()

	// Some endpoints fail the condition without returning the stored row.
	conditionFailed := func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
		if params.ReturnValuesOnConditionCheckFailure != types.ReturnValuesOnConditionCheckFailureAllOld {
			t.Errorf("Expected ALL_OLD on failure, got %s", params.ReturnValuesOnConditionCheckFailure)
		}
		return nil, &types.ConditionalCheckFailedException{}
	}

	t.Run("stored row is restricted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.DeleteFunc = conditionFailed
		mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: reviewmap.Record{
				reviewmap.AttributeNameSource:  &types.AttributeValueMemberS{Value: "customer#1"},
				reviewmap.AttributeNameTarget:  &types.AttributeValueMemberS{Value: "customer#1"},
				reviewmap.AttributeNameReviews: &types.AttributeValueMemberN{Value: "2"},
			}}, nil
		}

		err := store.DeleteCustomer(ctx, 1)

		var constraintErr *reviewmap.ConstraintError
		if !errors.As(err, &constraintErr) || constraintErr.Constraint != reviewmap.ConstraintReviewCustomer {
			t.Errorf("Expected %s constraint error, got %v", reviewmap.ConstraintReviewCustomer, err)
		}
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.DeleteFunc = conditionFailed
		mock.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		}

		if err := store.DeleteItem(ctx, 1); !errors.Is(err, reviewmap.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
