package reviewmap

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrReferentialIntegrity is returned when a review references a customer
	// or item that does not exist, or when deleting a row still referenced by
	// reviews.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrUniqueConstraint is returned when a row with the same primary key
	// already exists.
	ErrUniqueConstraint = errors.New("unique constraint violation")

	// ErrSerialization is returned when serializing a detached entity.
	ErrSerialization = errors.New("serialization failed")

	// ErrRecursionLimit is returned when serialization nests deeper than the
	// configured bound.
	ErrRecursionLimit = errors.New("recursion limit exceeded")

	// ErrInvalidEntity is returned when an entity fails validation.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Table names used in constraint errors.
const (
	TableCustomers = "customers"
	TableItems     = "items"
	TableReviews   = "reviews"
)

// Foreign key constraint names, following fk_<table>_<column>_<referred_table>.
const (
	ConstraintReviewCustomer = "fk_reviews_customer_id_customers"
	ConstraintReviewItem     = "fk_reviews_item_id_items"
	ConstraintReviewKey      = "pk_reviews"
)

// ConstraintError describes a rejected write. Err is either
// ErrReferentialIntegrity or ErrUniqueConstraint.
type ConstraintError struct {
	Err        error
	Table      string // table the write targeted
	Constraint string // violated constraint name
	Key        string // offending key, e.g. "customer#1"
	driverErr  error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v: %s violates %s on %s", e.Err, e.Key, e.Constraint, e.Table)
}

// Is reports whether target is the violation kind of e.
func (e *ConstraintError) Is(target error) bool {
	return target == e.Err
}

// Unwrap returns the DynamoDB error that caused the violation, if any.
func (e *ConstraintError) Unwrap() error {
	return e.driverErr
}

// SerializationError reports an entity that could not be serialized.
type SerializationError struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%v: %s: %v", ErrSerialization, e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %s %s: %v", ErrSerialization, e.Kind, e.Key, e.Err)
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// RecursionLimitError reports serialization nesting past Limit.
type RecursionLimitError struct {
	Kind  Kind
	Depth int
	Limit int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("%v: %s at depth %d exceeds limit %d", ErrRecursionLimit, e.Kind, e.Depth, e.Limit)
}

func (e *RecursionLimitError) Is(target error) bool {
	return target == ErrRecursionLimit
}

// conditionCheck names the constraint guarded by one condition of a write.
// For transactions, the position in the slice matches the position of the
// transact item.
type conditionCheck struct {
	err        error
	table      string
	constraint string
	key        string
}

// convertWriteError maps a failed conditional write into a ConstraintError.
// A ConditionalCheckFailedException is attributed to checks[0]; a cancelled
// transaction is attributed to the first check whose reason is a failed
// condition. Other errors are returned unchanged.
func convertWriteError(err error, checks ...conditionCheck) error {
	if err == nil || len(checks) == 0 {
		return err
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return checks[0].constraintError(err)
	}

	if failed := cancelledAt(err); len(failed) > 0 && failed[0] < len(checks) {
		return checks[failed[0]].constraintError(err)
	}

	return err
}

// cancelledAt returns the positions of the transact items whose condition
// failed in a cancelled transaction, in order.
func cancelledAt(err error) []int {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return nil
	}

	var failed []int
	for i, reason := range txErr.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			failed = append(failed, i)
		}
	}
	return failed
}

func (c conditionCheck) constraintError(driverErr error) error {
	if c.err == ErrNotFound {
		return fmt.Errorf("%s %s: %w", c.table, c.key, ErrNotFound)
	}
	return &ConstraintError{
		Err:        c.err,
		Table:      c.table,
		Constraint: c.constraint,
		Key:        c.key,
		driverErr:  driverErr,
	}
}
