package reviewmap

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Store performs create/read/update/delete and relationship traversal for
// customers, items, and reviews against a single DynamoDB table.
//
// Customer and item rows count the reviews that reference them. Review
// writes update the counts in the same transaction as the review row, and
// deletes of customers and items are conditional on a zero count, so the
// restriction holds under concurrent writers. Deleting a customer or item
// that still has reviews is rejected with ErrReferentialIntegrity; reviews
// are never deleted in cascade.
type Store struct {
	client    DynamoDBClient
	table     *Table
	paginator Paginator
	validate  *validator.Validate
	log       zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for store operations.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// WithPaginator overrides the paginator used by list operations.
func WithPaginator(p Paginator) StoreOption {
	return func(s *Store) { s.paginator = p }
}

// NewStore returns a Store over table using client.
func NewStore(client DynamoDBClient, table *Table, opts ...StoreOption) *Store {
	s := &Store{
		client:    client,
		table:     table,
		paginator: table.Paginator(client),
		validate:  validator.New(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOptions controls a page of a list operation.
type ListOptions struct {
	Limit  int    // Maximum number of entities; zero means no limit
	Cursor string // Cursor returned by the previous page
}

// Page is one page of a list operation. Cursor is empty on the last page.
type Page[T any] struct {
	Items  []T
	Cursor string
}

// Customers

// CreateCustomer assigns the next customer id to c and stores it.
func (s *Store) CreateCustomer(ctx context.Context, c *Customer) error {
	id, err := s.nextID(ctx, KindCustomer)
	if err != nil {
		return err
	}
	c.ID = id

	return s.create(ctx, c, conditionCheck{
		err:        ErrUniqueConstraint,
		table:      TableCustomers,
		constraint: "pk_" + TableCustomers,
		key:        s.keyOf(c),
	})
}

// GetCustomer returns the customer with id, or ErrNotFound.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c := &Customer{ID: id}
	if err := s.get(ctx, c, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCustomer replaces the stored attributes of c. It fails with
// ErrNotFound if c does not exist.
func (s *Store) UpdateCustomer(ctx context.Context, c *Customer) error {
	return s.replace(ctx, c)
}

// DeleteCustomer deletes the customer with id. It fails with
// ErrReferentialIntegrity while the customer has reviews.
func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	return s.removeUnreferenced(ctx, &Customer{ID: id}, TableCustomers, ConstraintReviewCustomer)
}

// ListCustomers returns a page of customers ordered by id.
func (s *Store) ListCustomers(ctx context.Context, opts ListOptions) (Page[Customer], error) {
	return list[Customer](ctx, s, LabelCustomer, opts)
}

// Items

// CreateItem assigns the next item id to i and stores it.
func (s *Store) CreateItem(ctx context.Context, i *Item) error {
	id, err := s.nextID(ctx, KindItem)
	if err != nil {
		return err
	}
	i.ID = id

	return s.create(ctx, i, conditionCheck{
		err:        ErrUniqueConstraint,
		table:      TableItems,
		constraint: "pk_" + TableItems,
		key:        s.keyOf(i),
	})
}

// GetItem returns the item with id, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	i := &Item{ID: id}
	if err := s.get(ctx, i, i); err != nil {
		return nil, err
	}
	return i, nil
}

// UpdateItem replaces the stored attributes of i. It fails with ErrNotFound
// if i does not exist.
func (s *Store) UpdateItem(ctx context.Context, i *Item) error {
	return s.replace(ctx, i)
}

// DeleteItem deletes the item with id. It fails with
// ErrReferentialIntegrity while the item has reviews.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	return s.removeUnreferenced(ctx, &Item{ID: id}, TableItems, ConstraintReviewItem)
}

// ListItems returns a page of items ordered by id.
func (s *Store) ListItems(ctx context.Context, opts ListOptions) (Page[Item], error) {
	return list[Item](ctx, s, LabelItem, opts)
}

// Reviews

// CreateReview stores r and counts it against its customer and item. The
// customer and item must exist (ErrReferentialIntegrity) and the pair must
// not be reviewed yet (ErrUniqueConstraint). Nothing is written when either
// check fails.
func (s *Store) CreateReview(ctx context.Context, r *Review) error {
	if err := s.check(r); err != nil {
		return err
	}

	// Negative ids can never name a stored row.
	if r.CustomerID < 0 {
		return s.dangling(r, ConstraintReviewCustomer, s.refKey(PrefixCustomer, r.CustomerID))
	}
	if r.ItemID < 0 {
		return s.dangling(r, ConstraintReviewItem, s.refKey(PrefixItem, r.ItemID))
	}

	input, err := s.table.MarshalCreateReview(r)
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		err = convertWriteError(err,
			conditionCheck{
				err:        ErrReferentialIntegrity,
				table:      TableReviews,
				constraint: ConstraintReviewCustomer,
				key:        s.keyOf(&Customer{ID: r.CustomerID}),
			},
			conditionCheck{
				err:        ErrReferentialIntegrity,
				table:      TableReviews,
				constraint: ConstraintReviewItem,
				key:        s.keyOf(&Item{ID: r.ItemID}),
			},
			conditionCheck{
				err:        ErrUniqueConstraint,
				table:      TableReviews,
				constraint: ConstraintReviewKey,
				key:        s.keyOf(r),
			},
		)
		return s.writeFailed("create", r, err)
	}

	s.log.Debug().Str("kind", string(KindReview)).Str("key", s.keyOf(r)).Msg("created")
	return nil
}

// AddItem adds item to the customer's items by creating a review of the
// pair without a comment.
func (s *Store) AddItem(ctx context.Context, customerID, itemID int64) (*Review, error) {
	r := &Review{CustomerID: customerID, ItemID: itemID}
	if err := s.CreateReview(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetReview returns the review of the pair, or ErrNotFound.
func (s *Store) GetReview(ctx context.Context, customerID, itemID int64) (*Review, error) {
	r := &Review{CustomerID: customerID, ItemID: itemID}
	if err := s.get(ctx, r, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateReview replaces the comment of an existing review.
func (s *Store) UpdateReview(ctx context.Context, r *Review) error {
	return s.replace(ctx, r)
}

// DeleteReview deletes the review of the pair and releases it from its
// customer and item. It fails with ErrNotFound if the pair is not reviewed.
func (s *Store) DeleteReview(ctx context.Context, customerID, itemID int64) error {
	r := &Review{CustomerID: customerID, ItemID: itemID}

	input, err := s.table.MarshalDeleteReview(r)
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err == nil {
		s.log.Debug().Str("kind", string(KindReview)).Str("key", s.keyOf(r)).Msg("deleted")
		return nil
	}

	// A review whose customer or item row is gone has nothing left to
	// count against; it is removed on its own.
	if failed := cancelledAt(err); len(failed) > 0 && failed[0] > 0 {
		s.log.Warn().Str("key", s.keyOf(r)).Msg("deleting review of a missing row")
		return s.remove(ctx, r)
	}

	return s.writeFailed("delete", r, convertWriteError(err,
		conditionCheck{err: ErrNotFound, table: string(KindReview), key: s.keyOf(r)},
	))
}

// Traversal

// ReviewsOfCustomer returns the reviews written by the customer, ordered by item id.
func (s *Store) ReviewsOfCustomer(ctx context.Context, customerID int64) ([]Review, error) {
	reviews, err := s.queryReviews(ctx, reviewsOfCustomer(customerID, s.table.KeyDelimiter))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(reviews, func(a, b Review) int { return cmpID(a.ItemID, b.ItemID) })
	return reviews, nil
}

// ReviewsOfItem returns the reviews of the item, ordered by customer id.
func (s *Store) ReviewsOfItem(ctx context.Context, itemID int64) ([]Review, error) {
	reviews, err := s.queryReviews(ctx, reviewsOfItem(itemID, s.table.KeyDelimiter))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(reviews, func(a, b Review) int { return cmpID(a.CustomerID, b.CustomerID) })
	return reviews, nil
}

// ItemsOf returns the distinct items the customer has reviewed, ordered by
// id. The view is computed from the current reviews on every call.
func (s *Store) ItemsOf(ctx context.Context, customerID int64) ([]Item, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	reviews, err := s.ReviewsOfCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var (
		seen  = make(map[int64]bool, len(reviews))
		items = make([]Item, 0, len(reviews))
	)
	for _, r := range reviews {
		if seen[r.ItemID] {
			continue
		}
		seen[r.ItemID] = true

		item, err := s.GetItem(ctx, r.ItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to load item of %s: %w", r, err)
		}
		items = append(items, *item)
	}

	return items, nil
}

// helpers

func (s *Store) check(in Entity) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	return nil
}

func (s *Store) keyOf(in Marshaler) string {
	return keyString(in, s.table.KeyDelimiter)
}

func (s *Store) nextID(ctx context.Context, kind Kind) (int64, error) {
	input, err := s.table.MarshalNextID(kind)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s sequence: %w", kind, err)
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", kind, err)
	}

	var id int64
	if err := attributevalue.Unmarshal(out.Attributes[AttributeNameSequence], &id); err != nil {
		return 0, fmt.Errorf("failed to unmarshal %s sequence: %w", kind, err)
	}
	return id, nil
}

func (s *Store) create(ctx context.Context, in Entity, unique conditionCheck) error {
	if err := s.check(in); err != nil {
		return err
	}

	input, err := s.table.MarshalCreate(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", in.Kind(), err)
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return s.writeFailed("create", in, convertWriteError(err, unique))
	}

	s.log.Debug().Str("kind", string(in.Kind())).Str("key", s.keyOf(in)).Msg("created")
	return nil
}

// get reads the row of key into out.
func (s *Store) get(ctx context.Context, key Entity, out any) error {
	input, err := s.table.MarshalGet(key)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key.Kind(), err)
	}

	result, err := s.client.GetItem(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", key.Kind(), s.keyOf(key), err)
	}

	if result.Item == nil {
		return fmt.Errorf("%s %s: %w", key.Kind(), s.keyOf(key), ErrNotFound)
	}

	if _, err := UnmarshalRow(result.Item, out); err != nil {
		return fmt.Errorf("failed to read %s %s: %w", key.Kind(), s.keyOf(key), err)
	}
	return nil
}

// replace overwrites the data of an existing row.
func (s *Store) replace(ctx context.Context, in Entity) error {
	if err := s.check(in); err != nil {
		return err
	}

	input, err := s.table.MarshalUpdate(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", in.Kind(), err)
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return s.writeFailed("update", in, convertWriteError(err, conditionCheck{
			err:   ErrNotFound,
			table: string(in.Kind()),
			key:   s.keyOf(in),
		}))
	}

	s.log.Debug().Str("kind", string(in.Kind())).Str("key", s.keyOf(in)).Msg("updated")
	return nil
}

func (s *Store) remove(ctx context.Context, in Entity) error {
	input, err := s.table.MarshalDelete(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", in.Kind(), err)
	}

	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return s.writeFailed("delete", in, convertWriteError(err, conditionCheck{
			err:   ErrNotFound,
			table: string(in.Kind()),
			key:   s.keyOf(in),
		}))
	}

	s.log.Debug().Str("kind", string(in.Kind())).Str("key", s.keyOf(in)).Msg("deleted")
	return nil
}

// removeUnreferenced deletes a customer or item row only while no review
// counts against it.
func (s *Store) removeUnreferenced(ctx context.Context, in Entity, table, constraint string) error {
	input, err := s.table.MarshalDeleteUnreferenced(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", in.Kind(), err)
	}

	_, err = s.client.DeleteItem(ctx, input)
	if err == nil {
		s.log.Debug().Str("kind", string(in.Kind())).Str("key", s.keyOf(in)).Msg("deleted")
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return s.writeFailed("delete", in, err)
	}

	current := condErr.Item
	if len(current) == 0 {
		// Not every endpoint returns the row with the failure.
		out, getErr := s.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: input.TableName, Key: input.Key})
		if getErr != nil {
			return fmt.Errorf("failed to get %s %s: %w", in.Kind(), s.keyOf(in), getErr)
		}
		current = out.Item
	}
	if len(current) == 0 {
		return fmt.Errorf("%s %s: %w", in.Kind(), s.keyOf(in), ErrNotFound)
	}

	var row Row
	if err := attributevalue.UnmarshalMap(current, &row); err != nil {
		return fmt.Errorf("failed to read %s %s: %w", in.Kind(), s.keyOf(in), err)
	}
	return s.restrict(in, table, constraint, row.Reviews, err)
}

// restrict rejects deleting in while n reviews reference it.
func (s *Store) restrict(in Entity, table, constraint string, n int64, driverErr error) error {
	s.log.Warn().
		Str("kind", string(in.Kind())).
		Str("key", s.keyOf(in)).
		Int64("reviews", n).
		Msg("delete restricted by reviews")

	return &ConstraintError{
		Err:        ErrReferentialIntegrity,
		Table:      table,
		Constraint: constraint,
		Key:        s.keyOf(in),
		driverErr:  driverErr,
	}
}

// dangling rejects a review whose foreign key at key cannot exist.
func (s *Store) dangling(r *Review, constraint, key string) error {
	return s.writeFailed("create", r, &ConstraintError{
		Err:        ErrReferentialIntegrity,
		Table:      TableReviews,
		Constraint: constraint,
		Key:        key,
	})
}

// refKey renders the row key of a customer or item id, valid or not.
func (s *Store) refKey(prefix string, id int64) string {
	return prefix + s.table.KeyDelimiter + formatID(id)
}

// writeFailed logs constraint violations and wraps other failures.
func (s *Store) writeFailed(op string, in Entity, err error) error {
	var constraintErr *ConstraintError
	if errors.As(err, &constraintErr) {
		s.log.Warn().
			Str("op", op).
			Str("kind", string(in.Kind())).
			Str("constraint", constraintErr.Constraint).
			Str("key", constraintErr.Key).
			Msg("write rejected")
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to %s %s %s: %w", op, in.Kind(), s.keyOf(in), err)
}

func (s *Store) queryReviews(ctx context.Context, q QueryMarshaler) ([]Review, error) {
	input, err := s.table.MarshalQuery(q)
	if err != nil {
		return nil, err
	}

	var records []Record
	pages := dynamodb.NewQueryPaginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query reviews: %w", err)
		}
		records = append(records, page.Items...)
	}

	reviews := make([]Review, 0, len(records))
	if _, err := UnmarshalList(records, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func list[T any](ctx context.Context, s *Store, label string, opts ListOptions) (Page[T], error) {
	var page Page[T]

	startKey, err := s.paginator.StartKey(ctx, opts.Cursor)
	if err != nil {
		return page, err
	}

	input, err := s.table.MarshalQuery(&QueryList{
		Label:    label,
		Limit:    opts.Limit,
		StartKey: startKey,
	})
	if err != nil {
		return page, err
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return page, fmt.Errorf("failed to list %s: %w", label, err)
	}

	page.Items = make([]T, 0, len(out.Items))
	if _, err := UnmarshalList(out.Items, &page.Items); err != nil {
		return page, err
	}

	if page.Cursor, err = s.paginator.PageCursor(ctx, out.LastEvaluatedKey); err != nil {
		return page, err
	}
	return page, nil
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
