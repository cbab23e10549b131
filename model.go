package reviewmap

import (
	"fmt"
	"strconv"
)

// Kind identifies an entity type.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindItem     Kind = "item"
	KindReview   Kind = "review"
)

// Entity is a Customer, Item, or Review.
type Entity interface {
	Marshaler
	Kind() Kind
}

// Customer is a person who reviews items.
type Customer struct {
	ID   int64  `dynamodbav:"id" json:"id"`
	Name string `dynamodbav:"name" json:"name"`
}

func (*Customer) Kind() Kind { return KindCustomer }

// MarshalSelf implements Marshaler. Customers are self rows keyed by id.
func (c *Customer) MarshalSelf(opts *MarshalOptions) error {
	if c.ID <= 0 {
		return fmt.Errorf("customer id must be positive, got %d", c.ID)
	}
	opts.WithSelfTarget(PrefixCustomer, formatID(c.ID))
	opts.RefSortKey = sortID(c.ID)
	return nil
}

func (c Customer) String() string {
	return fmt.Sprintf("<Customer %d, %s>", c.ID, c.Name)
}

// Item is something customers can review. Price is expected to be
// non-negative but is not enforced.
type Item struct {
	ID    int64   `dynamodbav:"id" json:"id"`
	Name  string  `dynamodbav:"name" json:"name"`
	Price float64 `dynamodbav:"price" json:"price"`
}

func (*Item) Kind() Kind { return KindItem }

// MarshalSelf implements Marshaler. Items are self rows keyed by id.
func (i *Item) MarshalSelf(opts *MarshalOptions) error {
	if i.ID <= 0 {
		return fmt.Errorf("item id must be positive, got %d", i.ID)
	}
	opts.WithSelfTarget(PrefixItem, formatID(i.ID))
	opts.RefSortKey = sortID(i.ID)
	return nil
}

func (i Item) String() string {
	return fmt.Sprintf("<Item %d, %s, %s>", i.ID, i.Name, strconv.FormatFloat(i.Price, 'f', -1, 64))
}

// Review records that a customer reviewed an item. The pair
// (CustomerID, ItemID) is its identity; Comment is optional.
type Review struct {
	CustomerID int64   `dynamodbav:"customer_id" json:"customer_id" validate:"required"`
	ItemID     int64   `dynamodbav:"item_id" json:"item_id" validate:"required"`
	Comment    *string `dynamodbav:"comment" json:"comment"`
}

func (*Review) Kind() Kind { return KindReview }

// MarshalSelf implements Marshaler. A review is a row from its customer's
// partition to its item, indexed by item on the ref index.
func (r *Review) MarshalSelf(opts *MarshalOptions) error {
	if r.CustomerID <= 0 || r.ItemID <= 0 {
		return fmt.Errorf("review key must be positive, got (%d, %d)", r.CustomerID, r.ItemID)
	}
	opts.SourcePrefix = PrefixCustomer
	opts.SourceID = formatID(r.CustomerID)
	opts.TargetPrefix = PrefixItem
	opts.TargetID = formatID(r.ItemID)
	opts.Label = LabelReview
	opts.RefSortKey = reviewRefSortKey(r.ItemID, r.CustomerID, opts.KeyDelimiter)
	return nil
}

func (r Review) String() string {
	return fmt.Sprintf("<Review Customer: %d, Item: %d>", r.CustomerID, r.ItemID)
}

// reviewRefSortKey is "item#<item>#customer#<customer>" with padded ids.
func reviewRefSortKey(itemID, customerID int64, delim string) string {
	return itemRefPrefix(itemID, delim) + PrefixCustomer + delim + sortID(customerID)
}

// itemRefPrefix selects all reviews of an item on the ref index.
func itemRefPrefix(itemID int64, delim string) string {
	return PrefixItem + delim + sortID(itemID) + delim
}

// sequence is the per-kind id counter row.
type sequence struct {
	kind Kind
}

func (s *sequence) MarshalSelf(opts *MarshalOptions) error {
	opts.WithSelfTarget(PrefixSequence, string(s.kind))
	opts.Label = LabelSequence
	return nil
}

// Comment is a convenience for building a Review with a comment.
func Comment(s string) *string {
	return &s
}
