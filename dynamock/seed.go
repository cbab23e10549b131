package dynamock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nisimpson/reviewmap"
)

// Fixture is a set of customers, items, and reviews to seed through a
// store. Reviews refer to customers and items by name, since ids are only
// assigned when seeding.
//
//	{
//	  "customers": [{"name": "Ada"}],
//	  "items": [{"name": "Widget", "price": 9.99}],
//	  "reviews": [{"customer": "Ada", "item": "Widget", "comment": "Great"}]
//	}
type Fixture struct {
	Customers []reviewmap.Customer `json:"customers"`
	Items     []reviewmap.Item     `json:"items"`
	Reviews   []FixtureReview      `json:"reviews"`
}

// FixtureReview is a review between a named customer and a named item.
type FixtureReview struct {
	Customer string  `json:"customer"`
	Item     string  `json:"item"`
	Comment  *string `json:"comment,omitempty"`
}

// Seeded holds the entities created by Fixture.Seed, keyed by name.
type Seeded struct {
	Customers map[string]*reviewmap.Customer
	Items     map[string]*reviewmap.Item
	Reviews   []*reviewmap.Review
}

// NewFixture returns an empty fixture to build with the With methods.
func NewFixture() *Fixture {
	return &Fixture{}
}

// WithCustomer adds a customer.
func (f *Fixture) WithCustomer(name string) *Fixture {
	f.Customers = append(f.Customers, reviewmap.Customer{Name: name})
	return f
}

// WithItem adds an item.
func (f *Fixture) WithItem(name string, price float64) *Fixture {
	f.Items = append(f.Items, reviewmap.Item{Name: name, Price: price})
	return f
}

// WithReview adds a review of item by customer. comment may be nil.
func (f *Fixture) WithReview(customer, item string, comment *string) *Fixture {
	f.Reviews = append(f.Reviews, FixtureReview{Customer: customer, Item: item, Comment: comment})
	return f
}

// LoadFixture decodes a JSON fixture from r.
func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	return &f, nil
}

// Seed creates every customer and item of f through store, then every
// review. Customer and item names must be unique within f.
func (f *Fixture) Seed(ctx context.Context, store *reviewmap.Store) (*Seeded, error) {
	seeded := &Seeded{
		Customers: make(map[string]*reviewmap.Customer, len(f.Customers)),
		Items:     make(map[string]*reviewmap.Item, len(f.Items)),
	}

	for i := range f.Customers {
		c := f.Customers[i]
		if _, dup := seeded.Customers[c.Name]; dup {
			return seeded, fmt.Errorf("duplicate customer %q in fixture", c.Name)
		}
		if err := store.CreateCustomer(ctx, &c); err != nil {
			return seeded, fmt.Errorf("failed to seed customer %q: %w", c.Name, err)
		}
		seeded.Customers[c.Name] = &c
	}

	for i := range f.Items {
		item := f.Items[i]
		if _, dup := seeded.Items[item.Name]; dup {
			return seeded, fmt.Errorf("duplicate item %q in fixture", item.Name)
		}
		if err := store.CreateItem(ctx, &item); err != nil {
			return seeded, fmt.Errorf("failed to seed item %q: %w", item.Name, err)
		}
		seeded.Items[item.Name] = &item
	}

	for i, fr := range f.Reviews {
		c, ok := seeded.Customers[fr.Customer]
		if !ok {
			return seeded, fmt.Errorf("review %d: unknown customer %q", i, fr.Customer)
		}
		item, ok := seeded.Items[fr.Item]
		if !ok {
			return seeded, fmt.Errorf("review %d: unknown item %q", i, fr.Item)
		}

		r := &reviewmap.Review{CustomerID: c.ID, ItemID: item.ID, Comment: fr.Comment}
		if err := store.CreateReview(ctx, r); err != nil {
			return seeded, fmt.Errorf("failed to seed %s: %w", r, err)
		}
		seeded.Reviews = append(seeded.Reviews, r)
	}

	return seeded, nil
}

// SeedRows writes entities straight to the table with batch writes,
// bypassing id assignment and integrity checks. Review rows written this way
// are not counted against their customer and item. Use it to set up states
// the store would refuse to create, such as a review of a missing item.
func SeedRows(ctx context.Context, client reviewmap.DynamoDBClient, table *reviewmap.Table, entities ...reviewmap.Marshaler) error {
	batches, err := table.MarshalBatch(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}

	for _, batch := range batches {
		if _, err := client.BatchWriteItem(ctx, batch); err != nil {
			return fmt.Errorf("failed to batch write: %w", err)
		}
	}

	return nil
}
