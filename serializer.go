package reviewmap

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxDepth bounds the nesting of serialized documents. The rules
// below never nest deeper than 2.
const DefaultMaxDepth = 4

// Document is the serialized form of an entity: attribute name to a scalar,
// a nested Document, or a list of Documents. It encodes directly to JSON.
type Document = map[string]any

// Reader is the part of the store the serializer reads from.
type Reader interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	GetReview(ctx context.Context, customerID, itemID int64) (*Review, error)
	ReviewsOfCustomer(ctx context.Context, customerID int64) ([]Review, error)
	ReviewsOfItem(ctx context.Context, itemID int64) ([]Review, error)
}

// relation is one relationship of a kind as it appears in documents.
type relation struct {
	name       string // document key
	many       bool   // list of documents or a single document
	foreignKey string // column backing a to-one relation
	exclude    string // relation left out of each nested document
}

// relations is the serialization rule table. A nested document never
// contains the relation pointing back at its parent.
var relations = map[Kind][]relation{
	KindCustomer: {
		{name: "reviews", many: true, exclude: "customer"},
	},
	KindItem: {
		{name: "reviews", many: true, exclude: "item"},
	},
	KindReview: {
		{name: "customer", foreignKey: "customer_id", exclude: "reviews"},
		{name: "item", foreignKey: "item_id", exclude: "reviews"},
	},
}

// Serializer converts entities into acyclic documents, loading relations
// lazily through a Reader.
type Serializer struct {
	reader   Reader
	maxDepth int
	delim    string
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithMaxDepth sets the nesting bound. Values below 1 are ignored.
func WithMaxDepth(n int) SerializerOption {
	return func(s *Serializer) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// NewSerializer returns a Serializer reading from r.
func NewSerializer(r Reader, opts ...SerializerOption) *Serializer {
	s := &Serializer{
		reader:   r,
		maxDepth: DefaultMaxDepth,
		delim:    "#",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize returns the document of the stored state of e. It fails with
// ErrSerialization if e does not exist in the store and with
// ErrRecursionLimit if the document would nest past the configured bound.
// Serialize never writes.
func (s *Serializer) Serialize(ctx context.Context, e Entity) (Document, error) {
	current, err := s.load(ctx, e)
	if err != nil {
		return nil, err
	}
	return s.serialize(ctx, current, nil, 0)
}

func (s *Serializer) serialize(ctx context.Context, e Entity, exclude map[string]bool, depth int) (Document, error) {
	if depth > s.maxDepth {
		return nil, &RecursionLimitError{Kind: e.Kind(), Depth: depth, Limit: s.maxDepth}
	}

	doc := attributes(e)

	for _, rel := range relations[e.Kind()] {
		if exclude[rel.name] {
			if rel.foreignKey != "" {
				delete(doc, rel.foreignKey)
			}
			continue
		}

		related, err := s.related(ctx, e, rel.name)
		if err != nil {
			return nil, err
		}

		nested := map[string]bool{rel.exclude: true}

		if !rel.many {
			if len(related) == 0 {
				doc[rel.name] = nil
				continue
			}
			if doc[rel.name], err = s.serialize(ctx, related[0], nested, depth+1); err != nil {
				return nil, err
			}
			continue
		}

		list := make([]Document, 0, len(related))
		for _, r := range related {
			d, err := s.serialize(ctx, r, nested, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, d)
		}
		doc[rel.name] = list
	}

	return doc, nil
}

// load re-reads e from the store. An entity without a valid key was never
// stored and fails without reading.
func (s *Serializer) load(ctx context.Context, e Entity) (Entity, error) {
	switch v := e.(type) {
	case *Customer:
		if v == nil {
			return nil, &SerializationError{Kind: KindCustomer, Err: errors.New("nil entity")}
		}
	case *Item:
		if v == nil {
			return nil, &SerializationError{Kind: KindItem, Err: errors.New("nil entity")}
		}
	case *Review:
		if v == nil {
			return nil, &SerializationError{Kind: KindReview, Err: errors.New("nil entity")}
		}
	case nil:
		return nil, &SerializationError{Err: errors.New("nil entity")}
	default:
		return nil, &SerializationError{Kind: e.Kind(), Err: fmt.Errorf("unsupported entity %T", e)}
	}

	opts := newMarshalOptions(func(mo *MarshalOptions) { mo.KeyDelimiter = s.delim })
	if err := e.MarshalSelf(&opts); err != nil {
		return nil, &SerializationError{Kind: e.Kind(), Err: fmt.Errorf("not stored: %w", err)}
	}

	var (
		current Entity
		err     error
	)

	switch v := e.(type) {
	case *Customer:
		current, err = s.reader.GetCustomer(ctx, v.ID)
	case *Item:
		current, err = s.reader.GetItem(ctx, v.ID)
	case *Review:
		current, err = s.reader.GetReview(ctx, v.CustomerID, v.ItemID)
	}

	if errors.Is(err, ErrNotFound) {
		return nil, &SerializationError{Kind: e.Kind(), Key: keyString(e, s.delim), Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", e.Kind(), keyString(e, s.delim), err)
	}
	return current, nil
}

// related loads the entities of relation name of e.
func (s *Serializer) related(ctx context.Context, e Entity, name string) ([]Entity, error) {
	switch v := e.(type) {
	case *Customer:
		reviews, err := s.reader.ReviewsOfCustomer(ctx, v.ID)
		return reviewEntities(reviews), err
	case *Item:
		reviews, err := s.reader.ReviewsOfItem(ctx, v.ID)
		return reviewEntities(reviews), err
	case *Review:
		var target Entity
		switch name {
		case "customer":
			target = &Customer{ID: v.CustomerID}
		case "item":
			target = &Item{ID: v.ItemID}
		default:
			return nil, fmt.Errorf("unknown relation %q of %s", name, v)
		}
		current, err := s.load(ctx, target)
		if err != nil {
			return nil, err
		}
		return []Entity{current}, nil
	}
	return nil, fmt.Errorf("unknown relation %q of %s", name, e.Kind())
}

func reviewEntities(reviews []Review) []Entity {
	out := make([]Entity, len(reviews))
	for i := range reviews {
		out[i] = &reviews[i]
	}
	return out
}

// attributes returns the scalar attributes of e.
func attributes(e Entity) Document {
	switch v := e.(type) {
	case *Customer:
		return Document{"id": v.ID, "name": v.Name}
	case *Item:
		return Document{"id": v.ID, "name": v.Name, "price": v.Price}
	case *Review:
		doc := Document{"customer_id": v.CustomerID, "item_id": v.ItemID, "comment": nil}
		if v.Comment != nil {
			doc["comment"] = *v.Comment
		}
		return doc
	}
	return Document{}
}
