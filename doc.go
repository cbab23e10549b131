// Package reviewmap provides a relational data layer for customers, items,
// and the reviews that join them, stored in a single DynamoDB table, plus a
// cycle-safe serializer that turns the relational graph into nested
// documents.
//
// # Data Model
//
// A Customer and an Item are related many-to-many through Review, whose
// identity is the pair (customer_id, item_id) and which carries an optional
// comment. Entities hold only ids; related entities are found with store
// queries.
//
// # Table Layout
//
// Every entity is one row of the table:
//   - hk (hash key): "customer#<id>" or "item#<id>"
//   - sk (sort key): the same key for customers and items, "item#<id>" for reviews
//   - label: "customer", "item", or "review"
//   - gsi1_sk: sort key on the ref index (label, gsi1_sk)
//
// Reviews of a customer live in the customer's partition. Reviews of an item
// are read from the ref index. Ids are assigned from per-kind counter rows.
// Customer and item rows carry a "reviews" count of the reviews that
// reference them.
//
// # Integrity
//
// Creating a review counts it against both referenced rows, which must
// exist, and checks the pair's uniqueness in one transaction:
//
//	err := store.CreateReview(ctx, &reviewmap.Review{CustomerID: 1, ItemID: 2})
//	if errors.Is(err, reviewmap.ErrReferentialIntegrity) {
//		// customer or item missing
//	}
//	if errors.Is(err, reviewmap.ErrUniqueConstraint) {
//		// already reviewed
//	}
//
// Deleting a review releases both counts in one transaction. Deleting a
// customer or item is conditional on a zero count and otherwise fails with
// ErrReferentialIntegrity, so no review can be created against a row that is
// being deleted.
//
// # Serialization
//
//	store := reviewmap.NewStore(ddb, reviewmap.NewTable("reviews"))
//	doc, err := reviewmap.NewSerializer(store).Serialize(ctx, &reviewmap.Customer{ID: 1})
//
// A serialized customer lists its reviews, each without the customer; a
// serialized item lists its reviews, each without the item; a serialized
// review holds its customer and item, each without reviews.
//
// # Pagination
//
// List operations return a cursor stored in the same table with a TTL:
//
//	page, err := store.ListCustomers(ctx, reviewmap.ListOptions{Limit: 10})
//	next, err := store.ListCustomers(ctx, reviewmap.ListOptions{Limit: 10, Cursor: page.Cursor})
package reviewmap
