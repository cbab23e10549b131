// Package assert provides fluent assertions for table records and serialized
// review documents.
//
// # Usage
//
//	import "github.com/nisimpson/reviewmap/dynamock/assert"
//
//	// Assert on table records
//	assert.Records(t, client.Records("reviews")).
//		ContainsRow("customer#1", "item#1").
//		HasLabelCount("review", 1)
//
//	// Assert on serialized documents
//	assert.Document(t, doc).
//		HasValue("name", "Ada").
//		HasListLen("reviews", 1)
//
//	assert.Document(t, doc).Index("reviews", 0).
//		LacksKey("customer").
//		LacksKey("customer_id").
//		Nested("item").LacksKey("reviews")
package assert

import (
	"fmt"
	"reflect"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
)

// RecordsAssertion provides fluent assertions for table records.
type RecordsAssertion struct {
	t       testing.TB
	records []reviewmap.Record
}

// Records creates a RecordsAssertion for records.
func Records(t testing.TB, records []reviewmap.Record) *RecordsAssertion {
	return &RecordsAssertion{t: t, records: records}
}

// HasCount asserts the number of records.
func (a *RecordsAssertion) HasCount(expected int) *RecordsAssertion {
	a.t.Helper()
	if len(a.records) != expected {
		a.t.Errorf("expected %d records, got %d", expected, len(a.records))
	}
	return a
}

// ContainsRow asserts that a record with the keys exists.
func (a *RecordsAssertion) ContainsRow(hk, sk string) *RecordsAssertion {
	a.t.Helper()
	if a.find(hk, sk) == nil {
		a.t.Errorf("expected to find row %s/%s", hk, sk)
	}
	return a
}

// LacksRow asserts that no record with the keys exists.
func (a *RecordsAssertion) LacksRow(hk, sk string) *RecordsAssertion {
	a.t.Helper()
	if a.find(hk, sk) != nil {
		a.t.Errorf("expected no row %s/%s", hk, sk)
	}
	return a
}

// HasLabelCount asserts the number of records with label.
func (a *RecordsAssertion) HasLabelCount(label string, expected int) *RecordsAssertion {
	a.t.Helper()
	var n int
	for _, r := range a.records {
		if stringAttr(r, reviewmap.AttributeNameLabel) == label {
			n++
		}
	}
	if n != expected {
		a.t.Errorf("expected %d %s records, got %d", expected, label, n)
	}
	return a
}

// HasReviewCount asserts the review count of the customer or item row key,
// such as "item#1". A row without the count has zero reviews.
func (a *RecordsAssertion) HasReviewCount(key string, expected int64) *RecordsAssertion {
	a.t.Helper()
	r := a.find(key, key)
	if r == nil {
		a.t.Errorf("expected to find row %s", key)
		return a
	}

	var n int64
	if av, ok := r[reviewmap.AttributeNameReviews].(*types.AttributeValueMemberN); ok {
		var err error
		if n, err = strconv.ParseInt(av.Value, 10, 64); err != nil {
			a.t.Errorf("row %s: invalid review count %q", key, av.Value)
			return a
		}
	}
	if n != expected {
		a.t.Errorf("expected %d reviews on %s, got %d", expected, key, n)
	}
	return a
}

// Equals asserts that the records are the same as expected, for checking
// that a failed write left the table unchanged.
func (a *RecordsAssertion) Equals(expected []reviewmap.Record) *RecordsAssertion {
	a.t.Helper()
	if !reflect.DeepEqual(a.records, expected) {
		a.t.Errorf("records changed: expected %d records, got %d", len(expected), len(a.records))
	}
	return a
}

func (a *RecordsAssertion) find(hk, sk string) reviewmap.Record {
	for _, r := range a.records {
		if stringAttr(r, reviewmap.AttributeNameSource) == hk && stringAttr(r, reviewmap.AttributeNameTarget) == sk {
			return r
		}
	}
	return nil
}

func stringAttr(r reviewmap.Record, name string) string {
	if s, ok := r[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// DocumentAssertion provides fluent assertions for serialized documents.
type DocumentAssertion struct {
	t    testing.TB
	path string
	doc  reviewmap.Document
}

// Document creates a DocumentAssertion for doc.
func Document(t testing.TB, doc reviewmap.Document) *DocumentAssertion {
	return &DocumentAssertion{t: t, path: "$", doc: doc}
}

// HasKey asserts that key is present.
func (a *DocumentAssertion) HasKey(key string) *DocumentAssertion {
	a.t.Helper()
	if _, ok := a.doc[key]; !ok {
		a.t.Errorf("%s: expected key %q", a.path, key)
	}
	return a
}

// LacksKey asserts that key is absent.
func (a *DocumentAssertion) LacksKey(key string) *DocumentAssertion {
	a.t.Helper()
	if _, ok := a.doc[key]; ok {
		a.t.Errorf("%s: expected no key %q", a.path, key)
	}
	return a
}

// HasKeys asserts that the document has exactly keys.
func (a *DocumentAssertion) HasKeys(keys ...string) *DocumentAssertion {
	a.t.Helper()
	if len(a.doc) != len(keys) {
		a.t.Errorf("%s: expected %d keys %v, got %d", a.path, len(keys), keys, len(a.doc))
	}
	for _, k := range keys {
		a.HasKey(k)
	}
	return a
}

// HasValue asserts that key holds expected.
func (a *DocumentAssertion) HasValue(key string, expected any) *DocumentAssertion {
	a.t.Helper()
	got, ok := a.doc[key]
	if !ok {
		a.t.Errorf("%s: expected key %q", a.path, key)
		return a
	}
	if !reflect.DeepEqual(got, expected) {
		a.t.Errorf("%s.%s: expected %v (%T), got %v (%T)", a.path, key, expected, expected, got, got)
	}
	return a
}

// HasListLen asserts that key holds a list of n documents.
func (a *DocumentAssertion) HasListLen(key string, n int) *DocumentAssertion {
	a.t.Helper()
	if list, ok := a.list(key); ok && len(list) != n {
		a.t.Errorf("%s.%s: expected %d documents, got %d", a.path, key, n, len(list))
	}
	return a
}

// Nested returns an assertion on the document held by key. A missing or
// non-document value fails the test.
func (a *DocumentAssertion) Nested(key string) *DocumentAssertion {
	a.t.Helper()
	path := a.path + "." + key
	doc, ok := a.doc[key].(reviewmap.Document)
	if !ok {
		a.t.Fatalf("%s: expected a document, got %T", path, a.doc[key])
	}
	return &DocumentAssertion{t: a.t, path: path, doc: doc}
}

// Index returns an assertion on the i-th document of the list held by key.
func (a *DocumentAssertion) Index(key string, i int) *DocumentAssertion {
	a.t.Helper()
	path := fmt.Sprintf("%s.%s[%d]", a.path, key, i)
	list, ok := a.list(key)
	if !ok || i >= len(list) {
		a.t.Fatalf("%s: no such document", path)
	}
	return &DocumentAssertion{t: a.t, path: path, doc: list[i]}
}

// Each runs fn on an assertion for every document of the list held by key.
func (a *DocumentAssertion) Each(key string, fn func(*DocumentAssertion)) *DocumentAssertion {
	a.t.Helper()
	list, _ := a.list(key)
	for i, doc := range list {
		fn(&DocumentAssertion{t: a.t, path: fmt.Sprintf("%s.%s[%d]", a.path, key, i), doc: doc})
	}
	return a
}

func (a *DocumentAssertion) list(key string) ([]reviewmap.Document, bool) {
	a.t.Helper()
	list, ok := a.doc[key].([]reviewmap.Document)
	if !ok {
		a.t.Errorf("%s.%s: expected a list of documents, got %T", a.path, key, a.doc[key])
	}
	return list, ok
}
