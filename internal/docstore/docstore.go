// Package docstore provides the generic document-store capability used by
// every collection in the system: flat CRUD, filtered queries, and an atomic
// multi-document batch write. It is implemented once per backend and never
// specialized per entity type.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/school-admin/backend/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrCheckFailed is returned by Batch.Commit when a staged precondition
	// does not hold at commit time. Nothing is written.
	ErrCheckFailed = errors.New("batch precondition failed")
)

// Document is one stored record in a collection.
type Document struct {
	ID         string
	Collection string
	Data       models.JSONB
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document into a typed struct, injecting the id and
// bookkeeping timestamps alongside the data fields.
func (d *Document) Decode(out interface{}) error {
	m := make(models.JSONB, len(d.Data)+3)
	for k, v := range d.Data {
		m[k] = v
	}
	m["id"] = d.ID
	m["createdAt"] = d.CreatedAt.UTC().Format(time.RFC3339)
	m["updatedAt"] = d.UpdatedAt.UTC().Format(time.RFC3339)

	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode document %s/%s: %w", d.Collection, d.ID, err)
	}
	return json.Unmarshal(b, out)
}

// Encode converts a typed struct into document data. The id and bookkeeping
// timestamps are stripped; the store owns those.
func Encode(v interface{}) (models.JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	data := make(models.JSONB)
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	delete(data, "id")
	delete(data, "createdAt")
	delete(data, "updatedAt")
	return data, nil
}

// DecodeAll decodes a slice of documents into typed values.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i := range docs {
		var v T
		if err := docs[i].Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Filter is one field comparison applied by Query.
type Filter struct {
	Field string
	Op    string // "==", "!=", ">", ">=", "<", "<="
	Value interface{}
}

// Where builds a filter.
func Where(field, op string, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection.
type Query struct {
	Filters     []Filter
	NewestFirst bool
	Limit       int
}

// Batch stages writes across collections and commits them atomically:
// either every staged write becomes visible together, or none do.
type Batch interface {
	// Set stages a full document write under a caller-chosen id,
	// overwriting any existing document.
	Set(collection, id string, data models.JSONB)
	// Update stages a field-merge into an existing document. Commit fails
	// with ErrNotFound if the document is missing.
	Update(collection, id string, patch models.JSONB)
	// Delete stages a document removal.
	Delete(collection, id string)
	// Check stages a precondition: the named data field must equal want at
	// commit time, or Commit fails with ErrCheckFailed and nothing is
	// written. This is the mutual-exclusion gate for state-flip commits.
	Check(collection, id, field string, want interface{})
	// Commit applies every staged operation in one transaction.
	Commit(ctx context.Context) error
}

// Store is the document-store capability consumed by services and handlers.
type Store interface {
	GetAll(ctx context.Context, collection string) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (*Document, error)
	Add(ctx context.Context, collection string, data models.JSONB) (string, error)
	Update(ctx context.Context, collection, id string, patch models.JSONB) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	NewBatch() Batch
}

// looseEqual compares two JSON-ish values structurally, normalizing numeric
// types through a JSON round trip first.
func looseEqual(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// compareValues orders two scalar values. The second return is false when
// the values are not comparable (mixed or unsupported types).
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// matches evaluates a filter against document data.
func matches(data models.JSONB, f Filter) bool {
	got, ok := data[f.Field]
	switch f.Op {
	case "==":
		return ok && looseEqual(got, f.Value)
	case "!=":
		return !ok || !looseEqual(got, f.Value)
	}
	if !ok {
		return false
	}
	cmp, comparable := compareValues(got, f.Value)
	if !comparable {
		return false
	}
	switch f.Op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}
