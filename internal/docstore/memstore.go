package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/school-admin/backend/internal/models"
)

// MemStore is an in-memory Store used by tests and local seed tooling.
// It mirrors GormStore semantics, including batch atomicity.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*memDoc // collection -> id -> doc
	seq  int64
}

type memDoc struct {
	doc Document
	seq int64
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]map[string]*memDoc)}
}

func (s *MemStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(collection, Query{}), nil
}

func (s *MemStore) GetByID(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	doc := cloneDocument(md.doc)
	return &doc, nil
}

func (s *MemStore) Add(ctx context.Context, collection string, data models.JSONB) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.put(collection, id, data)
	return id, nil
}

func (s *MemStore) Update(ctx context.Context, collection, id string, patch models.JSONB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merge(collection, id, patch)
}

func (s *MemStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.docs[collection], id)
	return nil
}

func (s *MemStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(collection, q), nil
}

func (s *MemStore) NewBatch() Batch {
	return &memBatch{store: s}
}

// Count reports the number of documents in a collection.
func (s *MemStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

// put inserts or overwrites; caller holds the lock.
func (s *MemStore) put(collection, id string, data models.JSONB) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]*memDoc)
	}
	now := time.Now()
	created := now
	if existing, ok := s.docs[collection][id]; ok {
		created = existing.doc.CreatedAt
	}
	s.seq++
	s.docs[collection][id] = &memDoc{
		doc: Document{
			ID:         id,
			Collection: collection,
			Data:       cloneData(data),
			CreatedAt:  created,
			UpdatedAt:  now,
		},
		seq: s.seq,
	}
}

// merge applies a patch; caller holds the lock.
func (s *MemStore) merge(collection, id string, patch models.JSONB) error {
	md, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		md.doc.Data[k] = v
	}
	md.doc.UpdatedAt = time.Now()
	return nil
}

// collect filters and orders documents; caller holds at least a read lock.
func (s *MemStore) collect(collection string, q Query) []Document {
	var mds []*memDoc
	for _, md := range s.docs[collection] {
		keep := true
		for _, f := range q.Filters {
			if !matches(md.doc.Data, f) {
				keep = false
				break
			}
		}
		if keep {
			mds = append(mds, md)
		}
	}

	sort.Slice(mds, func(i, j int) bool {
		if q.NewestFirst {
			return mds[i].seq > mds[j].seq
		}
		return mds[i].seq < mds[j].seq
	})

	if q.Limit > 0 && len(mds) > q.Limit {
		mds = mds[:q.Limit]
	}

	docs := make([]Document, 0, len(mds))
	for _, md := range mds {
		docs = append(docs, cloneDocument(md.doc))
	}
	return docs
}

type memBatch struct {
	store *MemStore
	ops   []batchOp
}

func (b *memBatch) Set(collection, id string, data models.JSONB) {
	b.ops = append(b.ops, batchOp{kind: "set", collection: collection, id: id, data: data})
}

func (b *memBatch) Update(collection, id string, patch models.JSONB) {
	b.ops = append(b.ops, batchOp{kind: "update", collection: collection, id: id, data: patch})
}

func (b *memBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: "delete", collection: collection, id: id})
}

func (b *memBatch) Check(collection, id, field string, want interface{}) {
	b.ops = append(b.ops, batchOp{kind: "check", collection: collection, id: id, field: field, want: want})
}

func (b *memBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	// Validate everything before touching state so a failure leaves the
	// store untouched.
	for _, op := range b.ops {
		switch op.kind {
		case "check":
			md, ok := b.store.docs[op.collection][op.id]
			if !ok {
				return fmt.Errorf("%w: %s/%s missing", ErrCheckFailed, op.collection, op.id)
			}
			if !looseEqual(md.doc.Data[op.field], op.want) {
				return fmt.Errorf("%w: %s/%s field %s", ErrCheckFailed, op.collection, op.id, op.field)
			}
		case "update":
			if _, ok := b.store.docs[op.collection][op.id]; !ok {
				return fmt.Errorf("update %s/%s: %w", op.collection, op.id, ErrNotFound)
			}
		}
	}

	for _, op := range b.ops {
		switch op.kind {
		case "set":
			b.store.put(op.collection, op.id, op.data)
		case "update":
			b.store.merge(op.collection, op.id, op.data)
		case "delete":
			delete(b.store.docs[op.collection], op.id)
		}
	}
	return nil
}

func cloneData(data models.JSONB) models.JSONB {
	out := make(models.JSONB, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func cloneDocument(d Document) Document {
	d.Data = cloneData(d.Data)
	return d
}
