package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Backend used by tests and by
// DATA_BACKEND=memory. It copies bodies on the way in and out.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[Kind]map[int64]Document
	next   map[Kind]int64
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		tables: make(map[Kind]map[int64]Document, len(Kinds)),
		next:   make(map[Kind]int64, len(Kinds)),
	}
	for _, k := range Kinds {
		s.tables[k] = make(map[int64]Document)
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, kind Kind, doc Document) (int64, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.tables[kind]
	if doc.ID == 0 {
		s.next[kind]++
		doc.ID = s.next[kind]
	} else {
		if _, ok := table[doc.ID]; ok {
			return 0, fmt.Errorf("%w: %s %d", ErrDuplicateID, kind, doc.ID)
		}
		if doc.ID > s.next[kind] {
			s.next[kind] = doc.ID
		}
	}
	table[doc.ID] = cloneDocument(doc)
	return doc.ID, nil
}

func (s *MemoryStore) Put(_ context.Context, kind Kind, doc Document) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if doc.ID == 0 {
		return fmt.Errorf("put into %s: missing id", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID > s.next[kind] {
		s.next[kind] = doc.ID
	}
	s.tables[kind][doc.ID] = cloneDocument(doc)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, id int64) (Document, error) {
	if err := checkKind(kind); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.tables[kind][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) List(_ context.Context, kind Kind, opts ListOptions) ([]Document, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	docs := make([]Document, 0, len(s.tables[kind]))
	for _, doc := range s.tables[kind] {
		docs = append(docs, cloneDocument(doc))
	}
	s.mu.Unlock()

	sortDocuments(docs, resolveOrder(kind, opts.Order))

	if opts.Offset > 0 {
		if opts.Offset >= len(docs) {
			return nil, nil
		}
		docs = docs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

func (s *MemoryStore) Range(_ context.Context, start, end time.Time) ([]Document, error) {
	s.mu.Lock()
	var docs []Document
	for _, doc := range s.tables[KindTransactions] {
		if doc.Tx == nil || doc.Tx.Date.Before(start) || doc.Tx.Date.After(end) {
			continue
		}
		docs = append(docs, cloneDocument(doc))
	}
	s.mu.Unlock()

	sortDocuments(docs, OrderDateDesc)
	return docs, nil
}

func (s *MemoryStore) Replace(_ context.Context, kind Kind, doc Document) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[kind][doc.ID]; !ok {
		return false, nil
	}
	s.tables[kind][doc.ID] = cloneDocument(doc)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, id int64) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[kind][id]; !ok {
		return false, nil
	}
	delete(s.tables[kind], id)
	return true, nil
}

func (s *MemoryStore) Count(_ context.Context, kind Kind) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[kind]), nil
}

// Clear empties a collection. The id counter keeps going.
func (s *MemoryStore) Clear(_ context.Context, kind Kind) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[kind] = make(map[int64]Document)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func sortDocuments(docs []Document, order Order) {
	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		switch order {
		case OrderDateDesc, OrderDateAsc:
			var da, db time.Time
			if a.Tx != nil {
				da = a.Tx.Date
			}
			if b.Tx != nil {
				db = b.Tx.Date
			}
			if !da.Equal(db) {
				if order == OrderDateDesc {
					return da.After(db)
				}
				return da.Before(db)
			}
			if order == OrderDateDesc {
				return a.ID > b.ID
			}
		}
		return a.ID < b.ID
	})
}

func cloneDocument(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	if doc.Tx != nil {
		ix := *doc.Tx
		doc.Tx = &ix
	}
	return doc
}
