package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finpulse/internal/core"
	"finpulse/internal/notify"
)

// recordPtr constrains P to be *T implementing core.Record.
type recordPtr[T any] interface {
	*T
	core.Record
}

// Collection is the typed view over one record kind. Every successful
// mutation publishes exactly one change event; Restore and Clear publish
// nothing.
type Collection[T any, P recordPtr[T]] struct {
	kind  Kind
	store *Store
}

func newCollection[T any, P recordPtr[T]](kind Kind, s *Store) *Collection[T, P] {
	return &Collection[T, P]{kind: kind, store: s}
}

func (c *Collection[T, P]) Kind() Kind { return c.kind }

// Insert validates rec, stamps it and stores it under a fresh id. Any id
// already set on rec is ignored.
func (c *Collection[T, P]) Insert(ctx context.Context, rec T) (int64, error) {
	p := P(&rec)
	p.SetRecordID(0)
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("invalid %s record: %w", c.kind, err)
	}
	now := c.store.now()
	if st, ok := any(p).(core.Stamped); ok {
		st.Stamp(now, now)
	}

	doc, err := c.encode(&rec, now, now)
	if err != nil {
		return 0, err
	}
	id, err := c.store.backend.Insert(ctx, c.kind, doc)
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to insert record", "kind", c.kind, "error", err)
		return 0, fmt.Errorf("insert %s: %w", c.kind, err)
	}
	c.store.publish(ctx, c.kind, notify.OpInsert)
	return id, nil
}

// InsertMany validates every record before storing any, then inserts them
// in order and publishes a single import event. On a storage failure the
// records inserted so far stay and the event is still published.
func (c *Collection[T, P]) InsertMany(ctx context.Context, recs []T) ([]int64, error) {
	for i := range recs {
		if err := P(&recs[i]).Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s record %d: %w", c.kind, i, err)
		}
	}
	now := c.store.now()
	ids := make([]int64, 0, len(recs))
	var err error
	for i := range recs {
		rec := recs[i]
		p := P(&rec)
		p.SetRecordID(0)
		if st, ok := any(p).(core.Stamped); ok {
			st.Stamp(now, now)
		}
		var doc Document
		if doc, err = c.encode(&rec, now, now); err != nil {
			break
		}
		var id int64
		if id, err = c.store.backend.Insert(ctx, c.kind, doc); err != nil {
			storageLogger(ctx).ErrorContext(ctx, "Failed to insert record", "kind", c.kind, "index", i, "error", err)
			err = fmt.Errorf("insert %s record %d: %w", c.kind, i, err)
			break
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		c.store.publish(ctx, c.kind, notify.OpImport)
	}
	return ids, err
}

// GetMany lists records. Transactions default to newest first, the other
// kinds to id order.
func (c *Collection[T, P]) GetMany(ctx context.Context, opts ListOptions) ([]T, error) {
	docs, err := c.store.backend.List(ctx, c.kind, opts)
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to list records", "kind", c.kind, "error", err)
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}
	return c.decodeAll(docs)
}

// Get returns the record with id; ok is false when there is none.
func (c *Collection[T, P]) Get(ctx context.Context, id int64) (rec T, ok bool, err error) {
	doc, err := c.store.backend.Get(ctx, c.kind, id)
	if errors.Is(err, ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to get record", "kind", c.kind, "id", id, "error", err)
		return rec, false, fmt.Errorf("get %s %d: %w", c.kind, id, err)
	}
	rec, err = c.decode(doc)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// GetByDateRange returns the records dated within [start, end], both ends
// included, newest first. Only transactions carry a date index.
func (c *Collection[T, P]) GetByDateRange(ctx context.Context, start, end time.Time) ([]T, error) {
	if c.kind != KindTransactions {
		return nil, fmt.Errorf("%s: %w", c.kind, ErrNotIndexed)
	}
	w := core.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	docs, err := c.store.backend.Range(ctx, start, end)
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to query date range", "start", start, "end", end, "error", err)
		return nil, fmt.Errorf("range %s: %w", c.kind, err)
	}
	recs, err := c.decodeAll(docs)
	if err != nil {
		return nil, err
	}
	// The index stores milliseconds; filter again on the exact instant.
	out := recs[:0]
	for _, rec := range recs {
		if tx, ok := any(&rec).(*core.Transaction); ok && !w.Contains(tx.Date) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update merges patch (JSON field names) into the stored record. id and
// createdAt cannot be patched. It reports false, without an event, when
// there is no record with id.
func (c *Collection[T, P]) Update(ctx context.Context, id int64, patch map[string]any) (bool, error) {
	doc, err := c.store.backend.Get(ctx, c.kind, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to load record for update", "kind", c.kind, "id", id, "error", err)
		return false, fmt.Errorf("update %s %d: %w", c.kind, id, err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal(doc.Body, &fields); err != nil {
		return false, fmt.Errorf("decode %s %d: %w", c.kind, id, err)
	}
	for k, v := range patch {
		if k == "id" || k == "createdAt" {
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("encode %s patch: %w", c.kind, err)
	}
	var rec T
	if err := json.Unmarshal(merged, &rec); err != nil {
		return false, fmt.Errorf("apply %s patch: %w", c.kind, err)
	}
	return c.replace(ctx, id, rec, doc.CreatedAt)
}

// Save replaces the whole record stored under rec's id.
func (c *Collection[T, P]) Save(ctx context.Context, rec T) (bool, error) {
	id := P(&rec).RecordID()
	doc, err := c.store.backend.Get(ctx, c.kind, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save %s %d: %w", c.kind, id, err)
	}
	return c.replace(ctx, id, rec, doc.CreatedAt)
}

func (c *Collection[T, P]) replace(ctx context.Context, id int64, rec T, created time.Time) (bool, error) {
	p := P(&rec)
	p.SetRecordID(id)
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("invalid %s record: %w", c.kind, err)
	}
	now := c.store.now()
	if st, ok := any(p).(core.Stamped); ok {
		if orig, _ := st.Stamps(); !orig.IsZero() {
			created = orig
		}
		st.Stamp(created, now)
	}

	doc, err := c.encode(&rec, created, now)
	if err != nil {
		return false, err
	}
	doc.ID = id
	ok, err := c.store.backend.Replace(ctx, c.kind, doc)
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to update record", "kind", c.kind, "id", id, "error", err)
		return false, fmt.Errorf("update %s %d: %w", c.kind, id, err)
	}
	if ok {
		c.store.publish(ctx, c.kind, notify.OpUpdate)
	}
	return ok, nil
}

// Delete removes the record. Removing an unknown id is not an error and
// publishes nothing.
func (c *Collection[T, P]) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := c.store.backend.Delete(ctx, c.kind, id)
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to delete record", "kind", c.kind, "id", id, "error", err)
		return false, fmt.Errorf("delete %s %d: %w", c.kind, id, err)
	}
	if ok {
		c.store.publish(ctx, c.kind, notify.OpDelete)
	}
	return ok, nil
}

func (c *Collection[T, P]) Count(ctx context.Context) (int, error) {
	n, err := c.store.backend.Count(ctx, c.kind)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.kind, err)
	}
	return n, nil
}

func (c *Collection[T, P]) Clear(ctx context.Context) error {
	if err := c.store.backend.Clear(ctx, c.kind); err != nil {
		return fmt.Errorf("clear %s: %w", c.kind, err)
	}
	return nil
}

// Restore writes recs back verbatim: ids and timestamps are kept and no
// validation runs. Records without an id get a fresh one.
func (c *Collection[T, P]) Restore(ctx context.Context, recs []T) error {
	now := c.store.now()
	for i := range recs {
		rec := recs[i]
		created, updated := now, now
		if st, ok := any(P(&rec)).(core.Stamped); ok {
			ca, ua := st.Stamps()
			if !ca.IsZero() {
				created = ca
			}
			if !ua.IsZero() {
				updated = ua
			}
		}
		doc, err := c.encode(&rec, created, updated)
		if err != nil {
			return err
		}
		doc.ID = P(&rec).RecordID()
		if _, err := c.store.backend.Insert(ctx, c.kind, doc); err != nil {
			return fmt.Errorf("restore %s record %d: %w", c.kind, i, err)
		}
	}
	return nil
}

func (c *Collection[T, P]) encode(rec *T, created, updated time.Time) (Document, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	doc := Document{Body: body, CreatedAt: created, UpdatedAt: updated}
	if tx, ok := any(rec).(*core.Transaction); ok {
		doc.Tx = &TxIndex{
			Date:     tx.Date,
			Amount:   tx.Amount,
			Category: tx.Category,
			Account:  tx.Account,
			Type:     string(tx.Type),
		}
	}
	return doc, nil
}

func (c *Collection[T, P]) decode(doc Document) (T, error) {
	var rec T
	if err := json.Unmarshal(doc.Body, &rec); err != nil {
		return rec, fmt.Errorf("decode %s %d: %w", c.kind, doc.ID, err)
	}
	P(&rec).SetRecordID(doc.ID)
	return rec, nil
}

func (c *Collection[T, P]) decodeAll(docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
