package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

)

// SQLiteRepository is the durable Backend: one table per record kind, the
// record itself kept as a JSON body.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %w", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %w", ErrUnavailable, err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ErrUnavailable, err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const (
	txColumns    = "id, body, created_at_ms, updated_at_ms, date_ms, amount, category, account, type"
	plainColumns = "id, body, created_at_ms, updated_at_ms"
)

func columnsFor(kind Kind) string {
	if kind == KindTransactions {
		return txColumns
	}
	return plainColumns
}

// Insert implements Backend.
func (r *SQLiteRepository) Insert(ctx context.Context, kind Kind, doc Document) (int64, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	var id any
	if doc.ID != 0 {
		id = doc.ID
	}
	query, args := insertStatement("INSERT", kind, id, doc)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if doc.ID != 0 && isConstraintError(err) {
			return 0, fmt.Errorf("%w: %s %d", ErrDuplicateID, kind, doc.ID)
		}
		return 0, fmt.Errorf("insert into %s: %w", kind, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read %s id: %w", kind, err)
	}
	return newID, nil
}

// Put implements Backend.
func (r *SQLiteRepository) Put(ctx context.Context, kind Kind, doc Document) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if doc.ID == 0 {
		return fmt.Errorf("put into %s: missing id", kind)
	}
	query, args := insertStatement("INSERT OR REPLACE", kind, doc.ID, doc)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put into %s: %w", kind, err)
	}
	return nil
}

func insertStatement(verb string, kind Kind, id any, doc Document) (string, []any) {
	created, updated := doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli()
	if kind == KindTransactions {
		ix := doc.Tx
		if ix == nil {
			ix = &TxIndex{}
		}
		return verb + " INTO transactions (" + txColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			[]any{id, string(doc.Body), created, updated, ix.Date.UnixMilli(), ix.Amount, ix.Category, ix.Account, ix.Type}
	}
	return verb + " INTO " + string(kind) + " (" + plainColumns + ") VALUES (?, ?, ?, ?)",
		[]any{id, string(doc.Body), created, updated}
}

// Get implements Backend.
func (r *SQLiteRepository) Get(ctx context.Context, kind Kind, id int64) (Document, error) {
	if err := checkKind(kind); err != nil {
		return Document{}, err
	}
	row := r.db.QueryRowContext(ctx,
		"SELECT "+columnsFor(kind)+" FROM "+string(kind)+" WHERE id = ?", id)
	doc, err := scanDocument(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return doc, nil
}

// List implements Backend.
func (r *SQLiteRepository) List(ctx context.Context, kind Kind, opts ListOptions) ([]Document, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	var orderBy string
	switch resolveOrder(kind, opts.Order) {
	case OrderDateDesc:
		orderBy = "date_ms DESC, id DESC"
	case OrderDateAsc:
		orderBy = "date_ms ASC, id ASC"
	default:
		orderBy = "id ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+columnsFor(kind)+" FROM "+string(kind)+" ORDER BY "+orderBy+" LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return collectDocuments(kind, rows)
}

// Range implements Backend.
func (r *SQLiteRepository) Range(ctx context.Context, start, end time.Time) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE date_ms BETWEEN ? AND ? ORDER BY date_ms DESC, id DESC",
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("range transactions: %w", err)
	}
	return collectDocuments(KindTransactions, rows)
}

// Replace implements Backend.
func (r *SQLiteRepository) Replace(ctx context.Context, kind Kind, doc Document) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	var (
		res sql.Result
		err error
	)
	if kind == KindTransactions {
		ix := doc.Tx
		if ix == nil {
			ix = &TxIndex{}
		}
		res, err = r.db.ExecContext(ctx,
			`UPDATE transactions SET body = ?, created_at_ms = ?, updated_at_ms = ?,
			 date_ms = ?, amount = ?, category = ?, account = ?, type = ? WHERE id = ?`,
			string(doc.Body), doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli(),
			ix.Date.UnixMilli(), ix.Amount, ix.Category, ix.Account, ix.Type, doc.ID)
	} else {
		res, err = r.db.ExecContext(ctx,
			"UPDATE "+string(kind)+" SET body = ?, created_at_ms = ?, updated_at_ms = ? WHERE id = ?",
			string(doc.Body), doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli(), doc.ID)
	}
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", kind, doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", kind, doc.ID, err)
	}
	return n > 0, nil
}

// Delete implements Backend.
func (r *SQLiteRepository) Delete(ctx context.Context, kind Kind, id int64) (bool, error) {
	if err := checkKind(kind); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+string(kind)+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return n > 0, nil
}

// Count implements Backend.
func (r *SQLiteRepository) Count(ctx context.Context, kind Kind) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Clear implements Backend.
func (r *SQLiteRepository) Clear(ctx context.Context, kind Kind) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+string(kind)); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	storageLogger(ctx).InfoContext(ctx, "Collection cleared", "kind", kind)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(kind Kind, s scanner) (Document, error) {
	var (
		doc              Document
		body             string
		created, updated int64
	)
	if kind == KindTransactions {
		var (
			ix     TxIndex
			dateMS int64
		)
		if err := s.Scan(&doc.ID, &body, &created, &updated, &dateMS, &ix.Amount, &ix.Category, &ix.Account, &ix.Type); err != nil {
			return Document{}, err
		}
		ix.Date = time.UnixMilli(dateMS).UTC()
		doc.Tx = &ix
	} else if err := s.Scan(&doc.ID, &body, &created, &updated); err != nil {
		return Document{}, err
	}
	doc.Body = []byte(body)
	doc.CreatedAt = time.UnixMilli(created).UTC()
	doc.UpdatedAt = time.UnixMilli(updated).UTC()
	return doc, nil
}

func collectDocuments(kind Kind, rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return docs, nil
}

func isConstraintError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
