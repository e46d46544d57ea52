package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind names a record collection. The value doubles as the table name.
type Kind string

const (
	KindTransactions Kind = "transactions"
	KindCategories   Kind = "categories"
	KindGoals        Kind = "goals"
	KindAccounts     Kind = "accounts"
	KindBudgets      Kind = "budgets"
	KindSettings     Kind = "settings"
)

// Kinds lists every collection in backup order.
var Kinds = []Kind{KindTransactions, KindCategories, KindGoals, KindAccounts, KindBudgets, KindSettings}

func (k Kind) IsValid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

var (
	// ErrUnavailable wraps every failure to open or prepare the storage medium.
	ErrUnavailable = errors.New("storage unavailable")
	ErrUnknownKind = errors.New("unknown record kind")
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate record id")
	ErrNotIndexed  = errors.New("collection has no date index")
)

// Order selects the sort order of a listing.
type Order int

const (
	// OrderDefault is date descending for transactions and id ascending for
	// everything else.
	OrderDefault Order = iota
	OrderDateDesc
	OrderDateAsc
	OrderID
)

// ListOptions paginates a listing. Limit <= 0 means no limit.
type ListOptions struct {
	Limit  int
	Offset int
	Order  Order
}

// TxIndex holds the indexed columns of a transaction row.
type TxIndex struct {
	Date     time.Time
	Amount   float64
	Category string
	Account  string
	Type     string
}

// Document is the raw stored form of any record: its JSON body plus the
// bookkeeping columns.
type Document struct {
	ID        int64
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	Tx        *TxIndex // transactions only
}

// Backend is the raw document layer. Identifiers are auto-incrementing and
// never reused, even after Clear.
type Backend interface {
	// Insert stores doc. A zero doc.ID gets the next identifier; a non-zero
	// one is kept as is and must not exist yet.
	Insert(ctx context.Context, kind Kind, doc Document) (int64, error)
	// Put stores doc at doc.ID, replacing whatever was there.
	Put(ctx context.Context, kind Kind, doc Document) error
	Get(ctx context.Context, kind Kind, id int64) (Document, error)
	List(ctx context.Context, kind Kind, opts ListOptions) ([]Document, error)
	// Range returns transactions dated within [start, end], newest first.
	Range(ctx context.Context, start, end time.Time) ([]Document, error)
	// Replace overwrites an existing row and reports whether it existed.
	Replace(ctx context.Context, kind Kind, doc Document) (bool, error)
	// Delete removes a row and reports whether it existed.
	Delete(ctx context.Context, kind Kind, id int64) (bool, error)
	Count(ctx context.Context, kind Kind) (int, error)
	Clear(ctx context.Context, kind Kind) error
	Close() error
}

func resolveOrder(kind Kind, o Order) Order {
	if o != OrderDefault {
		if kind != KindTransactions && (o == OrderDateAsc || o == OrderDateDesc) {
			return OrderID
		}
		return o
	}
	if kind == KindTransactions {
		return OrderDateDesc
	}
	return OrderID
}

func checkKind(kind Kind) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	return nil
}
