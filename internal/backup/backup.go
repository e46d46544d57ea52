// Package backup exports the whole store to a versioned JSON snapshot and
// restores it again.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"finpulse/internal/core"
	"finpulse/internal/log"
	"finpulse/internal/notify"
	"finpulse/internal/storage"
)

// Version is the only snapshot format produced.
const Version = "1.0.0"

// Snapshot is the backup file layout.
type Snapshot struct {
	Version      string             `json:"version"`
	ExportedAt   time.Time          `json:"exportedAt"`
	Transactions []core.Transaction `json:"transactions"`
	Categories   []core.Category    `json:"categories"`
	Goals        []core.Goal        `json:"goals"`
	Accounts     []core.Account     `json:"accounts"`
	Budgets      []core.Budget      `json:"budgets"`
	Settings     *core.UserSettings `json:"settings"`
}

// Records counts the records in the snapshot, settings included.
func (s Snapshot) Records() int {
	n := len(s.Transactions) + len(s.Categories) + len(s.Goals) + len(s.Accounts) + len(s.Budgets)
	if s.Settings != nil {
		n++
	}
	return n
}

type Service struct {
	store *storage.Store
	now   func() time.Time
}

func NewService(store *storage.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Export reads every kind. The reads run concurrently and take no locks, so
// a write landing mid-export may or may not be included.
func (s *Service) Export(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Version: Version, ExportedAt: s.now()}
	all := storage.ListOptions{Order: storage.OrderID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Transactions, err = s.store.Transactions.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Categories, err = s.store.Categories.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Goals, err = s.store.Goals.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Accounts, err = s.store.Accounts.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Budgets, err = s.store.Budgets.GetMany(gctx, all)
		return err
	})
	g.Go(func() error {
		settings, ok, err := s.store.Settings(gctx)
		if err != nil {
			return err
		}
		if ok {
			snap.Settings = &settings
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("export snapshot: %w", err)
	}

	opLogger(ctx, "export").InfoContext(ctx, "Snapshot exported", "records", snap.Records())
	return snap, nil
}

// Import replaces the store contents with snap. Every kind is cleared first,
// then each array is restored with its ids and timestamps. There is no
// rollback: a failure part way leaves whatever was written so far. Exactly
// one change event is published once the clear has started, whether the
// import completes or not.
func (s *Service) Import(ctx context.Context, snap Snapshot) error {
	logger := opLogger(ctx, "import")
	if snap.Version != Version {
		logger.WarnContext(ctx, "Importing snapshot with unexpected version",
			"version", snap.Version, "expected", Version)
	}

	defer s.store.Publish(context.WithoutCancel(ctx), "", notify.OpImport)

	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	steps := []struct {
		kind    storage.Kind
		restore func() error
	}{
		{storage.KindTransactions, func() error { return s.store.Transactions.Restore(ctx, snap.Transactions) }},
		{storage.KindCategories, func() error { return s.store.Categories.Restore(ctx, snap.Categories) }},
		{storage.KindGoals, func() error { return s.store.Goals.Restore(ctx, snap.Goals) }},
		{storage.KindAccounts, func() error { return s.store.Accounts.Restore(ctx, snap.Accounts) }},
		{storage.KindBudgets, func() error { return s.store.Budgets.Restore(ctx, snap.Budgets) }},
		{storage.KindSettings, func() error {
			if snap.Settings == nil {
				return nil
			}
			return s.store.RestoreSettings(ctx, *snap.Settings)
		}},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		if err := step.restore(); err != nil {
			logger.ErrorContext(ctx, "Snapshot import stopped part way",
				log.FieldKind, step.kind, log.FieldError, err)
			return fmt.Errorf("import %s: %w", step.kind, err)
		}
	}

	logger.InfoContext(ctx, "Snapshot imported", "records", snap.Records())
	return nil
}

func opLogger(ctx context.Context, op string) *log.Logger {
	return log.FromContext(ctx).
		WithComponent(log.ComponentBackup).
		With(log.NewFields().WithOperation(op).ToSlice()...)
}

// Encode writes snap as indented JSON. Nil slices are written as [].
func Encode(w io.Writer, snap Snapshot) error {
	snap = normalize(snap)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Decode reads a snapshot. Missing arrays come back empty; no further
// validation is done.
func Decode(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return normalize(snap), nil
}

func WriteFile(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	if err := Encode(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// FileName is the default name for a backup taken at t.
func FileName(t time.Time) string {
	return "finpulse-backup-" + t.Format("2006-01-02-150405") + ".json"
}

func normalize(snap Snapshot) Snapshot {
	if snap.Transactions == nil {
		snap.Transactions = []core.Transaction{}
	}
	if snap.Categories == nil {
		snap.Categories = []core.Category{}
	}
	if snap.Goals == nil {
		snap.Goals = []core.Goal{}
	}
	if snap.Accounts == nil {
		snap.Accounts = []core.Account{}
	}
	if snap.Budgets == nil {
		snap.Budgets = []core.Budget{}
	}
	return snap
}
