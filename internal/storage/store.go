package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finpulse/internal/core"
	"finpulse/internal/log"
	"finpulse/internal/notify"
)

// SettingsSlotID is the fixed row holding the user settings.
const SettingsSlotID int64 = 1

// Store is the typed facade over a Backend. Mutations publish on the bus.
type Store struct {
	backend Backend
	bus     *notify.Bus
	now     func() time.Time

	Transactions *Collection[core.Transaction, *core.Transaction]
	Categories   *Collection[core.Category, *core.Category]
	Goals        *Collection[core.Goal, *core.Goal]
	Accounts     *Collection[core.Account, *core.Account]
	Budgets      *Collection[core.Budget, *core.Budget]
}

type Option func(*Store)

// WithClock overrides the clock used for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps backend. A nil bus gets a private one.
func New(backend Backend, bus *notify.Bus, opts ...Option) *Store {
	if bus == nil {
		bus = notify.NewBus()
	}
	s := &Store{
		backend: backend,
		bus:     bus,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Transactions = newCollection[core.Transaction](KindTransactions, s)
	s.Categories = newCollection[core.Category](KindCategories, s)
	s.Goals = newCollection[core.Goal](KindGoals, s)
	s.Accounts = newCollection[core.Account](KindAccounts, s)
	s.Budgets = newCollection[core.Budget](KindBudgets, s)
	return s
}

func (s *Store) Bus() *notify.Bus { return s.bus }

// Subscribe registers a change listener on the store's bus.
func (s *Store) Subscribe(h notify.Handler) func() {
	return s.bus.Subscribe(h)
}

// Publish emits a change event on behalf of a bulk operation such as an
// import.
func (s *Store) Publish(ctx context.Context, kind Kind, op string) {
	s.publish(ctx, kind, op)
}

func (s *Store) publish(ctx context.Context, kind Kind, op string) {
	s.bus.Publish(ctx, notify.Event{Kind: string(kind), Op: op, At: s.now()})
}

func storageLogger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentStorage)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Count reports the number of rows of any kind, settings included.
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	n, err := s.backend.Count(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// ClearAll empties every collection without publishing.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, kind := range Kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.backend.Clear(ctx, kind); err != nil {
			storageLogger(ctx).ErrorContext(ctx, "Failed to clear collection", "kind", kind, "error", err)
			return fmt.Errorf("clear %s: %w", kind, err)
		}
	}
	return nil
}

// Settings reads the settings slot; ok is false when it was never written.
func (s *Store) Settings(ctx context.Context) (settings core.UserSettings, ok bool, err error) {
	doc, err := s.backend.Get(ctx, KindSettings, SettingsSlotID)
	if errors.Is(err, ErrNotFound) {
		return settings, false, nil
	}
	if err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to read settings", "error", err)
		return settings, false, fmt.Errorf("get settings: %w", err)
	}
	if err := json.Unmarshal(doc.Body, &settings); err != nil {
		return settings, false, fmt.Errorf("decode settings: %w", err)
	}
	settings.ID = SettingsSlotID
	settings.Stamp(doc.CreatedAt, doc.UpdatedAt)
	return settings, true, nil
}

// SettingsOrDefault returns the stored settings, or def when the slot is
// empty. Nothing is written.
func (s *Store) SettingsOrDefault(ctx context.Context, def core.UserSettings) (core.UserSettings, error) {
	settings, ok, err := s.Settings(ctx)
	if err != nil {
		return core.UserSettings{}, err
	}
	if !ok {
		def.ID = 0
		return def, nil
	}
	return settings, nil
}

// SaveSettings validates and upserts the settings slot.
func (s *Store) SaveSettings(ctx context.Context, settings core.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	created := s.now()
	if doc, err := s.backend.Get(ctx, KindSettings, SettingsSlotID); err == nil {
		created = doc.CreatedAt
	}
	if err := s.putSettings(ctx, settings, created, s.now()); err != nil {
		storageLogger(ctx).ErrorContext(ctx, "Failed to save settings", "error", err)
		return err
	}
	s.publish(ctx, KindSettings, notify.OpUpdate)
	return nil
}

// RestoreSettings writes settings verbatim, without validation or event.
// Missing timestamps are stamped now.
func (s *Store) RestoreSettings(ctx context.Context, settings core.UserSettings) error {
	created, updated := settings.Stamps()
	now := s.now()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	return s.putSettings(ctx, settings, created, updated)
}

func (s *Store) putSettings(ctx context.Context, settings core.UserSettings, created, updated time.Time) error {
	settings.ID = SettingsSlotID
	settings.Stamp(created, updated)
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	doc := Document{ID: SettingsSlotID, Body: body, CreatedAt: created, UpdatedAt: updated}
	if err := s.backend.Put(ctx, KindSettings, doc); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}
