package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpulse/internal/core"
	"finpulse/internal/notify"
)

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) handle(_ context.Context, e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

var backends = map[string]func(t *testing.T) Backend{
	"memory": func(t *testing.T) Backend { return NewMemoryStore() },
	"sqlite": func(t *testing.T) Backend {
		repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finpulse.db"))
		require.NoError(t, err)
		return repo
	},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store, events *eventLog)) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() { b.Close() })
			clock := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
			s := New(b, nil, WithClock(func() time.Time {
				clock = clock.Add(time.Second)
				return clock
			}))
			events := &eventLog{}
			s.Subscribe(events.handle)
			fn(t, s, events)
		})
	}
}

func day(d int) time.Time {
	return time.Date(2025, 10, d, 12, 0, 0, 0, time.UTC)
}

func expense(d int, amount float64, category string) core.Transaction {
	return core.Transaction{Date: day(d), Amount: amount, Type: core.Expense, Category: category, Account: "Main Account"}
}

func TestStore_InsertAssignsIDsAndStamps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()

		in := expense(3, 12.5, "Food")
		in.ID = 99
		id1, err := s.Transactions.Insert(ctx, in)
		require.NoError(t, err)
		id2, err := s.Transactions.Insert(ctx, expense(4, 1, "Food"))
		require.NoError(t, err)
		assert.NotEqual(t, int64(99), id1)
		assert.Greater(t, id2, id1)

		got, ok, err := s.Transactions.Get(ctx, id1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id1, got.ID)
		assert.Equal(t, 12.5, got.Amount)
		assert.False(t, got.CreatedAt.IsZero())
		assert.Equal(t, got.CreatedAt, got.UpdatedAt)
		assert.Equal(t, 2, events.len())
	})
}

func TestStore_InsertRejectsInvalidRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()
		_, err := s.Transactions.Insert(ctx, core.Transaction{Date: day(1), Amount: -1, Type: core.Expense})
		require.ErrorIs(t, err, core.ErrInvalidAmount)
		_, err = s.Goals.Insert(ctx, core.Goal{Name: "Trip"})
		require.ErrorIs(t, err, core.ErrInvalidTargetValue)

		n, err := s.Transactions.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, events.len())
	})
}

func TestStore_InsertManyPublishesOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()

		ids, err := s.Transactions.InsertMany(ctx, []core.Transaction{expense(1, 5, "Food"), expense(2, 6, "Food")})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		require.Equal(t, 1, events.len())
		assert.Equal(t, notify.OpImport, events.events[0].Op)

		got, ok, err := s.Transactions.Get(ctx, ids[1])
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, got.CreatedAt.IsZero())

		// one bad record rejects the whole batch
		bad := expense(3, -1, "Food")
		_, err = s.Transactions.InsertMany(ctx, []core.Transaction{expense(3, 1, "Food"), bad})
		assert.ErrorIs(t, err, core.ErrInvalidAmount)
		n, err := s.Transactions.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, events.len())
	})
}

func TestStore_GetManyOrdersTransactionsNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *eventLog) {
		ctx := context.Background()
		for _, d := range []int{5, 1, 9, 5} {
			_, err := s.Transactions.Insert(ctx, expense(d, float64(d), "Food"))
			require.NoError(t, err)
		}

		txs, err := s.Transactions.GetMany(ctx, ListOptions{})
		require.NoError(t, err)
		require.Len(t, txs, 4)
		assert.Equal(t, day(9), txs[0].Date.UTC())
		// same date: higher id first
		assert.Greater(t, txs[1].ID, txs[2].ID)
		assert.Equal(t, day(1), txs[3].Date.UTC())

		page, err := s.Transactions.GetMany(ctx, ListOptions{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, txs[1].ID, page[0].ID)

		asc, err := s.Transactions.GetMany(ctx, ListOptions{Order: OrderDateAsc})
		require.NoError(t, err)
		assert.Equal(t, day(1), asc[0].Date.UTC())
	})
}

func TestStore_GetByDateRangeIsInclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *eventLog) {
		ctx := context.Background()
		w := core.MonthWindow(day(15))
		for _, tx := range []core.Transaction{
			{Date: w.Start, Amount: 1, Type: core.Expense},
			{Date: w.End.Truncate(time.Millisecond), Amount: 2, Type: core.Expense},
			{Date: w.Start.Add(-time.Millisecond), Amount: 3, Type: core.Expense},
			{Date: w.End.Add(time.Millisecond), Amount: 4, Type: core.Expense},
			{Date: day(10), Amount: 5, Type: core.Income},
		} {
			_, err := s.Transactions.Insert(ctx, tx)
			require.NoError(t, err)
		}

		txs, err := s.Transactions.GetByDateRange(ctx, w.Start, w.End)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, 2.0, txs[0].Amount)
		assert.Equal(t, 5.0, txs[1].Amount)
		assert.Equal(t, 1.0, txs[2].Amount)

		_, err = s.Goals.GetByDateRange(ctx, w.Start, w.End)
		assert.ErrorIs(t, err, ErrNotIndexed)
	})
}

func TestStore_UpdateMergesFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()
		id, err := s.Goals.Insert(ctx, core.Goal{Name: "Trip", TargetAmount: 1000, Deadline: day(30)})
		require.NoError(t, err)
		before, _, err := s.Goals.Get(ctx, id)
		require.NoError(t, err)

		ok, err := s.Goals.Update(ctx, id, map[string]any{
			"currentAmount": 250,
			"id":            12345,
			"createdAt":     time.Unix(0, 0),
		})
		require.NoError(t, err)
		require.True(t, ok)

		after, _, err := s.Goals.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, after.ID)
		assert.Equal(t, "Trip", after.Name)
		assert.Equal(t, 250.0, after.CurrentAmount)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
		assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
		assert.Equal(t, 2, events.len())

		_, err = s.Goals.Update(ctx, id, map[string]any{"targetAmount": 0})
		assert.ErrorIs(t, err, core.ErrInvalidTargetValue)
	})
}

func TestStore_UpdateAndDeleteMissingAreSilent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()

		ok, err := s.Transactions.Update(ctx, 42, map[string]any{"amount": 1})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.Categories.Delete(ctx, 42)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Zero(t, events.len())
	})
}

func TestStore_DeleteIsHardAndPublishes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()
		id, err := s.Accounts.Insert(ctx, core.Account{Name: "Cash", Type: core.Cash, Currency: "EUR", IsActive: true})
		require.NoError(t, err)

		ok, err := s.Accounts.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		_, found, err := s.Accounts.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 2, events.len())
	})
}

func TestStore_IDsNotReusedAfterClear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *eventLog) {
		ctx := context.Background()
		first, err := s.Categories.Insert(ctx, core.Category{Name: "Food", Type: core.CategoryExpense})
		require.NoError(t, err)
		require.NoError(t, s.ClearAll(ctx))

		second, err := s.Categories.Insert(ctx, core.Category{Name: "Food", Type: core.CategoryExpense})
		require.NoError(t, err)
		assert.Greater(t, second, first)
	})
}

func TestStore_RestoreKeepsIDsAndTimestamps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()
		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		recs := []core.Transaction{
			{ID: 7, Date: day(2), Amount: 10, Type: core.Expense, CreatedAt: created, UpdatedAt: created},
			// restore skips validation
			{ID: 3, Date: day(3), Amount: -5, Type: "bogus"},
		}
		require.NoError(t, s.Transactions.Restore(ctx, recs))

		got, ok, err := s.Transactions.Get(ctx, 7)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, created.Equal(got.CreatedAt))

		_, ok, err = s.Transactions.Get(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		next, err := s.Transactions.Insert(ctx, expense(4, 1, ""))
		require.NoError(t, err)
		assert.Greater(t, next, int64(7))
		// only the insert published
		assert.Equal(t, 1, events.len())

		err = s.Transactions.Restore(ctx, []core.Transaction{{ID: 7, Date: day(1), Type: core.Expense}})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})
}

func TestStore_SettingsSlot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()

		_, ok, err := s.Settings(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		def := core.UserSettings{Currency: "EUR", Theme: "system"}
		got, err := s.SettingsOrDefault(ctx, def)
		require.NoError(t, err)
		assert.Equal(t, "EUR", got.Currency)
		n, err := s.Count(ctx, KindSettings)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.SaveSettings(ctx, core.UserSettings{Currency: "CHF", WeekStartsOn: 1}))
		require.NoError(t, s.SaveSettings(ctx, core.UserSettings{Currency: "USD", WeekStartsOn: 0}))

		got, ok, err = s.Settings(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "USD", got.Currency)
		assert.Equal(t, SettingsSlotID, got.ID)

		n, err = s.Count(ctx, KindSettings)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, events.len())

		err = s.SaveSettings(ctx, core.UserSettings{Currency: "EUR", WeekStartsOn: 9})
		assert.Error(t, err)
	})
}

func TestStore_SettingsTimestampsSurviveRestore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, events *eventLog) {
		ctx := context.Background()
		created := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
		updated := time.Date(2024, 9, 15, 18, 0, 0, 0, time.UTC)

		require.NoError(t, s.RestoreSettings(ctx, core.UserSettings{
			Currency:  "EUR",
			CreatedAt: created,
			UpdatedAt: updated,
		}))
		got, ok, err := s.Settings(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.CreatedAt.Equal(created), "created %v", got.CreatedAt)
		assert.True(t, got.UpdatedAt.Equal(updated), "updated %v", got.UpdatedAt)
		assert.Zero(t, events.len())

		// a later save keeps createdAt and bumps updatedAt
		got.Currency = "CHF"
		require.NoError(t, s.SaveSettings(ctx, got))
		got, _, err = s.Settings(ctx)
		require.NoError(t, err)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.True(t, got.UpdatedAt.After(updated))

		// settings without stamps are stamped on restore
		require.NoError(t, s.RestoreSettings(ctx, core.UserSettings{Currency: "USD"}))
		got, _, err = s.Settings(ctx)
		require.NoError(t, err)
		assert.False(t, got.CreatedAt.IsZero())
	})
}

func TestStore_UnknownKind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *eventLog) {
		_, err := s.Count(context.Background(), Kind("invoices"))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestNewSQLiteRepository_Unavailable(t *testing.T) {
	dir := t.TempDir()
	// a directory cannot be opened as a database file
	_, err := NewSQLiteRepository(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
