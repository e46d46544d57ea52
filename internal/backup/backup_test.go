package backup

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpulse/internal/core"
	"finpulse/internal/notify"
	"finpulse/internal/seed"
	"finpulse/internal/storage"
)

func populated(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()
	s := storage.New(storage.NewMemoryStore(), nil)
	require.NoError(t, seed.EnsureDefaults(ctx, s))
	for i := 1; i <= 3; i++ {
		_, err := s.Transactions.Insert(ctx, core.Transaction{
			Date:     time.Date(2025, 10, i, 0, 0, 0, 0, time.UTC),
			Amount:   float64(i * 10),
			Type:     core.Expense,
			Category: "Housing",
		})
		require.NoError(t, err)
	}
	_, err := s.Goals.Insert(ctx, core.Goal{Name: "Trip", TargetAmount: 1000, Deadline: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = s.Budgets.Insert(ctx, core.Budget{CategoryID: 1, Amount: 300, Period: core.Monthly})
	require.NoError(t, err)
	return s
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewService(populated(t))

	snap, err := src.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, snap.Version)
	assert.Len(t, snap.Transactions, 3)
	assert.Len(t, snap.Categories, 12)
	require.NotNil(t, snap.Settings)

	path := filepath.Join(t.TempDir(), "nested", FileName(snap.ExportedAt))
	require.NoError(t, WriteFile(path, snap))
	loaded, err := ReadFile(path)
	require.NoError(t, err)

	dstStore := storage.New(storage.NewMemoryStore(), nil)
	// data in the target is wiped by the import
	_, err = dstStore.Accounts.Insert(ctx, core.Account{Name: "Old", Type: core.Cash})
	require.NoError(t, err)

	var events []notify.Event
	dstStore.Subscribe(func(_ context.Context, e notify.Event) { events = append(events, e) })

	require.NoError(t, NewService(dstStore).Import(ctx, loaded))
	require.Len(t, events, 1)
	assert.Equal(t, notify.OpImport, events[0].Op)

	again, err := NewService(dstStore).Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(snap.Transactions), len(again.Transactions))
	for i := range snap.Transactions {
		assert.Equal(t, snap.Transactions[i].ID, again.Transactions[i].ID)
		assert.True(t, snap.Transactions[i].CreatedAt.Equal(again.Transactions[i].CreatedAt))
		assert.Equal(t, snap.Transactions[i].Amount, again.Transactions[i].Amount)
	}
	assert.Equal(t, snap.Categories, again.Categories)
	assert.Equal(t, snap.Accounts, again.Accounts)
	assert.Equal(t, snap.Settings.Currency, again.Settings.Currency)
	assert.True(t, snap.Settings.CreatedAt.Equal(again.Settings.CreatedAt))
}

func TestDecode_MissingArraysAreEmpty(t *testing.T) {
	snap, err := Decode(strings.NewReader(`{"version":"1.0.0","categories":[{"name":"Food","type":"expense"}]}`))
	require.NoError(t, err)
	assert.NotNil(t, snap.Transactions)
	assert.Empty(t, snap.Transactions)
	assert.Len(t, snap.Categories, 1)
	assert.Nil(t, snap.Settings)

	s := storage.New(storage.NewMemoryStore(), nil)
	require.NoError(t, NewService(s).Import(context.Background(), snap))
	n, err := s.Categories.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := s.Settings(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"transactions": "nope"}`))
	assert.Error(t, err)
}

func TestEncode_EmptyArraysNotNull(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Encode(&sb, Snapshot{Version: Version}))
	assert.Contains(t, sb.String(), `"transactions": []`)
	assert.Contains(t, sb.String(), `"settings": null`)
}

func TestImport_UnknownVersionStillImports(t *testing.T) {
	s := storage.New(storage.NewMemoryStore(), nil)
	snap := Snapshot{Version: "0.9.0", Accounts: []core.Account{{ID: 5, Name: "Cash", Type: core.Cash}}}
	require.NoError(t, NewService(s).Import(context.Background(), snap))

	acc, ok, err := s.Accounts.Get(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Cash", acc.Name)
}

func TestImport_PartialFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	s := populated(t)
	snap := Snapshot{
		Version:      Version,
		Transactions: []core.Transaction{{ID: 1, Date: time.Now(), Type: core.Expense}},
		// duplicate ids make the categories restore fail
		Categories: []core.Category{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}},
		Goals:      []core.Goal{{ID: 1, Name: "never restored"}},
	}

	var events []notify.Event
	s.Subscribe(func(_ context.Context, e notify.Event) { events = append(events, e) })

	err := NewService(s).Import(ctx, snap)
	require.ErrorIs(t, err, storage.ErrDuplicateID)
	// the wipe and the partial restore still reach listeners
	require.Len(t, events, 1)
	assert.Equal(t, notify.OpImport, events[0].Op)

	n, err := s.Transactions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Goals.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImport_CanceledContextStillSignals(t *testing.T) {
	s := populated(t)
	var events []notify.Event
	s.Subscribe(func(_ context.Context, e notify.Event) { events = append(events, e) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewService(s).Import(ctx, Snapshot{Version: Version})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, events, 1)
}
