package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"finpulse/internal/analysis"
	"finpulse/internal/cache"
	"finpulse/internal/core"
	"finpulse/internal/notify"
	"finpulse/internal/seed"
	"finpulse/internal/storage"
)

// Snapshot is everything the ledger has loaded from the store.
type Snapshot struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Goals        []core.Goal
	Accounts     []core.Account
	Budgets      []core.Budget
	Settings     core.UserSettings
	LoadedAt     time.Time
}

// Dashboard groups every derived view of one window.
type Dashboard struct {
	Window     core.Window
	Stats      core.MonthlyStats
	Categories []core.CategoryStat
	Pulse      core.Pulse
	Budgets    []core.BudgetUsage
	Goals      []core.GoalStatus
}

// windowViewsCacheSize bounds how many windows keep memoized views.
const windowViewsCacheSize = 24

// windowViews are the derived views that depend only on the snapshot and
// the window, not on the current time.
type windowViews struct {
	stats      core.MonthlyStats
	categories []core.CategoryStat
	budgets    []core.BudgetUsage
}

// Ledger owns the in-memory copy of the store and recomputes the derived
// views from it. It reloads itself whenever the store signals a change,
// local or remote.
type Ledger struct {
	store *storage.Store
	now   func() time.Time

	mu    sync.RWMutex
	snap  Snapshot
	views *cache.LRU[string, windowViews]
	loads singleflight.Group

	unsubscribe func()
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store *storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		views: cache.NewLRU[string, windowViews](windowViewsCacheSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.unsubscribe = store.Subscribe(l.onChange)
	return l
}

func (l *Ledger) onChange(ctx context.Context, e notify.Event) {
	if err := l.Load(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reload after change",
			"error", err, "kind", e.Kind, "op", e.Op, "source", e.Source)
	}
}

// Load refetches all six kinds concurrently. Concurrent calls share one
// fetch.
func (l *Ledger) Load(ctx context.Context) error {
	_, err, _ := l.loads.Do("load", func() (any, error) {
		return nil, l.load(ctx)
	})
	return err
}

func (l *Ledger) load(ctx context.Context) error {
	var snap Snapshot
	all := storage.ListOptions{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Transactions, err = l.store.Transactions.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Categories, err = l.store.Categories.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Goals, err = l.store.Goals.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Accounts, err = l.store.Accounts.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Budgets, err = l.store.Budgets.GetMany(gctx, all)
		return err
	})
	g.Go(func() (err error) {
		snap.Settings, err = l.store.SettingsOrDefault(gctx, seed.DefaultSettings())
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	snap.LoadedAt = l.now()

	l.mu.Lock()
	l.snap = snap
	l.views.Purge()
	l.mu.Unlock()

	slog.DebugContext(ctx, "Ledger loaded",
		"transactions", len(snap.Transactions),
		"goals", len(snap.Goals))
	return nil
}

// Snapshot returns a deep enough copy of the loaded data for callers to
// modify freely.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Transactions: slices.Clone(l.snap.Transactions),
		Categories:   slices.Clone(l.snap.Categories),
		Goals:        slices.Clone(l.snap.Goals),
		Accounts:     slices.Clone(l.snap.Accounts),
		Budgets:      slices.Clone(l.snap.Budgets),
		Settings:     l.snap.Settings,
		LoadedAt:     l.snap.LoadedAt,
	}
}

func (l *Ledger) Transactions() []core.Transaction { return l.Snapshot().Transactions }
func (l *Ledger) Categories() []core.Category     { return l.Snapshot().Categories }
func (l *Ledger) Accounts() []core.Account         { return l.Snapshot().Accounts }
func (l *Ledger) Settings() core.UserSettings      { return l.Snapshot().Settings }

// Commands. Each mutation publishes through the store, which reloads the
// ledger before the command returns.

func (l *Ledger) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	return l.store.Transactions.Insert(ctx, tx)
}

func (l *Ledger) UpdateTransaction(ctx context.Context, id int64, patch map[string]any) (bool, error) {
	return l.store.Transactions.Update(ctx, id, patch)
}

// ImportTransactions stores a batch with one change event.
func (l *Ledger) ImportTransactions(ctx context.Context, txs []core.Transaction) ([]int64, error) {
	ids, err := l.store.Transactions.InsertMany(ctx, txs)
	if err != nil {
		return ids, err
	}
	slog.InfoContext(ctx, "Transactions imported", "count", len(ids))
	return ids, nil
}

func (l *Ledger) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	return l.store.Transactions.Delete(ctx, id)
}

func (l *Ledger) AddGoal(ctx context.Context, g core.Goal) (int64, error) {
	return l.store.Goals.Insert(ctx, g)
}

func (l *Ledger) UpdateGoal(ctx context.Context, id int64, patch map[string]any) (bool, error) {
	return l.store.Goals.Update(ctx, id, patch)
}

// ContributeToGoal adds amount to the goal's current amount. Overshooting
// the target is allowed.
func (l *Ledger) ContributeToGoal(ctx context.Context, id int64, amount float64) (core.Goal, error) {
	if amount <= 0 {
		return core.Goal{}, core.ErrInvalidAmount
	}
	g, ok, err := l.store.Goals.Get(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	if !ok {
		return core.Goal{}, fmt.Errorf("goal %d: %w", id, storage.ErrNotFound)
	}

	sum := decimal.NewFromFloat(g.CurrentAmount).Add(decimal.NewFromFloat(amount))
	g.CurrentAmount, _ = sum.Round(2).Float64()
	if _, err := l.store.Goals.Save(ctx, g); err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal contribution recorded",
		"goal_id", id, "amount", amount, "current", g.CurrentAmount)
	return g, nil
}

func (l *Ledger) DeleteGoal(ctx context.Context, id int64) (bool, error) {
	return l.store.Goals.Delete(ctx, id)
}

func (l *Ledger) AddCategory(ctx context.Context, c core.Category) (int64, error) {
	return l.store.Categories.Insert(ctx, c)
}

// DeleteCategory removes the category only. Transactions keep the name and
// show up under it, or under the fallback label once it is empty.
func (l *Ledger) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	return l.store.Categories.Delete(ctx, id)
}

func (l *Ledger) AddAccount(ctx context.Context, a core.Account) (int64, error) {
	return l.store.Accounts.Insert(ctx, a)
}

func (l *Ledger) AddBudget(ctx context.Context, b core.Budget) (int64, error) {
	return l.store.Budgets.Insert(ctx, b)
}

func (l *Ledger) SaveSettings(ctx context.Context, s core.UserSettings) error {
	return l.store.SaveSettings(ctx, s)
}

// Queries over the loaded snapshot.

// viewsLocked returns the memoized views of w. The caller holds l.mu.
func (l *Ledger) viewsLocked(w core.Window) windowViews {
	key := w.Start.Format(time.RFC3339Nano) + "/" + w.End.Format(time.RFC3339Nano)
	if v, ok := l.views.Get(key); ok {
		return v
	}
	v := windowViews{
		stats:      analysis.MonthlyStats(l.snap.Transactions, w),
		categories: analysis.CategoryStats(l.snap.Transactions, w),
		budgets:    analysis.BudgetProgress(l.snap.Transactions, l.snap.Budgets, l.snap.Categories, w),
	}
	l.views.Set(key, v)
	return v
}

func (l *Ledger) MonthlyStats(w core.Window) core.MonthlyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viewsLocked(w).stats
}

func (l *Ledger) CategoryStats(w core.Window) []core.CategoryStat {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.viewsLocked(w).categories)
}

func (l *Ledger) Pulse(w core.Window) core.Pulse {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return analysis.FinancialPulse(l.snap.Transactions, w, l.now())
}

func (l *Ledger) Budgets(w core.Window) []core.BudgetUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.viewsLocked(w).budgets)
}

func (l *Ledger) Goals() []core.GoalStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return analysis.GoalProgress(l.snap.Goals, l.now())
}

// Dashboard computes every view of w from one consistent snapshot.
func (l *Ledger) Dashboard(w core.Window) Dashboard {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := l.now()
	v := l.viewsLocked(w)
	return Dashboard{
		Window:     w,
		Stats:      v.stats,
		Categories: slices.Clone(v.categories),
		Pulse:      analysis.FinancialPulse(l.snap.Transactions, w, now),
		Budgets:    slices.Clone(v.budgets),
		Goals:      analysis.GoalProgress(l.snap.Goals, now),
	}
}

// Watch calls fn after every reload triggered by a change event until ctx
// is done. The ledger has already refetched when fn runs.
func (l *Ledger) Watch(ctx context.Context, fn func(ctx context.Context, e notify.Event)) error {
	unsubscribe := l.store.Subscribe(fn)
	defer unsubscribe()
	<-ctx.Done()
	return nil
}

// Close detaches the ledger from the store's bus. The store stays open.
func (l *Ledger) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}
