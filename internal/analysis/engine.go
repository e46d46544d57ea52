// Package analysis derives dashboard metrics from an in-memory transaction
// list and a date window. Every function here is pure: same inputs, same
// output, no I/O and no cached state.
package analysis

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finpulse/internal/core"
)

const (
	// UncategorizedLabel groups transactions whose category is empty or no
	// longer resolves.
	UncategorizedLabel = "Uncategorized"

	// WarningDailyBudget is the daily budget under which a window is flagged.
	// It is a plain magnitude, independent of the currency.
	WarningDailyBudget = 20.0

	day = 24 * time.Hour
)

// MonthlyStats sums income and expenses inside the window. Transfers are
// excluded from both sums.
func MonthlyStats(txs []core.Transaction, w core.Window) core.MonthlyStats {
	income, expenses := decimal.Zero, decimal.Zero
	for _, t := range txs {
		if !w.Contains(t.Date) {
			continue
		}
		switch t.Type {
		case core.Income:
			income = income.Add(decimal.NewFromFloat(t.Amount))
		case core.Expense:
			expenses = expenses.Add(decimal.NewFromFloat(t.Amount))
		}
	}
	in, out := toFloat(income), toFloat(expenses)
	return core.MonthlyStats{Income: in, Expenses: out, Balance: in - out}
}

// CategoryStats groups the window's transactions by category name.
//
// The per-category sum adds the stored magnitudes whatever the transaction
// type, so a category holding both income and expenses nets them together
// instead of subtracting. Results are sorted by amount, largest first.
func CategoryStats(txs []core.Transaction, w core.Window) []core.CategoryStat {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, t := range txs {
		if !w.Contains(t.Date) {
			continue
		}
		name := categoryLabel(t.Category)
		sums[name] = sums[name].Add(decimal.NewFromFloat(t.Amount))
		counts[name]++
	}

	total := decimal.Zero
	for _, s := range sums {
		total = total.Add(s)
	}

	out := make([]core.CategoryStat, 0, len(sums))
	for name, s := range sums {
		pct := 0.0
		if !total.IsZero() {
			pct = toFloat(s.Div(total).Mul(decimal.NewFromInt(100)))
		}
		out = append(out, core.CategoryStat{
			Category:   name,
			Amount:     toFloat(s),
			Percentage: pct,
			Count:      counts[name],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// RemainingDays counts whole days from now to the window end, rounded up and
// never below 1.
func RemainingDays(w core.Window, now time.Time) int {
	days := math.Ceil(float64(w.End.Sub(now)) / float64(day))
	if days < 1 {
		return 1
	}
	return int(days)
}

// FinancialPulse builds the health snapshot of a window as seen at now.
func FinancialPulse(txs []core.Transaction, w core.Window, now time.Time) core.Pulse {
	stats := MonthlyStats(txs, w)
	remaining := RemainingDays(w, now)
	daily := stats.Balance / float64(remaining)

	return core.Pulse{
		Status:              classify(daily),
		Score:               healthScore(stats),
		MonthlyIncome:       stats.Income,
		MonthlyExpenses:     stats.Expenses,
		RemainingBudget:     stats.Balance,
		DailyBudget:         daily,
		DaysUntilNextIncome: remaining,
		ProjectedEndOfMonth: stats.Balance,
	}
}

func classify(dailyBudget float64) core.PulseStatus {
	switch {
	case dailyBudget < 0:
		return core.StatusDanger
	case dailyBudget < WarningDailyBudget:
		return core.StatusWarning
	default:
		return core.StatusHealthy
	}
}

// healthScore is 50 at break-even, 100 with no expenses and 0 when spending
// doubles income. A window with no activity at all scores 100.
func healthScore(s core.MonthlyStats) float64 {
	if s.Income > 0 {
		return clamp(50+(s.Balance/s.Income)*50, 0, 100)
	}
	if s.Expenses == 0 {
		return 100
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func categoryLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return UncategorizedLabel
	}
	return name
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
