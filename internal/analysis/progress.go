package analysis

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"finpulse/internal/core"
)

// BudgetProgress reports the expense spend of every budget active in the
// window. Budgets point at categories by numeric id; an id that no longer
// resolves is reported under UncategorizedLabel and matches nothing.
func BudgetProgress(txs []core.Transaction, budgets []core.Budget, categories []core.Category, w core.Window) []core.BudgetUsage {
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	spent := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if t.Type != core.Expense || !w.Contains(t.Date) {
			continue
		}
		spent[t.Category] = spent[t.Category].Add(decimal.NewFromFloat(t.Amount))
	}

	out := make([]core.BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		if !budgetActive(b, w) {
			continue
		}
		usage := core.BudgetUsage{
			BudgetID: b.ID,
			Category: UncategorizedLabel,
			Period:   b.Period,
			Limit:    b.Amount,
		}
		if name, ok := names[b.CategoryID]; ok {
			usage.Category = name
			usage.Spent = toFloat(spent[name])
		}
		usage.Remaining = usage.Limit - usage.Spent
		if usage.Limit > 0 {
			usage.Percentage = usage.Spent / usage.Limit * 100
		}
		usage.Over = usage.Spent > usage.Limit
		out = append(out, usage)
	}
	return out
}

func budgetActive(b core.Budget, w core.Window) bool {
	if !b.StartDate.IsZero() && b.StartDate.After(w.End) {
		return false
	}
	if b.EndDate != nil && b.EndDate.Before(w.Start) {
		return false
	}
	return true
}

// GoalProgress reports how far each goal is from its target at now.
func GoalProgress(goals []core.Goal, now time.Time) []core.GoalStatus {
	out := make([]core.GoalStatus, 0, len(goals))
	for _, g := range goals {
		st := core.GoalStatus{
			GoalID:    g.ID,
			Name:      g.Name,
			Remaining: g.RemainingAmount(),
			Reached:   g.TargetAmount > 0 && g.CurrentAmount >= g.TargetAmount,
		}
		if g.TargetAmount > 0 {
			st.Percentage = math.Min(100, g.CurrentAmount/g.TargetAmount*100)
		}
		if !g.Deadline.IsZero() {
			if left := math.Ceil(float64(g.Deadline.Sub(now)) / float64(day)); left > 0 {
				st.DaysLeft = int(left)
			}
			st.Overdue = !st.Reached && now.After(g.Deadline)
		}
		out = append(out, st)
	}
	return out
}
