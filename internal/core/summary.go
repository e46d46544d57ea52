package core

// PulseStatus classifies the daily budget left in a window.
type PulseStatus string

const (
	StatusHealthy PulseStatus = "healthy"
	StatusWarning PulseStatus = "warning"
	StatusDanger  PulseStatus = "danger"
)

// MonthlyStats sums income and expenses of a window. Transfers are not counted.
type MonthlyStats struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

// CategoryStat is one row of a category breakdown.
type CategoryStat struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// Pulse is the composite health snapshot of a window.
type Pulse struct {
	Status              PulseStatus `json:"status"`
	Score               float64     `json:"score"`
	MonthlyIncome       float64     `json:"monthlyIncome"`
	MonthlyExpenses     float64     `json:"monthlyExpenses"`
	RemainingBudget     float64     `json:"remainingBudget"`
	DailyBudget         float64     `json:"dailyBudget"`
	DaysUntilNextIncome int         `json:"daysUntilNextIncome"`
	ProjectedEndOfMonth float64     `json:"projectedEndOfMonth"`
}

// BudgetUsage reports how much of a budget was spent in a window.
type BudgetUsage struct {
	BudgetID   int64        `json:"budgetId"`
	Category   string       `json:"category"`
	Period     BudgetPeriod `json:"period"`
	Limit      float64      `json:"limit"`
	Spent      float64      `json:"spent"`
	Remaining  float64      `json:"remaining"`
	Percentage float64      `json:"percentage"`
	Over       bool         `json:"over"`
}

// GoalStatus reports the progress of a savings goal at a point in time.
type GoalStatus struct {
	GoalID     int64   `json:"goalId"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Remaining  float64 `json:"remaining"`
	DaysLeft   int     `json:"daysLeft"`
	Reached    bool    `json:"reached"`
	Overdue    bool    `json:"overdue"`
}
