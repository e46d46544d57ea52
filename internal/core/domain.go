package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
	CategoryBoth    CategoryType = "both"
)

const (
	Checking   AccountType = "checking"
	Savings    AccountType = "savings"
	Credit     AccountType = "credit"
	Cash       AccountType = "cash"
	Investment AccountType = "investment"
)

const (
	Monthly BudgetPeriod = "monthly"
	Weekly  BudgetPeriod = "weekly"
	Yearly  BudgetPeriod = "yearly"
)

type (
	TransactionType string
	CategoryType    string
	AccountType     string
	BudgetPeriod    string

	// ImportInfo records where an imported transaction came from.
	ImportInfo struct {
		Source     string    `json:"source"`
		BatchID    string    `json:"batchId"`
		ImportedAt time.Time `json:"importedAt"`
		Row        int       `json:"row,omitempty"`
	}

	// Transaction is one ledger entry. Amount is always an unsigned
	// magnitude; the direction comes from Type.
	Transaction struct {
		ID          int64           `json:"id,omitempty"`
		Date        time.Time       `json:"date"`
		Amount      float64         `json:"amount"`
		Description string          `json:"description"`
		Category    string          `json:"category"` // category name, may dangle
		Account     string          `json:"account"`  // account name
		Type        TransactionType `json:"type"`
		FromAccount string          `json:"fromAccount,omitempty"`
		ToAccount   string          `json:"toAccount,omitempty"`
		Tags        []string        `json:"tags,omitempty"`
		Notes       string          `json:"notes,omitempty"`
		ImportInfo  *ImportInfo     `json:"importInfo,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Category struct {
		ID       int64        `json:"id,omitempty"`
		Name     string       `json:"name"`
		Color    string       `json:"color"`
		Icon     string       `json:"icon"`
		Budget   *float64     `json:"budget,omitempty"`
		Type     CategoryType `json:"type"`
		ParentID int64        `json:"parentId,omitempty"`
	}

	Goal struct {
		ID            int64     `json:"id,omitempty"`
		Name          string    `json:"name"`
		TargetAmount  float64   `json:"targetAmount"`
		CurrentAmount float64   `json:"currentAmount"`
		Deadline      time.Time `json:"deadline"`
		Description   string    `json:"description,omitempty"`
		Image         string    `json:"image,omitempty"`
		Category      string    `json:"category,omitempty"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// Account balances are maintained by hand and never derived from transactions.
	Account struct {
		ID       int64       `json:"id,omitempty"`
		Name     string      `json:"name"`
		Type     AccountType `json:"type"`
		Balance  float64     `json:"balance"`
		Currency string      `json:"currency"`
		Color    string      `json:"color"`
		IsActive bool        `json:"isActive"`
	}

	Budget struct {
		ID         int64        `json:"id,omitempty"`
		CategoryID int64        `json:"categoryId"`
		Amount     float64      `json:"amount"`
		Period     BudgetPeriod `json:"period"`
		StartDate  time.Time    `json:"startDate"`
		EndDate    *time.Time   `json:"endDate,omitempty"`
	}

	// UserSettings is a single-row record.
	UserSettings struct {
		ID               int64     `json:"id,omitempty"`
		Currency         string    `json:"currency"`
		Language         string    `json:"language"`
		Theme            string    `json:"theme"`
		DateFormat       string    `json:"dateFormat"`
		WeekStartsOn     int       `json:"weekStartsOn"`
		Notifications    bool      `json:"notifications"`
		AutoBackup       bool      `json:"autoBackup"`
		DefaultAccountID int64     `json:"defaultAccountId,omitempty"`
		CreatedAt        time.Time `json:"createdAt"`
		UpdatedAt        time.Time `json:"updatedAt"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidType        = errors.New("invalid type")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidPeriod      = errors.New("invalid budget period")
	ErrInvalidTargetValue = errors.New("target amount must be positive")
)

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (t CategoryType) IsValid() bool {
	switch t {
	case CategoryIncome, CategoryExpense, CategoryBoth:
		return true
	}
	return false
}

func (t AccountType) IsValid() bool {
	switch t {
	case Checking, Savings, Credit, Cash, Investment:
		return true
	}
	return false
}

func (p BudgetPeriod) IsValid() bool {
	switch p {
	case Monthly, Weekly, Yearly:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.Amount < 0 {
		return ErrInvalidAmount
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	if c.Budget != nil && *c.Budget < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.TargetAmount <= 0 {
		return ErrInvalidTargetValue
	}
	if g.CurrentAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// RemainingAmount is never negative, even when the goal was overshot.
func (g Goal) RemainingAmount() float64 {
	if g.CurrentAmount >= g.TargetAmount {
		return 0
	}
	return g.TargetAmount - g.CurrentAmount
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (b Budget) Validate() error {
	if b.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !b.Period.IsValid() {
		return ErrInvalidPeriod
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		return errors.New("end date must be after start date")
	}
	return nil
}

func (s UserSettings) Validate() error {
	if strings.TrimSpace(s.Currency) == "" {
		return errors.New("currency cannot be empty")
	}
	if s.WeekStartsOn < 0 || s.WeekStartsOn > 6 {
		return errors.New("week start must be between 0 (Sunday) and 6 (Saturday)")
	}
	return nil
}
