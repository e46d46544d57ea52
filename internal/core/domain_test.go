package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount: 10,
		Type:   Expense,
	}
	require.NoError(t, good.Validate())

	zeroAmount := good
	zeroAmount.Amount = 0
	assert.NoError(t, zeroAmount.Validate(), "zero amount is accepted")

	bads := []Transaction{
		{Amount: 1, Type: Expense}, // zero date
		{Date: good.Date, Amount: -1, Type: Expense},
		{Date: good.Date, Amount: 1, Type: "refund"},
	}
	for i, tx := range bads {
		assert.Error(t, tx.Validate(), "case %d", i)
	}
}

func TestGoalValidateAndRemaining(t *testing.T) {
	g := Goal{Name: "Bike", TargetAmount: 500, CurrentAmount: 200}
	require.NoError(t, g.Validate())
	assert.Equal(t, 300.0, g.RemainingAmount())

	g.CurrentAmount = 700
	assert.Zero(t, g.RemainingAmount(), "overshot goal")

	assert.ErrorIs(t, (Goal{Name: "x"}).Validate(), ErrInvalidTargetValue)
}

func TestBudgetValidate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)
	assert.NoError(t, (Budget{Amount: 100, Period: Monthly, StartDate: start}).Validate())
	assert.ErrorIs(t, (Budget{Amount: 100, Period: "daily", StartDate: start}).Validate(), ErrInvalidPeriod)
	assert.Error(t, (Budget{Amount: 100, Period: Weekly, StartDate: start, EndDate: &end}).Validate(),
		"end before start")
}

func TestUserSettingsStamps(t *testing.T) {
	var s UserSettings
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Stamp(created, created.Add(time.Hour))
	c, u := s.Stamps()
	assert.Equal(t, created, c)
	assert.Equal(t, created.Add(time.Hour), u)
}

func TestMonthWindow(t *testing.T) {
	w := MonthWindow(time.Date(2024, 2, 17, 13, 0, 0, 0, time.UTC))
	assert.True(t, w.Start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), "start %v", w.Start)
	assert.True(t, w.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)), "leap day")
	assert.False(t, w.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), "next month")
	assert.True(t, w.Contains(w.Start) && w.Contains(w.End), "bounds are inclusive")
}

func TestParseMonth(t *testing.T) {
	w, err := ParseMonth("2025-10", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.October, w.Start.Month())
	assert.Equal(t, 31, w.End.Day())

	_, err = ParseMonth("10/2025", time.UTC)
	assert.Error(t, err)
}
