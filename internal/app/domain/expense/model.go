package expense

import "time"

// Expense records spending against a budget for one calendar month. There is
// at most one row per (budget, month); updates overwrite the amount.
type Expense struct {
	ID        string
	BudgetID  string
	Month     int
	Amount    float64
	UpdatedAt time.Time
}

// Entry is the read model joined with the owning budget, as returned by the
// expenses listing.
type Entry struct {
	BudgetName string
	Month      int
	Amount     float64
}
