// Package storage defines the persistence interfaces consumed by the
// application services, together with the sentinel errors stores must return.
package storage

import (
	"context"
	"errors"

	"github.com/budgetwise/budgetd/internal/app/domain/budget"
	"github.com/budgetwise/budgetd/internal/app/domain/expense"
	"github.com/budgetwise/budgetd/internal/app/domain/user"
)

var (
	// ErrNotFound signals an absent record. For user lookups this is a
	// valid outcome ("no such user"), not a fault.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists signals a uniqueness violation. Stores must derive
	// it from a database constraint, not a prior existence check, so two
	// concurrent inserts for the same key yield exactly one success.
	ErrAlreadyExists = errors.New("storage: already exists")
)

// UserStore persists credential records.
type UserStore interface {
	// CreateUser inserts a record. Returns ErrAlreadyExists when the
	// username is taken; the check must be atomic with the insert.
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	// GetUserByUsername does a case-sensitive exact match. Returns
	// ErrNotFound when no record exists.
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
}

// BudgetStore persists budgets.
type BudgetStore interface {
	CreateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error)
	UpdateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error)
	GetBudgetByName(ctx context.Context, userID, name string) (budget.Budget, error)
	ListBudgets(ctx context.Context, userID string) ([]budget.Budget, error)
	DeleteBudget(ctx context.Context, id string) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	// UpsertExpense creates or overwrites the row for (budget, month).
	UpsertExpense(ctx context.Context, e expense.Expense) (expense.Expense, error)
	// ListExpenses returns all expenses for the user's budgets joined
	// with the budget name.
	ListExpenses(ctx context.Context, userID string) ([]expense.Entry, error)
}
