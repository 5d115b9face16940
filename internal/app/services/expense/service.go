// Package expense tracks monthly spending against budgets.
package expense

import (
	"context"
	stderrors "errors"
	"math"
	"strings"

	"github.com/budgetwise/budgetd/internal/app/domain/budget"
	"github.com/budgetwise/budgetd/internal/app/domain/expense"
	"github.com/budgetwise/budgetd/internal/app/storage"
	"github.com/budgetwise/budgetd/internal/errors"
	"github.com/budgetwise/budgetd/internal/logging"
)

// Service manages expense rows keyed by (budget, month).
type Service struct {
	users   storage.UserStore
	budgets storage.BudgetStore
	store   storage.ExpenseStore
	log     *logging.Logger
}

// New constructs an expense service.
func New(users storage.UserStore, budgets storage.BudgetStore, store storage.ExpenseStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("expense")
	}
	return &Service{users: users, budgets: budgets, store: store, log: log}
}

// List returns all of the user's expenses joined with budget names.
func (s *Service) List(ctx context.Context, username string) ([]expense.Entry, error) {
	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListExpenses(ctx, userID)
	if err != nil {
		return nil, errors.Internal("failed to list expenses", err)
	}
	return entries, nil
}

// Set records spending for a budget and month, overwriting any previous
// amount for that month.
func (s *Service) Set(ctx context.Context, username, budgetName string, month int, amount float64) (expense.Expense, error) {
	budgetName = strings.TrimSpace(budgetName)
	if budgetName == "" {
		return expense.Expense{}, errors.InvalidInput("budget name is required")
	}
	if month < 1 || month > 12 {
		return expense.Expense{}, errors.InvalidInput("month must be between 1 and 12")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return expense.Expense{}, errors.InvalidInput("amount must be non-negative")
	}
	if amount > budget.MaxAmount {
		return expense.Expense{}, errors.InvalidInput("amount is too large")
	}
	amount = math.Round(amount*100) / 100

	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return expense.Expense{}, err
	}

	owned, err := s.budgets.GetBudgetByName(ctx, userID, budgetName)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return expense.Expense{}, errors.NotFound("budget not found")
		}
		return expense.Expense{}, errors.Internal("failed to look up budget", err)
	}

	saved, err := s.store.UpsertExpense(ctx, expense.Expense{BudgetID: owned.ID, Month: month, Amount: amount})
	if err != nil {
		return expense.Expense{}, errors.Internal("failed to save expense", err)
	}

	s.log.WithContext(ctx).
		WithField("budget", budgetName).
		WithField("month", month).
		Info("expense recorded")
	return saved, nil
}

func (s *Service) resolveUser(ctx context.Context, username string) (string, error) {
	record, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.Unauthorized("user does not exist")
		}
		return "", errors.Internal("failed to resolve user", err)
	}
	return record.ID, nil
}
