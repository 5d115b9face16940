// Package budget manages the per-user budget envelopes.
package budget

import (
	"context"
	stderrors "errors"
	"math"
	"strings"

	"github.com/budgetwise/budgetd/internal/app/domain/budget"
	"github.com/budgetwise/budgetd/internal/app/storage"
	"github.com/budgetwise/budgetd/internal/errors"
	"github.com/budgetwise/budgetd/internal/logging"
)

// Service manages budget CRUD for the acting user. Ownership is established
// by the caller (the gating middleware resolves the username); the service
// only ever touches rows belonging to the given user ID.
type Service struct {
	users storage.UserStore
	store storage.BudgetStore
	log   *logging.Logger
}

// New constructs a budget service.
func New(users storage.UserStore, store storage.BudgetStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("budget")
	}
	return &Service{users: users, store: store, log: log}
}

// Summary aggregates a user's budgets for the dashboard.
type Summary struct {
	BudgetCount int     `json:"budget_count"`
	TotalAmount float64 `json:"total_amount"`
}

// List returns the user's budgets ordered by name.
func (s *Service) List(ctx context.Context, username string) ([]budget.Budget, error) {
	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return nil, err
	}
	budgets, err := s.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, errors.Internal("failed to list budgets", err)
	}
	return budgets, nil
}

// Add creates a budget. Duplicate names surface as Conflict; the store's
// unique constraint is the source of truth.
func (s *Service) Add(ctx context.Context, username, name string, amount float64) (budget.Budget, error) {
	name, amount, err := normalizeBudget(name, amount)
	if err != nil {
		return budget.Budget{}, err
	}
	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return budget.Budget{}, err
	}

	created, err := s.store.CreateBudget(ctx, budget.Budget{UserID: userID, Name: name, Amount: amount})
	if err != nil {
		if stderrors.Is(err, storage.ErrAlreadyExists) {
			return budget.Budget{}, errors.Conflict("budget already exists")
		}
		return budget.Budget{}, errors.Internal("failed to create budget", err)
	}

	s.log.WithContext(ctx).
		WithField("budget", created.Name).
		WithField("amount", created.Amount).
		Info("budget added")
	return created, nil
}

// Update renames a budget and/or changes its amount, addressed by its
// current name.
func (s *Service) Update(ctx context.Context, username, oldName, newName string, amount float64) (budget.Budget, error) {
	oldName = strings.TrimSpace(oldName)
	if oldName == "" {
		return budget.Budget{}, errors.InvalidInput("old budget name is required")
	}
	newName, amount, err := normalizeBudget(newName, amount)
	if err != nil {
		return budget.Budget{}, err
	}
	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return budget.Budget{}, err
	}

	existing, err := s.store.GetBudgetByName(ctx, userID, oldName)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return budget.Budget{}, errors.NotFound("budget not found")
		}
		return budget.Budget{}, errors.Internal("failed to look up budget", err)
	}

	existing.Name = newName
	existing.Amount = amount
	updated, err := s.store.UpdateBudget(ctx, existing)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrAlreadyExists):
			return budget.Budget{}, errors.Conflict("budget already exists")
		case stderrors.Is(err, storage.ErrNotFound):
			return budget.Budget{}, errors.NotFound("budget not found")
		}
		return budget.Budget{}, errors.Internal("failed to update budget", err)
	}
	return updated, nil
}

// Delete removes a budget by name, along with its expenses.
func (s *Service) Delete(ctx context.Context, username, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.InvalidInput("budget name is required")
	}
	userID, err := s.resolveUser(ctx, username)
	if err != nil {
		return err
	}

	existing, err := s.store.GetBudgetByName(ctx, userID, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("budget not found")
		}
		return errors.Internal("failed to look up budget", err)
	}

	if err := s.store.DeleteBudget(ctx, existing.ID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("budget not found")
		}
		return errors.Internal("failed to delete budget", err)
	}

	s.log.WithContext(ctx).WithField("budget", name).Info("budget deleted")
	return nil
}

// Summarize returns dashboard aggregates for the user.
func (s *Service) Summarize(ctx context.Context, username string) (Summary, error) {
	budgets, err := s.List(ctx, username)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{BudgetCount: len(budgets)}
	for _, b := range budgets {
		summary.TotalAmount += b.Amount
	}
	summary.TotalAmount = math.Round(summary.TotalAmount*100) / 100
	return summary, nil
}

// resolveUser maps the authenticated username to the user row ID. A verified
// token for a user the store no longer knows is treated as Unauthorized.
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

// normalizeBudget trims the name and validates the amount policy: positive,
// at most eleven digits before the decimal point, two decimal places.
func normalizeBudget(name string, amount float64) (string, float64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, errors.InvalidInput("budget name is required")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return "", 0, errors.InvalidInput("amount must be positive")
	}
	if amount > budget.MaxAmount {
		return "", 0, errors.InvalidInput("amount is too large")
	}
	return name, math.Round(amount*100) / 100, nil
}
