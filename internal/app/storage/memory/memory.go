// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/budgetwise/budgetd/internal/app/domain/budget"
	"github.com/budgetwise/budgetd/internal/app/domain/expense"
	"github.com/budgetwise/budgetd/internal/app/domain/user"
	"github.com/budgetwise/budgetd/internal/app/storage"
)

// Store keeps everything behind one mutex so check-and-insert is atomic, the
// same guarantee the relational store gets from its unique constraints.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User        // keyed by username (case-sensitive)
	budgets  map[string]budget.Budget    // keyed by budget ID
	expenses map[string]expense.Expense  // keyed by budgetID/month
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BudgetStore = (*Store)(nil)
var _ storage.ExpenseStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		budgets:  make(map[string]budget.Budget),
		expenses: make(map[string]expense.Expense),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return user.User{}, storage.ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	s.users[u.Username] = u
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

// --- BudgetStore ------------------------------------------------------------

func (s *Store) CreateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.budgets {
		if existing.UserID == b.UserID && existing.Name == b.Name {
			return budget.Budget{}, storage.ErrAlreadyExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.budgets[b.ID]
	if !ok {
		return budget.Budget{}, storage.ErrNotFound
	}
	for _, other := range s.budgets {
		if other.ID != b.ID && other.UserID == b.UserID && other.Name == b.Name {
			return budget.Budget{}, storage.ErrAlreadyExists
		}
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) GetBudgetByName(ctx context.Context, userID, name string) (budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.budgets {
		if b.UserID == userID && b.Name == name {
			return b, nil
		}
	}
	return budget.Budget{}, storage.ErrNotFound
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []budget.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.budgets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.budgets, id)
	for key, e := range s.expenses {
		if e.BudgetID == id {
			delete(s.expenses, key)
		}
	}
	return nil
}

// --- ExpenseStore -----------------------------------------------------------

func (s *Store) UpsertExpense(ctx context.Context, e expense.Expense) (expense.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := expenseKey(e.BudgetID, e.Month)
	if existing, ok := s.expenses[key]; ok {
		e.ID = existing.ID
	} else if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.UpdatedAt = time.Now().UTC()
	s.expenses[key] = e
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]expense.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []expense.Entry
	for _, e := range s.expenses {
		b, ok := s.budgets[e.BudgetID]
		if !ok || b.UserID != userID {
			continue
		}
		out = append(out, expense.Entry{BudgetName: b.Name, Month: e.Month, Amount: e.Amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BudgetName != out[j].BudgetName {
			return out[i].BudgetName < out[j].BudgetName
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func expenseKey(budgetID string, month int) string {
	return fmt.Sprintf("%s/%02d", budgetID, month)
}
