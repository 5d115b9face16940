// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/budgetwise/budgetd/internal/app/domain/budget"
	"github.com/budgetwise/budgetd/internal/app/domain/expense"
	"github.com/budgetwise/budgetd/internal/app/domain/user"
	"github.com/budgetwise/budgetd/internal/app/storage"
)

// Store implements the storage interfaces over a PostgreSQL database.
// Uniqueness is enforced by database constraints, not by prior existence
// checks, so concurrent inserts race safely: exactly one wins and the rest
// see storage.ErrAlreadyExists.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.BudgetStore = (*Store)(nil)
var _ storage.ExpenseStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// uniqueViolation is the PostgreSQL error code for a violated unique
// constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- UserStore --------------------------------------------------------------

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return user.User{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return user.User(row), nil
}

// --- BudgetStore ------------------------------------------------------------

type budgetRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Amount    float64   `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *Store) CreateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, name, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.UserID, b.Name, b.Amount, b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return budget.Budget{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return budget.Budget{}, err
	}
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	b.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets
		SET name = $2, amount = $3, updated_at = $4
		WHERE id = $1
	`, b.ID, b.Name, b.Amount, b.UpdatedAt)
	if isUniqueViolation(err) {
		return budget.Budget{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return budget.Budget{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return budget.Budget{}, err
	}
	if affected == 0 {
		return budget.Budget{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBudgetByName(ctx context.Context, userID, name string) (budget.Budget, error) {
	var row budgetRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, name, amount, created_at, updated_at
		FROM budgets
		WHERE user_id = $1 AND name = $2
	`, userID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Budget{}, storage.ErrNotFound
	}
	if err != nil {
		return budget.Budget{}, err
	}
	return budget.Budget(row), nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]budget.Budget, error) {
	var rows []budgetRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, amount, created_at, updated_at
		FROM budgets
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]budget.Budget, 0, len(rows))
	for _, row := range rows {
		out = append(out, budget.Budget(row))
	}
	return out, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ExpenseStore -----------------------------------------------------------

func (s *Store) UpsertExpense(ctx context.Context, e expense.Expense) (expense.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, budget_id, month, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (budget_id, month)
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
	`, e.ID, e.BudgetID, e.Month, e.Amount, e.UpdatedAt)
	if err != nil {
		return expense.Expense{}, err
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]expense.Entry, error) {
	var rows []struct {
		BudgetName string  `db:"budget_name"`
		Month      int     `db:"month"`
		Amount     float64 `db:"amount"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.name AS budget_name, e.month, e.amount
		FROM expenses e
		JOIN budgets b ON b.id = e.budget_id
		WHERE b.user_id = $1
		ORDER BY b.name, e.month
	`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]expense.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, expense.Entry(row))
	}
	return out, nil
}
