// Package app wires the domain services to their stores and exposes them as
// one Application value the transport layer consumes.
package app

import (
	"fmt"

	authsvc "github.com/budgetwise/budgetd/internal/app/services/auth"
	budgetsvc "github.com/budgetwise/budgetd/internal/app/services/budget"
	expensesvc "github.com/budgetwise/budgetd/internal/app/services/expense"
	"github.com/budgetwise/budgetd/internal/app/storage"
	"github.com/budgetwise/budgetd/internal/app/storage/memory"
	"github.com/budgetwise/budgetd/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users    storage.UserStore
	Budgets  storage.BudgetStore
	Expenses storage.ExpenseStore
}

// Application ties the domain services together.
type Application struct {
	log *logging.Logger

	Auth     *authsvc.Service
	Budgets  *budgetsvc.Service
	Expenses *expensesvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, authCfg authsvc.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Budgets == nil {
		stores.Budgets = mem
	}
	if stores.Expenses == nil {
		stores.Expenses = mem
	}

	authService, err := authsvc.New(stores.Users, authCfg, log.WithField("service", "auth"))
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	return &Application{
		log:      log,
		Auth:     authService,
		Budgets:  budgetsvc.New(stores.Users, stores.Budgets, log.WithField("service", "budget")),
		Expenses: expensesvc.New(stores.Users, stores.Budgets, stores.Expenses, log.WithField("service", "expense")),
	}, nil
}
