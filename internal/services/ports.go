package services

import (
	"context"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
)

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		Create(ctx context.Context, e core.Expense) error
		// CreateMany inserts all records or none.
		CreateMany(ctx context.Context, es []core.Expense) error
		// Update loads the record matching id and owner, passes it to mutate
		// and stores the result atomically. It returns core.ErrNotFound when
		// nothing matches.
		Update(ctx context.Context, owner, id string, mutate func(core.Expense) (core.Expense, error)) (core.Expense, error)
		// DeleteMany removes the records among ids owned by owner and returns
		// the ids that were actually removed.
		DeleteMany(ctx context.Context, owner string, ids []string) ([]string, error)
	}

	ExpenseLister interface {
		List(ctx context.Context, q core.ListQuery) ([]core.Expense, error)
		Count(ctx context.Context, f core.Filter) (int, error)
	}

	// StatsReader aggregates an owner's expenses by calendar month, newest
	// month first.
	StatsReader interface {
		MonthlyStats(ctx context.Context, owner string) ([]core.MonthlyStat, error)
	}

	Store interface {
		ExpenseWriter
		ExpenseLister
		StatsReader
		Ping(ctx context.Context) error
		Close() error
	}

	EventPublisher interface {
		PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
	}

	// Recorder receives business counters.
	Recorder interface {
		ExpensesCreated(source string, n int)
		ExpensesDeleted(n int)
		StatsCache(hit bool)
	}
)

type nopRecorder struct{}

func (nopRecorder) ExpensesCreated(string, int) {}
func (nopRecorder) ExpensesDeleted(int)         {}
func (nopRecorder) StatsCache(bool)             {}
