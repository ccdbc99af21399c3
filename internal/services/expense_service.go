package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// Import sources reported to the Recorder.
const (
	SourceSingle = "single"
	SourceBulk   = "bulk"
)

// ExpenseService orchestrates expense operations across the store, the stats
// cache and the optional event publisher.
type ExpenseService struct {
	store     Store
	publisher EventPublisher
	stats     *cache.LRUCache[[]core.MonthlyStat]
	recorder  Recorder
	logger    *log.StructuredLogger
	now       func() time.Time
	newID     func() string
}

type Option func(*ExpenseService)

// WithPublisher enables domain events after successful writes.
func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithStatsCache caches monthly stats per user.
func WithStatsCache(c *cache.LRUCache[[]core.MonthlyStat]) Option {
	return func(s *ExpenseService) { s.stats = c }
}

func WithRecorder(r Recorder) Option {
	return func(s *ExpenseService) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = log.NewStructuredLogger(l) }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(store Store, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:    store,
		recorder: nopRecorder{},
		logger:   log.NewStructuredLogger(log.New(log.Config{Component: log.ComponentExpense})),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForUser returns a repository whose every operation is restricted to
// expenses created by userID.
func (s *ExpenseService) ForUser(userID string) *UserExpenses {
	return &UserExpenses{svc: s, userID: userID}
}

// Ping reports whether the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// UserExpenses is the owner-scoped view of the expense store.
type UserExpenses struct {
	svc    *ExpenseService
	userID string
}

// stamp prepares a client-supplied record for insertion: a fresh id, the
// caller as owner and server timestamps.
func (u *UserExpenses) stamp(e core.Expense) core.Expense {
	now := u.svc.now().UTC()
	e.ID = u.svc.newID()
	e.CreatedBy = u.userID
	e.CreatedAt = now
	e.UpdatedAt = now
	return e.Normalize()
}

// Create validates and stores a single expense owned by the caller. Any id
// or owner on the input is replaced.
func (u *UserExpenses) Create(ctx context.Context, in core.Expense) (core.Expense, error) {
	const op = "create expense"

	e := u.stamp(in)
	if err := e.Validate(); err != nil {
		return core.Expense{}, core.E(core.KindValidation, op, err)
	}
	if err := u.svc.store.Create(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("%s: %w", op, err)
	}

	u.svc.logger.LogExpenseCreated(ctx, u.userID, log.ExpenseFields{
		ID:            e.ID,
		Description:   e.Description,
		AmountCents:   e.Amount.Cents,
		Category:      e.Category,
		PaymentMethod: e.PaymentMethod,
	})
	u.afterWrite(ctx, amqp.EventCreated, []string{e.ID}, 1)
	u.svc.recorder.ExpensesCreated(SourceSingle, 1)
	return e, nil
}

// Import stores all records or none. Every record is validated first; when
// any is invalid the returned error wraps core.RowErrors and nothing is
// written.
func (u *UserExpenses) Import(ctx context.Context, records []core.Expense) (int, error) {
	const op = "import expenses"

	if len(records) == 0 {
		return 0, nil
	}

	stamped := make([]core.Expense, len(records))
	var rowErrs core.RowErrors
	for i, rec := range records {
		e := u.stamp(rec)
		if err := e.Validate(); err != nil {
			rowErrs = append(rowErrs, core.RowError{Row: i + 1, Err: err})
			continue
		}
		stamped[i] = e
	}
	if len(rowErrs) > 0 {
		return 0, core.E(core.KindValidation, op, rowErrs)
	}

	if err := u.svc.store.CreateMany(ctx, stamped); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	u.svc.logger.LogBatch(ctx, "Bulk expenses imported", u.userID, log.OpImport, len(stamped))
	u.afterWrite(ctx, amqp.EventImported, nil, len(stamped))
	u.svc.recorder.ExpensesCreated(SourceBulk, len(stamped))
	return len(stamped), nil
}

// List returns one page of the caller's expenses matching q together with
// the total match count. The page and the count are fetched concurrently.
func (u *UserExpenses) List(ctx context.Context, q core.ListQuery) (core.ListResult, error) {
	q.Filter.Owner = u.userID
	if q.Page.Number < 1 {
		q.Page.Number = 1
	}
	if q.Page.Size < 1 {
		return core.ListResult{}, core.E(core.KindValidation, "list expenses",
			&core.ValidationError{Field: "limit", Message: "must be positive"})
	}

	var (
		items []core.Expense
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = u.svc.store.List(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = u.svc.store.Count(gctx, q.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.ListResult{}, fmt.Errorf("list expenses: %w", err)
	}

	if items == nil {
		items = []core.Expense{}
	}
	return core.ListResult{
		Expenses:    items,
		CurrentPage: q.Page.Number,
		TotalPages:  core.TotalPages(total, q.Page.Size),
		Total:       total,
	}, nil
}

// Update merges patch into the caller's expense id. A record that does not
// exist or belongs to someone else yields core.ErrNotFound.
func (u *UserExpenses) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	const op = "update expense"

	if _, err := uuid.Parse(id); err != nil {
		return core.Expense{}, core.E(core.KindNotFound, op, core.ErrNotFound)
	}

	updated, err := u.svc.store.Update(ctx, u.userID, id, func(current core.Expense) (core.Expense, error) {
		merged := patch.Apply(current)
		merged.ID = current.ID
		merged.CreatedBy = current.CreatedBy
		merged.CreatedAt = current.CreatedAt
		merged.UpdatedAt = u.svc.now().UTC()
		if err := merged.Validate(); err != nil {
			return core.Expense{}, err
		}
		return merged, nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("%s: %w", op, err)
	}

	u.afterWrite(ctx, amqp.EventUpdated, []string{updated.ID}, 1)
	return updated, nil
}

// Delete removes the caller's expenses among ids. Ids that do not exist or
// belong to other users are ignored.
func (u *UserExpenses) Delete(ctx context.Context, ids []string) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := u.svc.store.DeleteMany(ctx, u.userID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete expenses: %w", err)
	}

	n := len(deleted)
	if n > 0 {
		u.svc.logger.LogBatch(ctx, "Expenses deleted", u.userID, log.OpDelete, n)
		u.afterWrite(ctx, amqp.EventDeleted, deleted, n)
		u.svc.recorder.ExpensesDeleted(n)
	}
	return int64(n), nil
}

// Stats returns the caller's monthly totals, newest month first.
func (u *UserExpenses) Stats(ctx context.Context) ([]core.MonthlyStat, error) {
	c := u.svc.stats
	if c != nil {
		if stats, ok := c.Get(u.userID); ok {
			u.svc.recorder.StatsCache(true)
			return stats, nil
		}
		u.svc.recorder.StatsCache(false)
	}

	var epoch uint64
	if c != nil {
		epoch = c.Epoch()
	}
	stats, err := u.svc.store.MonthlyStats(ctx, u.userID)
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	if stats == nil {
		stats = []core.MonthlyStat{}
	}
	if c != nil {
		c.SetIfEpoch(u.userID, stats, epoch)
	}
	return stats, nil
}

// afterWrite invalidates cached stats and publishes an event. Publish
// failures are logged only; the write already succeeded.
func (u *UserExpenses) afterWrite(ctx context.Context, t amqp.EventType, ids []string, count int) {
	if u.svc.stats != nil {
		u.svc.stats.Delete(u.userID)
	}
	if u.svc.publisher == nil {
		return
	}
	ev := amqp.NewExpenseEvent(t, u.userID, ids, count)
	if err := u.svc.publisher.PublishExpenseEvent(ctx, ev); err != nil {
		u.svc.logger.LogError(ctx, "Failed to publish expense event", err,
			log.ComponentAMQP, log.OpPublish, log.NewFields().WithUser(u.userID).WithCount(count))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
