package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type countingRecorder struct {
	created map[string]int
	deleted int
	hits    int
	misses  int
}

func (r *countingRecorder) ExpensesCreated(source string, n int) { r.created[source] += n }
func (r *countingRecorder) ExpensesDeleted(n int)                { r.deleted += n }
func (r *countingRecorder) StatsCache(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

// failingStore wraps a memory store and fails chosen operations.
type failingStore struct {
	*memory.Store
	listErr error
}

func (f failingStore) Count(ctx context.Context, flt core.Filter) (int, error) {
	if f.listErr != nil {
		return 0, f.listErr
	}
	return f.Store.Count(ctx, flt)
}

func newTestService(t *testing.T, opts ...Option) (*ExpenseService, *memory.Store) {
	t.Helper()
	store := memory.New()
	quiet := log.New(log.Config{Output: io.Discard})
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithLogger(quiet), WithClock(func() time.Time { return clock })}, opts...)
	return NewExpenseService(store, opts...), store
}

func coffee() core.Expense {
	return core.Expense{
		Description:   "Coffee",
		Amount:        core.Money{Cents: 500},
		Category:      "Food",
		PaymentMethod: "Card",
		Date:          core.NewDate(2024, 1, 10),
	}
}

func firstPage() core.ListQuery {
	return core.ListQuery{Page: core.Page{Number: 1, Size: 10}}
}

func TestCreateOverridesOwnerAndID(t *testing.T) {
	svc, _ := newTestService(t)
	in := coffee()
	in.CreatedBy = "mallory"
	in.ID = "client-id"

	got, err := svc.ForUser("u1").Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.CreatedBy)
	assert.NotEqual(t, "client-id", got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateValidation(t *testing.T) {
	svc, store := newTestService(t)
	in := coffee()
	in.Description = "   "

	_, err := svc.ForUser("u1").Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
	assert.Equal(t, 0, store.Len())
}

func TestListScopedToUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.ForUser("u1").Create(ctx, coffee())
		require.NoError(t, err)
	}
	_, err := svc.ForUser("u2").Create(ctx, coffee())
	require.NoError(t, err)

	res, err := svc.ForUser("u2").List(ctx, firstPage())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	for _, e := range res.Expenses {
		assert.Equal(t, "u2", e.CreatedBy)
	}
}

func TestListPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := svc.ForUser("u1")
	for i := 0; i < 25; i++ {
		_, err := u.Create(ctx, coffee())
		require.NoError(t, err)
	}

	res, err := u.List(ctx, core.ListQuery{Page: core.Page{Number: 3, Size: 10}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Expenses, 5)

	res, err = u.List(ctx, core.ListQuery{Page: core.Page{Number: 9, Size: 10}})
	require.NoError(t, err)
	assert.NotNil(t, res.Expenses)
	assert.Empty(t, res.Expenses)
	assert.Equal(t, 9, res.CurrentPage)
}

func TestListStoreFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := NewExpenseService(failingStore{Store: memory.New(), listErr: boom},
		WithLogger(log.New(log.Config{Output: io.Discard})))

	_, err := svc.ForUser("u1").List(context.Background(), firstPage())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, core.KindInfrastructure, core.KindOf(err))
}

func TestImportAllOrNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	bad := coffee()
	bad.Category = ""

	_, err := svc.ForUser("u1").Import(ctx, []core.Expense{coffee(), bad, coffee()})
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
	var rowErrs core.RowErrors
	require.ErrorAs(t, err, &rowErrs)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, 2, rowErrs[0].Row)
	assert.Equal(t, 0, store.Len())

	n, err := svc.ForUser("u1").Import(ctx, []core.Expense{coffee(), coffee()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Len())

	n, err = svc.ForUser("u1").Import(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateCrossUserIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.ForUser("u1").Create(ctx, coffee())
	require.NoError(t, err)

	amount := core.Money{Cents: 1}
	_, err = svc.ForUser("u2").Update(ctx, created.ID, core.ExpensePatch{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	res, err := svc.ForUser("u1").List(ctx, firstPage())
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Expenses[0].Amount.Cents)
}

func TestUpdateMergesAndValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := svc.ForUser("u1")
	created, err := u.Create(ctx, coffee())
	require.NoError(t, err)

	desc := "  Latte "
	updated, err := u.Update(ctx, created.ID, core.ExpensePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Latte", updated.Description)
	assert.Equal(t, created.Amount, updated.Amount)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	empty := ""
	_, err = u.Update(ctx, created.ID, core.ExpensePatch{Category: &empty})
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, err = u.Update(ctx, "not-a-uuid", core.ExpensePatch{Description: &desc})
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestDeleteOnlyOwned(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	mine, err := svc.ForUser("u1").Create(ctx, coffee())
	require.NoError(t, err)
	theirs, err := svc.ForUser("u2").Create(ctx, coffee())
	require.NoError(t, err)

	n, err := svc.ForUser("u1").Delete(ctx, []string{mine.ID, theirs.ID, mine.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	n, err = svc.ForUser("u1").Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteEventListsOnlyRemovedIDs(t *testing.T) {
	pub := &recordingPublisher{}
	rec := &countingRecorder{created: map[string]int{}}
	svc, _ := newTestService(t, WithPublisher(pub), WithRecorder(rec))
	ctx := context.Background()
	alice, bob := svc.ForUser("alice"), svc.ForUser("bob")

	mine, err := alice.Create(ctx, coffee())
	require.NoError(t, err)
	theirs, err := bob.Create(ctx, coffee())
	require.NoError(t, err)

	n, err := alice.Delete(ctx, []string{mine.ID, theirs.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, rec.deleted)

	require.Len(t, pub.events, 3)
	ev := pub.events[2]
	assert.Equal(t, amqp.EventDeleted, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, []string{mine.ID}, ev.IDs, "foreign and unknown ids must not leak into the event")
	assert.Equal(t, 1, ev.Count)
}

func TestStatsCachedAndInvalidated(t *testing.T) {
	rec := &countingRecorder{created: map[string]int{}}
	svc, _ := newTestService(t,
		WithStatsCache(cache.NewLRUCache[[]core.MonthlyStat](10, time.Minute)),
		WithRecorder(rec))
	ctx := context.Background()
	u := svc.ForUser("u1")

	_, err := u.Create(ctx, coffee())
	require.NoError(t, err)

	stats, err := u.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(500), stats[0].TotalAmount.Cents)

	_, err = u.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.hits)

	feb := coffee()
	feb.Date = core.NewDate(2024, 2, 3)
	_, err = u.Create(ctx, feb)
	require.NoError(t, err)

	stats, err = u.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2, "write must invalidate cached stats")
	assert.Equal(t, 2, stats[0].Month)
	assert.Equal(t, 2, rec.created[SourceSingle])
}

func TestStatsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	stats, err := svc.ForUser("nobody").Stats(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestPublisherFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, store := newTestService(t, WithPublisher(pub))

	_, err := svc.ForUser("u1").Create(context.Background(), coffee())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventCreated, pub.events[0].Type)
	assert.Equal(t, "u1", pub.events[0].UserID)
}

func TestCoffeeScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := svc.ForUser("u1")

	created, err := u.Create(ctx, coffee())
	require.NoError(t, err)

	res, err := u.List(ctx, firstPage())
	require.NoError(t, err)
	require.Len(t, res.Expenses, 1)
	assert.Equal(t, created.ID, res.Expenses[0].ID)

	n, err := u.Delete(ctx, []string{created.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err = u.List(ctx, firstPage())
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}
