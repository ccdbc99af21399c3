package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "expenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var baseTime = time.Date(2024, 3, 1, 9, 30, 0, 123, time.UTC)

func mk(id, owner, category, method string, cents int64, date core.Date) core.Expense {
	return core.Expense{
		ID:            id,
		Description:   "item " + id,
		Amount:        core.Money{Cents: cents},
		Category:      category,
		PaymentMethod: method,
		Date:          date,
		CreatedBy:     owner,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}

func seedRepo(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	require.NoError(t, repo.CreateMany(context.Background(), []core.Expense{
		mk("a", "u1", "Food", "Card", 300, core.NewDate(2024, 1, 10)),
		mk("b", "u1", "Travel", "Cash", 100, core.NewDate(2024, 1, 20)),
		mk("c", "u1", "Food", "Cash", 200, core.NewDate(2024, 2, 1)),
		mk("d", "u2", "Food", "Card", 999, core.NewDate(2024, 1, 15)),
	}))
}

func page(n, size int) core.Page { return core.Page{Number: n, Size: size} }

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	var (
		v     int
		dirty bool
	)
	require.NoError(t, repo.db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&v, &dirty))
	assert.Equal(t, 1, v)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op
	again, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	again.Close()
}

func TestCreateAndRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	e := mk("x", "u1", "Food", "Card", 1234, core.NewDate(2024, 5, 6))
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.List(ctx, core.ListQuery{Filter: core.Filter{Owner: "u1"}, Page: page(1, 10)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, e.Amount, got[0].Amount)
	assert.Equal(t, "2024-05-06", got[0].Date.String())
	assert.True(t, baseTime.Equal(got[0].CreatedAt))
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	e := mk("x", "u1", "Food", "Card", 1, core.NewDate(2024, 5, 6))
	require.NoError(t, repo.Create(ctx, e))

	err := repo.Create(ctx, e)
	require.Error(t, err)
	assert.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestCreateManyRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.CreateMany(ctx, []core.Expense{
		mk("p", "u1", "Food", "Card", 1, core.NewDate(2024, 1, 1)),
		mk("p", "u1", "Food", "Card", 2, core.NewDate(2024, 1, 2)),
	})
	require.Error(t, err)

	n, err := repo.Count(ctx, core.Filter{Owner: "u1"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListFilters(t *testing.T) {
	repo := newTestRepo(t)
	seedRepo(t, repo)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter core.Filter
		want   []string
	}{
		{"owner only", core.Filter{Owner: "u1"}, []string{"a", "b", "c"}},
		{"category", core.Filter{Owner: "u1", Category: "Food"}, []string{"a", "c"}},
		{"payment method", core.Filter{Owner: "u1", PaymentMethod: "Cash"}, []string{"b", "c"}},
		{"inclusive bounds", core.Filter{Owner: "u1", StartDate: core.NewDate(2024, 1, 20), EndDate: core.NewDate(2024, 2, 1)}, []string{"b", "c"}},
		{"start only", core.Filter{Owner: "u1", StartDate: core.NewDate(2024, 2, 1)}, []string{"c"}},
		{"other user", core.Filter{Owner: "u2"}, []string{"d"}},
		{"unknown user", core.Filter{Owner: "nobody"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, core.ListQuery{Filter: tt.filter, Page: page(1, 10)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, idsOf(got))

			n, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestListSortAndPaginate(t *testing.T) {
	repo := newTestRepo(t)
	seedRepo(t, repo)
	ctx := context.Background()
	owner := core.Filter{Owner: "u1"}

	got, err := repo.List(ctx, core.ListQuery{Filter: owner, Sort: core.Sort{Field: core.SortAmount}, Page: page(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, idsOf(got))

	got, err = repo.List(ctx, core.ListQuery{Filter: owner, Sort: core.Sort{Field: core.SortDate, Desc: true}, Page: page(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, idsOf(got))

	got, err = repo.List(ctx, core.ListQuery{Filter: owner, Sort: core.Sort{Field: core.SortDate, Desc: true}, Page: page(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, idsOf(got))

	got, err = repo.List(ctx, core.ListQuery{Filter: owner, Page: page(3, 2)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateScopedToOwner(t *testing.T) {
	repo := newTestRepo(t)
	seedRepo(t, repo)
	ctx := context.Background()

	_, err := repo.Update(ctx, "u2", "a", func(e core.Expense) (core.Expense, error) { return e, nil })
	assert.ErrorIs(t, err, core.ErrNotFound)

	updated, err := repo.Update(ctx, "u1", "a", func(e core.Expense) (core.Expense, error) {
		e.Description = "renamed"
		e.Amount = core.Money{Cents: 42}
		e.UpdatedAt = baseTime.Add(time.Hour)
		return e, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Description)

	got, err := repo.List(ctx, core.ListQuery{Filter: core.Filter{Owner: "u1"}, Page: page(1, 1)})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got[0].Description)
	assert.Equal(t, int64(42), got[0].Amount.Cents)
	assert.True(t, baseTime.Add(time.Hour).Equal(got[0].UpdatedAt))

	_, err = repo.Update(ctx, "u1", "a", func(core.Expense) (core.Expense, error) {
		return core.Expense{}, fmt.Errorf("rejected")
	})
	require.Error(t, err)
	got, _ = repo.List(ctx, core.ListQuery{Filter: core.Filter{Owner: "u1"}, Page: page(1, 1)})
	assert.Equal(t, "renamed", got[0].Description)
}

func TestDeleteMany(t *testing.T) {
	repo := newTestRepo(t)
	seedRepo(t, repo)
	ctx := context.Background()

	deleted, err := repo.DeleteMany(ctx, "u1", []string{"a", "b", "d", "missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, deleted, "only the owner's existing rows are reported")

	left, err := repo.Count(ctx, core.Filter{Owner: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestDeleteManyChunks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var es []core.Expense
	var ids []string
	for i := 0; i < deleteChunk+20; i++ {
		id := fmt.Sprintf("id-%04d", i)
		es = append(es, mk(id, "u1", "Food", "Card", 1, core.NewDate(2024, 1, 1)))
		ids = append(ids, id)
	}
	require.NoError(t, repo.CreateMany(ctx, es))

	deleted, err := repo.DeleteMany(ctx, "u1", ids)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, deleted)
}

func TestMonthlyStats(t *testing.T) {
	repo := newTestRepo(t)
	seedRepo(t, repo)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mk("z", "u1", "Food", "Card", 50, core.NewDate(2023, 12, 31))))

	stats, err := repo.MonthlyStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []core.MonthlyStat{
		{Year: 2024, Month: 2, TotalAmount: core.Money{Cents: 200}, Count: 1},
		{Year: 2024, Month: 1, TotalAmount: core.Money{Cents: 400}, Count: 2},
		{Year: 2023, Month: 12, TotalAmount: core.Money{Cents: 50}, Count: 1},
	}, stats)

	empty, err := repo.MonthlyStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func idsOf(es []core.Expense) []string {
	if len(es) == 0 {
		return nil
	}
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
