package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"expensetracker/internal/core"
)

// Store keeps expenses in insertion order behind a mutex. It implements
// services.Store and is meant for tests and local runs.
type Store struct {
	mu    sync.Mutex
	items []core.Expense
}

func New() *Store {
	return &Store{}
}

func (s *Store) Create(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(e.ID) >= 0 {
		return core.E(core.KindConflict, "create expense", fmt.Errorf("duplicate id %s", e.ID))
	}
	s.items = append(s.items, e)
	return nil
}

// CreateMany appends all records or, on a duplicate id, none.
func (s *Store) CreateMany(_ context.Context, es []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(es))
	for _, e := range es {
		if _, dup := seen[e.ID]; dup || s.indexLocked(e.ID) >= 0 {
			return core.E(core.KindConflict, "create expenses", fmt.Errorf("duplicate id %s", e.ID))
		}
		seen[e.ID] = struct{}{}
	}
	s.items = append(s.items, es...)
	return nil
}

func (s *Store) List(ctx context.Context, q core.ListQuery) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	matched := s.filterLocked(q.Filter)
	s.mu.Unlock()

	if q.Sort.Field != core.SortNone {
		slices.SortStableFunc(matched, func(a, b core.Expense) int {
			c := compareField(q.Sort.Field, a, b)
			if q.Sort.Desc {
				return -c
			}
			return c
		})
	}

	start := min(q.Page.Offset(), len(matched))
	end := min(start+q.Page.Size, len(matched))
	return matched[start:end], nil
}

func (s *Store) Count(ctx context.Context, f core.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filterLocked(f)), nil
}

func (s *Store) Update(_ context.Context, owner, id string, mutate func(core.Expense) (core.Expense, error)) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 || s.items[i].CreatedBy != owner {
		return core.Expense{}, core.ErrNotFound
	}
	updated, err := mutate(s.items[i])
	if err != nil {
		return core.Expense{}, err
	}
	s.items[i] = updated
	return updated, nil
}

func (s *Store) DeleteMany(_ context.Context, owner string, ids []string) ([]string, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	s.items = slices.DeleteFunc(s.items, func(e core.Expense) bool {
		_, hit := want[e.ID]
		if hit && e.CreatedBy == owner {
			deleted = append(deleted, e.ID)
			return true
		}
		return false
	})
	return deleted, nil
}

func (s *Store) MonthlyStats(_ context.Context, owner string) ([]core.MonthlyStat, error) {
	type key struct{ year, month int }

	s.mu.Lock()
	groups := map[key]*core.MonthlyStat{}
	for _, e := range s.items {
		if e.CreatedBy != owner {
			continue
		}
		k := key{e.Date.Year(), e.Date.Month()}
		g, ok := groups[k]
		if !ok {
			g = &core.MonthlyStat{Year: k.year, Month: k.month}
			groups[k] = g
		}
		g.TotalAmount.Cents += e.Amount.Cents
		g.Count++
	}
	s.mu.Unlock()

	out := make([]core.MonthlyStat, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b core.MonthlyStat) int {
		if c := cmp.Compare(b.Year, a.Year); c != 0 {
			return c
		}
		return cmp.Compare(b.Month, a.Month)
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored expenses across all owners.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(e core.Expense) bool { return e.ID == id })
}

func (s *Store) filterLocked(f core.Filter) []core.Expense {
	var out []core.Expense
	for _, e := range s.items {
		if matches(f, e) {
			out = append(out, e)
		}
	}
	return out
}

func matches(f core.Filter, e core.Expense) bool {
	switch {
	case e.CreatedBy != f.Owner:
		return false
	case f.Category != "" && e.Category != f.Category:
		return false
	case f.PaymentMethod != "" && e.PaymentMethod != f.PaymentMethod:
		return false
	case !f.StartDate.IsEmpty() && e.Date.Before(f.StartDate.Time):
		return false
	case !f.EndDate.IsEmpty() && e.Date.After(f.EndDate.Time):
		return false
	}
	return true
}

func compareField(field core.SortField, a, b core.Expense) int {
	switch field {
	case core.SortDescription:
		return strings.Compare(a.Description, b.Description)
	case core.SortAmount:
		return cmp.Compare(a.Amount.Cents, b.Amount.Cents)
	case core.SortCategory:
		return strings.Compare(a.Category, b.Category)
	case core.SortPaymentMethod:
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	case core.SortDate:
		return a.Date.Compare(b.Date.Time)
	case core.SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return 0
	}
}
