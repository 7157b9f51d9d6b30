// Package expensestest provides an in-memory Expenses Entry repository.
package expensestest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/expensepay/internal/expenses"
)

// Repository implements expenses.Repository in memory.
type Repository struct {
	mu      sync.Mutex
	entries map[string]expenses.Entry
	// FailSave, when set, is returned by SaveAmounts for the named document.
	FailSave map[string]error
	Saves    int
}

func New(entries ...expenses.Entry) *Repository {
	r := &Repository{entries: map[string]expenses.Entry{}, FailSave: map[string]error{}}
	for _, e := range entries {
		r.entries[e.Name] = clone(e)
	}
	return r
}

func clone(e expenses.Entry) expenses.Entry {
	e.Lines = append([]expenses.Line(nil), e.Lines...)
	return e
}

func (r *Repository) Get(ctx context.Context, name string) (expenses.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return expenses.Entry{}, expenses.ErrNotFound
	}
	return clone(e), nil
}

func (r *Repository) ListSubmitted(ctx context.Context) ([]expenses.Entry, error) {
	return r.filter(func(e expenses.Entry) bool { return e.Status == expenses.StatusSubmitted }), nil
}

func (r *Repository) ListSubmittedBetween(ctx context.Context, from, to time.Time) ([]expenses.Entry, error) {
	return r.filter(func(e expenses.Entry) bool {
		return e.Status == expenses.StatusSubmitted && !e.PostingDate.Before(from) && !e.PostingDate.After(to)
	}), nil
}

func (r *Repository) CountSubmittedBetween(ctx context.Context, from, to time.Time) (int, error) {
	list, _ := r.ListSubmittedBetween(ctx, from, to)
	return len(list), nil
}

func (r *Repository) filter(keep func(expenses.Entry) bool) []expenses.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []expenses.Entry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Repository) Create(ctx context.Context, entry expenses.Entry) (expenses.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Name]; ok {
		return expenses.Entry{}, expenses.ErrDuplicate
	}
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	r.entries[entry.Name] = clone(entry)
	return entry, nil
}

func (r *Repository) SaveAmounts(ctx context.Context, entry expenses.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailSave[entry.Name]; err != nil {
		return err
	}
	stored, ok := r.entries[entry.Name]
	if !ok {
		return expenses.ErrNotFound
	}
	stored.Lines = append([]expenses.Line(nil), entry.Lines...)
	r.entries[entry.Name] = stored
	r.Saves++
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, name string, from, to expenses.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || e.Status != from {
		return expenses.ErrInvalidTransition
	}
	e.Status = to
	r.entries[name] = e
	return nil
}

func (r *Repository) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return expenses.ErrNotFound
	}
	delete(r.entries, name)
	return nil
}
