// Package correctiontest provides an in-memory run store.
package correctiontest

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/expensepay/internal/correction"
)

// Repository implements correction.Repository in memory.
type Repository struct {
	mu   sync.Mutex
	runs map[string]correction.Run
}

func New() *Repository {
	return &Repository{runs: map[string]correction.Run{}}
}

func (m *Repository) Create(ctx context.Context, run correction.Run) (correction.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.Name]; ok {
		return correction.Run{}, correction.ErrDuplicateRun
	}
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	m.runs[run.Name] = run
	return run, nil
}

func (m *Repository) Get(ctx context.Context, name string) (correction.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[name]
	if !ok {
		return correction.Run{}, correction.ErrRunNotFound
	}
	run.Log = append([]correction.LogDetail(nil), run.Log...)
	return run, nil
}

func (m *Repository) SaveResult(ctx context.Context, name, status string, log []correction.LogDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[name]
	if !ok {
		return correction.ErrRunNotFound
	}
	run.UpdateStatus = status
	run.Log = append([]correction.LogDetail(nil), log...)
	run.UpdatedAt = time.Now().UTC()
	m.runs[name] = run
	return nil
}
