// Package ledgertest provides an in-memory ledger repository for tests.
package ledgertest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

// Repository is a ledger.Repository kept in memory. Lines posting to an
// account listed in GroupAccounts are rejected the way the database trigger
// rejects them.
type Repository struct {
	mu            sync.Mutex
	entries       []ledger.Entry
	seq           int
	GroupAccounts map[string]bool
	// FailInsert, when set, is consulted before every insert.
	FailInsert func(ledger.Entry) error
	FailDelete error
	FailUpdate error
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{GroupAccounts: map[string]bool{}}
}

// Seed appends lines as if they had been written earlier.
func (r *Repository) Seed(lines ...ledger.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		r.seq++
		if line.CreatedAt.IsZero() {
			line.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
		}
		r.entries = append(r.entries, line)
	}
}

// All returns a copy of every stored line in insertion order.
func (r *Repository) All() []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Entry(nil), r.entries...)
}

func (r *Repository) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		if err := r.FailInsert(e); err != nil {
			return ledger.Entry{}, err
		}
	}
	if r.GroupAccounts[e.Account] {
		return ledger.Entry{}, &shared.PostingError{Kind: shared.KindGroupAccount, Voucher: e.VoucherNo, Account: e.Account, Err: shared.ErrGroupAccount}
	}
	r.seq++
	e.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	e.UpdatedAt = e.CreatedAt
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *Repository) CountByVoucher(ctx context.Context, v ledger.Voucher, includeCancelled bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Voucher() == v && (includeCancelled || !e.IsCancelled) {
			n++
		}
	}
	return n, nil
}

func (r *Repository) ListByVoucher(ctx context.Context, v ledger.Voucher) ([]ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Entry
	for _, e := range r.entries {
		if e.Voucher() == v {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) MarkCancelled(ctx context.Context, v ledger.Voucher, actor string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.entries {
		if r.entries[i].Voucher() == v && !r.entries[i].IsCancelled {
			r.entries[i].IsCancelled = true
			r.entries[i].UpdatedAt = at
			r.entries[i].UpdatedBy = actor
			n++
		}
	}
	return n, nil
}

func (r *Repository) DeleteByVoucher(ctx context.Context, v ledger.Voucher) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete != nil {
		return 0, r.FailDelete
	}
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.Voucher() == v {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (r *Repository) Imbalances(ctx context.Context, voucherType string) ([]ledger.Imbalance, error) {
	r.mu.Lock()
	byVoucher := map[string][]ledger.Entry{}
	for _, e := range r.entries {
		if e.VoucherType == voucherType {
			byVoucher[e.VoucherNo] = append(byVoucher[e.VoucherNo], e)
		}
	}
	r.mu.Unlock()
	var out []ledger.Imbalance
	for no, lines := range byVoucher {
		debit, credit := ledger.Totals(lines)
		if !debit.Round(2).Equal(credit.Round(2)) {
			out = append(out, ledger.Imbalance{VoucherNo: no, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoucherNo < out[j].VoucherNo })
	return out, nil
}

// WithTx runs fn against a staged copy and applies it only when fn succeeds.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	r.mu.Lock()
	staged := append([]ledger.Entry(nil), r.entries...)
	r.mu.Unlock()
	tx := &txRepository{entries: staged, failUpdate: r.FailUpdate}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = tx.entries
	r.mu.Unlock()
	return nil
}

type txRepository struct {
	entries    []ledger.Entry
	failUpdate error
}

func (tx *txRepository) FindActiveByAccount(ctx context.Context, v ledger.Voucher, account string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range tx.entries {
		if e.Voucher() == v && e.Account == account && !e.IsCancelled {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *txRepository) UpdateCostCenter(ctx context.Context, name, costCenter, remarks, actor string, at time.Time) error {
	if tx.failUpdate != nil {
		return tx.failUpdate
	}
	for i := range tx.entries {
		if tx.entries[i].Name == name {
			tx.entries[i].CostCenter = costCenter
			tx.entries[i].Remarks = remarks
			tx.entries[i].UpdatedAt = at
			tx.entries[i].UpdatedBy = actor
			return nil
		}
	}
	return shared.ErrEntryNotFound
}

// ErrInjected is a convenience failure for FailInsert and FailDelete.
var ErrInjected = errors.New("ledgertest: injected failure")
