package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

func newWriter(repo ledger.Repository) *ledger.Writer {
	w := ledger.NewWriter(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.WithNow(func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) })
	return w
}

func line(voucher, account string, debit, credit int64, cancelled bool) ledger.Entry {
	return ledger.Entry{
		Account:     account,
		Debit:       decimal.NewFromInt(debit),
		Credit:      decimal.NewFromInt(credit),
		VoucherType: ledger.VoucherTypeExpensesEntry,
		VoucherNo:   voucher,
		IsCancelled: cancelled,
	}
}

func TestPostStopsAtFirstFailureWithoutRollback(t *testing.T) {
	repo := ledgertest.New()
	calls := 0
	repo.FailInsert = func(e ledger.Entry) error {
		calls++
		if calls == 2 {
			return ledgertest.ErrInjected
		}
		return nil
	}
	w := newWriter(repo)

	written, err := w.Post(context.Background(), []ledger.Entry{
		line("EXP-1", "Cash", 0, 100, false),
		line("EXP-1", "Rent", 100, 0, false),
		line("EXP-1", "VAT", 0, 0, false),
	})
	require.Error(t, err)
	require.Equal(t, shared.KindWrite, shared.KindOf(err))
	require.ErrorIs(t, err, ledgertest.ErrInjected)
	require.Len(t, written, 1)
	require.Len(t, repo.All(), 1)
	require.NotEmpty(t, repo.All()[0].Name)
}

func TestSupersedeIsIdempotent(t *testing.T) {
	repo := ledgertest.New()
	repo.Seed(line("EXP-1", "Cash", 0, 100, false), line("EXP-1", "Rent", 100, 0, false), line("EXP-2", "Cash", 0, 5, false))
	w := newWriter(repo)
	v := ledger.ExpensesEntryVoucher("EXP-1")

	n, err := w.Supersede(context.Background(), v, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = w.Supersede(context.Background(), v, "u-1")
	require.NoError(t, err)
	require.Zero(t, n)

	active, err := w.HasActive(context.Background(), ledger.ExpensesEntryVoucher("EXP-2"))
	require.NoError(t, err)
	require.True(t, active)
}

func TestReverseSupersedesOriginals(t *testing.T) {
	repo := ledgertest.New()
	repo.Seed(line("EXP-1", "Cash", 0, 100, false), line("EXP-1", "Rent", 100, 0, false))
	w := newWriter(repo)

	res, err := w.Reverse(context.Background(), ledger.ExpensesEntryVoucher("EXP-1"), []ledger.Entry{
		line("EXP-1", "Cash", 100, 0, true),
		line("EXP-1", "Rent", 0, 100, true),
	}, "u-1")
	require.NoError(t, err)
	require.Equal(t, ledger.OutcomeReversed, res.Outcome)
	require.False(t, res.Outcome.Degraded())
	require.Equal(t, 2, res.Written)
	require.Equal(t, int64(2), res.Superseded)
	for _, e := range repo.All() {
		require.True(t, e.IsCancelled)
	}
}

func TestReverseGroupAccountFailurePurgesVoucher(t *testing.T) {
	repo := ledgertest.New()
	repo.Seed(line("EXP-1", "Cash", 0, 100, false), line("EXP-1", "Expenses Group", 100, 0, false))
	repo.GroupAccounts["Expenses Group"] = true
	w := newWriter(repo)

	res, err := w.Reverse(context.Background(), ledger.ExpensesEntryVoucher("EXP-1"), []ledger.Entry{
		line("EXP-1", "Cash", 100, 0, true),
		line("EXP-1", "Expenses Group", 0, 100, true),
	}, "u-1")
	require.NoError(t, err)
	require.Equal(t, ledger.OutcomeInvalidPurged, res.Outcome)
	require.True(t, errors.Is(res.Cause, shared.ErrGroupAccount))
	require.Empty(t, repo.All())
}

func TestReverseGroupAccountFallsBackToSupersedeWhenDeleteFails(t *testing.T) {
	repo := ledgertest.New()
	repo.Seed(line("EXP-1", "Expenses Group", 100, 0, false))
	repo.GroupAccounts["Expenses Group"] = true
	repo.FailDelete = ledgertest.ErrInjected
	w := newWriter(repo)

	res, err := w.Reverse(context.Background(), ledger.ExpensesEntryVoucher("EXP-1"), []ledger.Entry{
		line("EXP-1", "Expenses Group", 0, 100, true),
	}, "u-1")
	require.NoError(t, err)
	require.Equal(t, ledger.OutcomeMarkedCancelled, res.Outcome)
	require.True(t, res.Invalid)
	require.Len(t, repo.All(), 1)
	require.True(t, repo.All()[0].IsCancelled)
}

func TestReverseOtherFailureOnlySupersedes(t *testing.T) {
	repo := ledgertest.New()
	repo.Seed(line("EXP-1", "Cash", 0, 100, false), line("EXP-1", "Rent", 100, 0, false))
	repo.FailInsert = func(ledger.Entry) error { return ledgertest.ErrInjected }
	w := newWriter(repo)

	res, err := w.Reverse(context.Background(), ledger.ExpensesEntryVoucher("EXP-1"), []ledger.Entry{
		line("EXP-1", "Cash", 100, 0, true),
	}, "u-1")
	require.NoError(t, err)
	require.Equal(t, ledger.OutcomeMarkedCancelled, res.Outcome)
	require.True(t, res.Outcome.Degraded())
	require.False(t, res.Invalid)
	require.Equal(t, int64(2), res.Superseded)
	require.Len(t, repo.All(), 2)
}

func TestValidateBatch(t *testing.T) {
	require.ErrorIs(t, ledger.ValidateBatch(nil), shared.ErrNoLines)
	require.ErrorIs(t, ledger.ValidateBatch([]ledger.Entry{
		line("EXP-1", "Cash", 0, 100, false),
		line("EXP-1", "Rent", 90, 0, false),
	}), shared.ErrUnbalanced)
	require.NoError(t, ledger.ValidateBatch([]ledger.Entry{
		line("EXP-1", "Cash", 0, 100, false),
		line("EXP-1", "Rent", 90, 0, false),
		line("EXP-1", "VAT", 10, 0, false),
	}))
	require.Error(t, ledger.ValidateBatch([]ledger.Entry{
		line("EXP-1", "Cash", 0, 100, false),
		line("EXP-2", "Rent", 100, 0, false),
	}))
}
