package integration_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/integration"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

type auditRecorder struct {
	logs []appshared.AuditLog
}

func (a *auditRecorder) Record(_ context.Context, log appshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newHooks(repo *ledgertest.Repository, groups groupSet, audit *auditRecorder) *integration.Hooks {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var port appshared.AuditPort
	if audit != nil {
		port = audit
	}
	return integration.NewHooks(ledger.NewWriter(repo, logger), deps(groups), port, logger)
}

func active(lines []ledger.Entry) []ledger.Entry {
	var out []ledger.Entry
	for _, line := range lines {
		if !line.IsCancelled {
			out = append(out, line)
		}
	}
	return out
}

func TestCreateThenCancelRoundTrip(t *testing.T) {
	repo := ledgertest.New()
	audit := &auditRecorder{}
	hooks := newHooks(repo, groupSet{}, audit)
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	ctx := appshared.ContextWithActor(context.Background(), appshared.Actor{ID: "u-42"})

	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CreateGLEntries(ctx, entry, sink))
	require.Len(t, repo.All(), 3)
	require.Equal(t, []appshared.Notification{{Indicator: appshared.IndicatorGreen, Message: "GL Entry Created for EXP-0001"}}, sink.Items())

	sink = &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(ctx, entry, sink))
	all := repo.All()
	require.Len(t, all, 6)
	require.Empty(t, active(all))
	debit, credit := ledger.Totals(all[3:])
	require.True(t, debit.Equal(credit))
	for _, line := range all[:3] {
		require.Equal(t, "u-42", line.UpdatedBy)
	}
	require.Equal(t, appshared.IndicatorGreen, sink.Items()[0].Indicator)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "gl.post", audit.logs[0].Action)
	require.Equal(t, "gl.cancel", audit.logs[1].Action)
	require.Equal(t, "reversed", audit.logs[1].Meta["outcome"])
	require.Equal(t, "u-42", audit.logs[1].ActorID)
}

func TestCancelWithoutActiveLinesIsNoop(t *testing.T) {
	repo := ledgertest.New()
	hooks := newHooks(repo, groupSet{}, nil)
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))

	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Empty(t, repo.All())
	require.Empty(t, sink.Items())
}

func TestCancelWithGroupAccountDeletesLines(t *testing.T) {
	repo := ledgertest.New()
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	require.NoError(t, newHooks(repo, groupSet{}, nil).CreateGLEntries(context.Background(), entry, nil))

	// Office Rent became a group account after posting.
	hooks := newHooks(repo, groupSet{"Office Rent": true}, nil)
	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Empty(t, repo.All())
	require.Equal(t, appshared.Notification{
		Indicator: appshared.IndicatorOrange,
		Message:   "Cancelled Expenses Entry EXP-0001. Invalid GL entries (with group accounts) have been deleted to keep the ledger clean.",
	}, sink.Items()[0])
}

func TestCancelWithDeletedTemplateDeletesLines(t *testing.T) {
	repo := ledgertest.New()
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	audit := &auditRecorder{}
	hooks := newHooks(repo, groupSet{}, audit)
	require.NoError(t, hooks.CreateGLEntries(context.Background(), entry, nil))
	require.Len(t, active(repo.All()), 3)

	entry.Lines[0].VATTemplate = "Deleted Template"
	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Empty(t, active(repo.All()))
	require.Equal(t, appshared.IndicatorOrange, sink.Items()[0].Indicator)
	require.Equal(t, "invalid_purged", audit.logs[1].Meta["outcome"])
}

type failingFiscalYear struct{}

func (failingFiscalYear) DefaultFiscalYear(context.Context, string, time.Time) (string, error) {
	return "", errors.New("fiscal year store offline")
}

func TestCancelMarksOriginalsWhenReversalCannotBeBuilt(t *testing.T) {
	repo := ledgertest.New()
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	require.NoError(t, newHooks(repo, groupSet{}, nil).CreateGLEntries(context.Background(), entry, nil))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broken := deps(groupSet{})
	broken.FiscalYears = failingFiscalYear{}
	audit := &auditRecorder{}
	hooks := integration.NewHooks(ledger.NewWriter(repo, logger), broken, audit, logger)

	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Len(t, repo.All(), 3)
	require.Empty(t, active(repo.All()))
	require.Equal(t, appshared.Notification{
		Indicator: appshared.IndicatorOrange,
		Message:   "Cancelled Expenses Entry EXP-0001. Reversal GL entries could not be created; existing GL entries marked as cancelled.",
	}, sink.Items()[0])
	require.Equal(t, "marked_cancelled", audit.logs[0].Meta["outcome"])
	require.Equal(t, "integration: resolve fiscal year: fiscal year store offline", audit.logs[0].Meta["cause"])
}

func TestCancelFallsBackToMarkingWhenDeleteFails(t *testing.T) {
	repo := ledgertest.New()
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	require.NoError(t, newHooks(repo, groupSet{}, nil).CreateGLEntries(context.Background(), entry, nil))
	repo.FailDelete = ledgertest.ErrInjected

	hooks := newHooks(repo, groupSet{"Office Rent": true}, nil)
	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Len(t, repo.All(), 3)
	require.Empty(t, active(repo.All()))
	require.Equal(t, "Cancelled Expenses Entry EXP-0001. GL entries marked as cancelled (could not delete due to error).", sink.Items()[0].Message)
}

func TestCancelWriteFailureMarksOriginalsCancelled(t *testing.T) {
	repo := ledgertest.New()
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	hooks := newHooks(repo, groupSet{}, nil)
	require.NoError(t, hooks.CreateGLEntries(context.Background(), entry, nil))
	repo.FailInsert = func(ledger.Entry) error { return ledgertest.ErrInjected }

	sink := &appshared.Recorder{}
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, sink))
	require.Len(t, repo.All(), 3)
	require.Empty(t, active(repo.All()))
	require.Equal(t, appshared.IndicatorOrange, sink.Items()[0].Indicator)
}

func TestCreateWriteFailureNotifiesRed(t *testing.T) {
	repo := ledgertest.New()
	repo.GroupAccounts["VAT Input"] = true
	hooks := newHooks(repo, groupSet{}, nil)
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))

	sink := &appshared.Recorder{}
	err := hooks.CreateGLEntries(context.Background(), entry, sink)
	require.Error(t, err)
	require.Len(t, repo.All(), 2)
	require.Equal(t, appshared.IndicatorRed, sink.Items()[0].Indicator)
	require.Contains(t, sink.Items()[0].Message, "Error submitting GL Entry for EXP-0001: ")
}

func TestCreateRejectsUnbalancedDocument(t *testing.T) {
	repo := ledgertest.New()
	hooks := newHooks(repo, groupSet{}, nil)
	entry := document("999", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))

	err := hooks.CreateGLEntries(context.Background(), entry, nil)
	require.Error(t, err)
	require.Empty(t, repo.All())
}

func TestDeleteGLEntriesPurgesVoucher(t *testing.T) {
	repo := ledgertest.New()
	hooks := newHooks(repo, groupSet{}, nil)
	entry := document("1000", currentLine(1, "Office Rent", "900", "100", "VAT 10%"))
	require.NoError(t, hooks.CreateGLEntries(context.Background(), entry, nil))
	require.NoError(t, hooks.CancelGLEntries(context.Background(), entry, nil))

	sink := &appshared.Recorder{}
	entry.Status = expenses.StatusCancelled
	require.NoError(t, hooks.DeleteGLEntries(context.Background(), entry, sink))
	require.Empty(t, repo.All())
	require.Equal(t, "Cancelled and deleted GL Entries related to Expenses Entry EXP-0001.", sink.Items()[0].Message)
}
