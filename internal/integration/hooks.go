package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

const auditEntity = "expenses_entry"

// Hooks wires Expenses Entry lifecycle events into the general ledger.
type Hooks struct {
	writer *ledger.Writer
	deps   Deps
	audit  appshared.AuditPort
	logger *slog.Logger
}

// NewHooks constructs integration hooks. audit may be nil.
func NewHooks(writer *ledger.Writer, deps Deps, audit appshared.AuditPort, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{writer: writer, deps: deps, audit: audit, logger: logger}
}

// CreateGLEntries posts the ledger batch for a submitted document. Account
// and balance failures abort before any write. A write failure stops the
// batch and is reported red; lines already written are kept.
func (h *Hooks) CreateGLEntries(ctx context.Context, entry expenses.Entry, sink appshared.Notifier) error {
	sink = orDiscard(sink)
	lines, err := GeneratePosting(ctx, entry, h.deps)
	if err != nil {
		return err
	}
	if err := ledger.ValidateBatch(lines); err != nil {
		return fmt.Errorf("integration: %s: %w", entry.Name, err)
	}
	written, err := h.writer.Post(ctx, lines)
	if err != nil {
		h.logger.Error("error submitting gl entry", slog.String("voucher_no", entry.Name), slog.Int("written", len(written)), slog.Any("error", err))
		sink.Notify(ctx, appshared.Notification{
			Indicator: appshared.IndicatorRed,
			Message:   fmt.Sprintf("Error submitting GL Entry for %s: %v", entry.Name, err),
		})
		return err
	}
	h.logger.Info("gl entry created", slog.String("voucher_no", entry.Name), slog.Int("lines", len(written)))
	sink.Notify(ctx, appshared.Notification{Indicator: appshared.IndicatorGreen, Message: fmt.Sprintf("GL Entry Created for %s", entry.Name)})
	debit, _ := ledger.Totals(written)
	h.record(ctx, "gl.post", entry.Name, map[string]any{"lines": len(written), "total": debit.StringFixed(2)})
	return nil
}

// CancelGLEntries reverses the active batch of a cancelled document. It never
// blocks the cancellation on validation: documents referencing group accounts
// or missing VAT templates have their lines removed instead, and a reversal
// that cannot be built leaves the originals marked cancelled.
func (h *Hooks) CancelGLEntries(ctx context.Context, entry expenses.Entry, sink appshared.Notifier) error {
	sink = orDiscard(sink)
	voucher := ledger.ExpensesEntryVoucher(entry.Name)
	active, err := h.writer.HasActive(ctx, voucher)
	if err != nil {
		return err
	}
	if !active {
		h.logger.Info("no gl entries found, skipping cancellation", slog.String("voucher_no", entry.Name))
		return nil
	}
	actor := appshared.ActorID(ctx)

	if err := h.deps.Validator.Validate(ctx, entry, expenses.ValidateOptions{}); err != nil {
		if !errors.Is(err, shared.ErrInvalidAccount) && !errors.Is(err, taxes.ErrTemplateNotFound) {
			return err
		}
		h.logger.Warn("validation failed during cancellation, removing invalid gl entries",
			slog.String("voucher_no", entry.Name), slog.Any("error", err))
		res, err := h.writer.CleanupInvalid(ctx, voucher, actor)
		if err != nil {
			return err
		}
		h.notifyOutcome(ctx, sink, entry.Name, res)
		h.record(ctx, "gl.cancel", entry.Name, outcomeMeta(res))
		return nil
	}

	lines, err := GenerateReversal(ctx, entry, h.deps)
	if err != nil {
		superseded, supErr := h.writer.Supersede(ctx, voucher, actor)
		if supErr != nil {
			return errors.Join(err, supErr)
		}
		res := ledger.Result{Outcome: ledger.OutcomeMarkedCancelled, Superseded: superseded, Cause: err}
		h.notifyOutcome(ctx, sink, entry.Name, res)
		h.record(ctx, "gl.cancel", entry.Name, outcomeMeta(res))
		return nil
	}
	res, err := h.writer.Reverse(ctx, voucher, lines, actor)
	if err != nil {
		return err
	}
	h.notifyOutcome(ctx, sink, entry.Name, res)
	h.record(ctx, "gl.cancel", entry.Name, outcomeMeta(res))
	return nil
}

// DeleteGLEntries removes every ledger line of the voucher ahead of the
// document's deletion.
func (h *Hooks) DeleteGLEntries(ctx context.Context, entry expenses.Entry, sink appshared.Notifier) error {
	sink = orDiscard(sink)
	h.logger.Info("deleting gl entries", slog.String("voucher_no", entry.Name))
	deleted, err := h.writer.Purge(ctx, ledger.ExpensesEntryVoucher(entry.Name))
	if err != nil {
		return err
	}
	sink.Notify(ctx, appshared.Notification{
		Indicator: appshared.IndicatorGreen,
		Message:   fmt.Sprintf("Cancelled and deleted GL Entries related to Expenses Entry %s.", entry.Name),
	})
	h.record(ctx, "gl.delete", entry.Name, map[string]any{"deleted": deleted})
	return nil
}

func (h *Hooks) notifyOutcome(ctx context.Context, sink appshared.Notifier, name string, res ledger.Result) {
	var note appshared.Notification
	switch {
	case res.Outcome == ledger.OutcomeReversed:
		note = appshared.Notification{Indicator: appshared.IndicatorGreen, Message: fmt.Sprintf("GL Entries cancelled for %s", name)}
	case res.Outcome == ledger.OutcomeInvalidPurged:
		note = appshared.Notification{
			Indicator: appshared.IndicatorOrange,
			Message:   fmt.Sprintf("Cancelled Expenses Entry %s. Invalid GL entries (with group accounts) have been deleted to keep the ledger clean.", name),
		}
	case res.Invalid:
		note = appshared.Notification{
			Indicator: appshared.IndicatorOrange,
			Message:   fmt.Sprintf("Cancelled Expenses Entry %s. GL entries marked as cancelled (could not delete due to error).", name),
		}
	default:
		h.logger.Warn("reversal gl entries not written, existing entries marked cancelled",
			slog.String("voucher_no", name), slog.Any("cause", res.Cause))
		note = appshared.Notification{
			Indicator: appshared.IndicatorOrange,
			Message:   fmt.Sprintf("Cancelled Expenses Entry %s. Reversal GL entries could not be created; existing GL entries marked as cancelled.", name),
		}
	}
	sink.Notify(ctx, note)
}

func outcomeMeta(res ledger.Result) map[string]any {
	meta := map[string]any{
		"outcome":    string(res.Outcome),
		"written":    res.Written,
		"superseded": res.Superseded,
		"deleted":    res.Deleted,
	}
	if res.Cause != nil {
		meta["cause"] = res.Cause.Error()
	}
	return meta
}

func (h *Hooks) record(ctx context.Context, action, name string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(ctx, appshared.AuditLog{
		ActorID:  appshared.ActorID(ctx),
		Action:   action,
		Entity:   auditEntity,
		EntityID: name,
		Meta:     meta,
	})
	if err != nil {
		h.logger.Warn("audit record failed", slog.String("action", action), slog.String("entity_id", name), slog.Any("error", err))
	}
}

func orDiscard(sink appshared.Notifier) appshared.Notifier {
	if sink == nil {
		return appshared.Discard{}
	}
	return sink
}
