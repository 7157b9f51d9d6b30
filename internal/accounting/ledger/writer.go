package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

// Outcome describes how a reversal or cleanup completed.
type Outcome string

const (
	// OutcomeReversed means reversal lines were written and originals superseded.
	OutcomeReversed Outcome = "reversed"
	// OutcomeInvalidPurged means the voucher's lines were deleted because they
	// referenced group accounts.
	OutcomeInvalidPurged Outcome = "invalid_purged"
	// OutcomeMarkedCancelled means originals were flagged cancelled without a
	// reversing batch.
	OutcomeMarkedCancelled Outcome = "marked_cancelled"
)

// Degraded reports whether the outcome skipped the reversing batch.
func (o Outcome) Degraded() bool {
	return o != OutcomeReversed
}

// Result reports what a reversal or cleanup did.
type Result struct {
	Outcome    Outcome
	Written    int
	Superseded int64
	Deleted    int64
	// Invalid is set when the invalid-account cleanup path ran.
	Invalid bool
	// Cause is the failure that forced a degraded outcome.
	Cause error
}

// Writer persists ledger batches and applies the cancellation fallback chain.
type Writer struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewWriter(repo Repository, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return "GLE-" + uuid.NewString() },
	}
}

func (w *Writer) WithNow(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// Post writes lines one at a time. The first failure stops the batch; lines
// already written stay in place. The returned slice holds the written lines.
func (w *Writer) Post(ctx context.Context, lines []Entry) ([]Entry, error) {
	if len(lines) == 0 {
		return nil, shared.ErrNoLines
	}
	written := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if line.Name == "" {
			line.Name = w.newID()
		}
		saved, err := w.repo.Insert(ctx, line)
		if err != nil {
			var perr *shared.PostingError
			if !errors.As(err, &perr) {
				err = &shared.PostingError{Kind: shared.KindWrite, Voucher: line.VoucherNo, Account: line.Account, Err: err}
			}
			w.logger.Error("gl entry write failed",
				slog.String("voucher_no", line.VoucherNo),
				slog.String("account", line.Account),
				slog.String("kind", shared.KindOf(err).String()),
				slog.Int("written", len(written)),
				slog.Any("error", err))
			return written, err
		}
		written = append(written, saved)
	}
	return written, nil
}

// Supersede marks every active line of the voucher cancelled. Re-running it
// with no active lines is a no-op.
func (w *Writer) Supersede(ctx context.Context, v Voucher, actor string) (int64, error) {
	if v.No == "" {
		return 0, shared.ErrVoucherRequired
	}
	n, err := w.repo.MarkCancelled(ctx, v, actor, w.now())
	if err != nil {
		return 0, fmt.Errorf("ledger: supersede %s: %w", v, err)
	}
	return n, nil
}

// Purge deletes every line of the voucher.
func (w *Writer) Purge(ctx context.Context, v Voucher) (int64, error) {
	if v.No == "" {
		return 0, shared.ErrVoucherRequired
	}
	n, err := w.repo.DeleteByVoucher(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("ledger: purge %s: %w", v, err)
	}
	return n, nil
}

// HasActive reports whether the voucher has non-cancelled lines.
func (w *Writer) HasActive(ctx context.Context, v Voucher) (bool, error) {
	n, err := w.repo.CountByVoucher(ctx, v, false)
	return n > 0, err
}

// HasAny reports whether the voucher has lines of any state.
func (w *Writer) HasAny(ctx context.Context, v Voucher) (bool, error) {
	n, err := w.repo.CountByVoucher(ctx, v, true)
	return n > 0, err
}

// Lines returns every line of the voucher.
func (w *Writer) Lines(ctx context.Context, v Voucher) ([]Entry, error) {
	return w.repo.ListByVoucher(ctx, v)
}

// CleanupInvalid removes a voucher batch that references group accounts. When
// the delete fails the batch is superseded instead.
func (w *Writer) CleanupInvalid(ctx context.Context, v Voucher, actor string) (Result, error) {
	deleted, err := w.Purge(ctx, v)
	if err == nil {
		return Result{Outcome: OutcomeInvalidPurged, Deleted: deleted, Invalid: true}, nil
	}
	w.logger.Error("delete invalid gl entries", slog.String("voucher_no", v.No), slog.Any("error", err))
	superseded, supErr := w.Supersede(ctx, v, actor)
	if supErr != nil {
		return Result{Cause: err, Invalid: true}, errors.Join(err, supErr)
	}
	return Result{Outcome: OutcomeMarkedCancelled, Superseded: superseded, Cause: err, Invalid: true}, nil
}

// Reverse writes a cancellation batch then supersedes the voucher's active
// lines. A group-account write failure purges the voucher; any other write
// failure falls back to superseding only. An error is returned only when the
// fallback itself fails.
func (w *Writer) Reverse(ctx context.Context, v Voucher, lines []Entry, actor string) (Result, error) {
	written, err := w.Post(ctx, lines)
	if err != nil {
		if shared.KindOf(err) == shared.KindGroupAccount {
			w.logger.Warn("reversal rejected for group account, deleting voucher lines",
				slog.String("voucher_no", v.No), slog.Any("error", err))
			res, cleanupErr := w.CleanupInvalid(ctx, v, actor)
			res.Written = len(written)
			if res.Cause == nil {
				res.Cause = err
			}
			return res, cleanupErr
		}
		w.logger.Warn("reversal write failed, marking existing lines cancelled",
			slog.String("voucher_no", v.No), slog.Any("error", err))
		superseded, supErr := w.Supersede(ctx, v, actor)
		if supErr != nil {
			return Result{Written: len(written), Cause: err}, errors.Join(err, supErr)
		}
		return Result{Outcome: OutcomeMarkedCancelled, Written: len(written), Superseded: superseded, Cause: err}, nil
	}
	superseded, err := w.Supersede(ctx, v, actor)
	if err != nil {
		return Result{Written: len(written)}, err
	}
	return Result{Outcome: OutcomeReversed, Written: len(written), Superseded: superseded}, nil
}
