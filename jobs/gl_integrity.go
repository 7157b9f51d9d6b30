package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	jobmetrics "github.com/odyssey-erp/expensepay/internal/jobs"
)

// ImbalanceSource lists vouchers whose ledger lines do not net to zero.
type ImbalanceSource interface {
	Imbalances(ctx context.Context, voucherType string) ([]ledger.Imbalance, error)
}

// GLIntegrityJob reports Expenses Entry vouchers left unbalanced, typically by
// a posting that stopped after a failed line.
type GLIntegrityJob struct {
	Ledger  ImbalanceSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewGLIntegrityJob(source ImbalanceSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Ledger: source, Logger: logger, Metrics: metrics}
}

// Handle runs the check. Imbalances are logged, not returned as failures.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: handler not configured")
	}
	_, err := j.Check(ctx)
	return err
}

// Check returns the unbalanced vouchers it found.
func (j *GLIntegrityJob) Check(ctx context.Context) (found []ledger.Imbalance, resultErr error) {
	tracker := j.metrics().Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()
	found, err := j.Ledger.Imbalances(ctx, ledger.VoucherTypeExpensesEntry)
	if err != nil {
		logger.Error("gl integrity check failed", slog.Any("error", err))
		return nil, err
	}
	for _, im := range found {
		logger.Warn("unbalanced voucher",
			slog.String("voucher_no", im.VoucherNo),
			slog.String("debit", im.Debit.StringFixed(2)),
			slog.String("credit", im.Credit.StringFixed(2)),
		)
	}
	logger.Info("gl integrity check executed", slog.Int("unbalanced", len(found)))
	return found, nil
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
