// Package correction moves posted VAT ledger lines onto the cost center their
// Expenses Entry row asks for.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// remarksTimeLayout matches the timestamp written into corrected remarks.
const remarksTimeLayout = "2006-01-02 15:04:05.000000"

// ErrInvalidRequest matches every *RequestError.
var ErrInvalidRequest = errors.New("correction: invalid request")

// RequestError carries a user facing message for a rejected enqueue.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalid(format string, args ...any) error {
	return &RequestError{Message: fmt.Sprintf(format, args...)}
}

// Documents reads Expenses Entry documents.
type Documents interface {
	Get(ctx context.Context, name string) (expenses.Entry, error)
	ListSubmittedBetween(ctx context.Context, from, to time.Time) ([]expenses.Entry, error)
	CountSubmittedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Ledger opens a transaction per corrected document.
type Ledger interface {
	WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error
}

type CostCenters interface {
	IsGroup(ctx context.Context, name string) (bool, error)
}

type Templates interface {
	Get(ctx context.Context, name string) (taxes.Template, error)
}

// Enqueuer schedules correction jobs.
type Enqueuer interface {
	EnqueueCostCenterUpdate(ctx context.Context, runName string) (appshared.JobHandle, error)
	EnqueueSingleCostCenterUpdate(ctx context.Context, entryName, runName string) (appshared.JobHandle, error)
}

// Deps groups the collaborators of a Corrector. Enqueuer may be nil for
// workers that only execute runs.
type Deps struct {
	Runs        Repository
	Documents   Documents
	Ledger      Ledger
	CostCenters CostCenters
	Templates   Templates
	Enqueuer    Enqueuer
}

// Corrector runs cost-center corrections.
type Corrector struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func NewCorrector(deps Deps, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{deps: deps, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for remarks.
func (c *Corrector) WithClock(now func() time.Time) *Corrector {
	c.now = now
	return c
}

// CreateRun stores a new batch tracking document.
func (c *Corrector) CreateRun(ctx context.Context, from, to time.Time) (Run, error) {
	return c.deps.Runs.Create(ctx, Run{Name: newRunName(), FromDate: from, ToDate: to})
}

func (c *Corrector) Get(ctx context.Context, name string) (Run, error) {
	return c.deps.Runs.Get(ctx, name)
}

// CountEligible reports how many submitted documents a run over the range
// would visit.
func (c *Corrector) CountEligible(ctx context.Context, from, to time.Time) (int, error) {
	if err := checkRange(from, to); err != nil {
		return 0, err
	}
	return c.deps.Documents.CountSubmittedBetween(ctx, from, to)
}

// Enqueue schedules a batch run for a saved tracking document.
func (c *Corrector) Enqueue(ctx context.Context, runName string) (appshared.JobHandle, error) {
	if runName == "" {
		return appshared.JobHandle{}, invalid("Document name is required.")
	}
	if strings.HasPrefix(runName, expenses.UnsavedPrefix) {
		return appshared.JobHandle{}, invalid("Please save the Expenses Entry Cost Center Update document before running the update. " +
			"This ensures the document is properly named and saved for tracking purposes.")
	}
	run, err := c.deps.Runs.Get(ctx, runName)
	if err != nil {
		return appshared.JobHandle{}, err
	}
	if err := checkRange(run.FromDate, run.ToDate); err != nil {
		return appshared.JobHandle{}, err
	}
	handle, err := c.deps.Enqueuer.EnqueueCostCenterUpdate(ctx, run.Name)
	if err != nil {
		return appshared.JobHandle{}, fmt.Errorf("correction: enqueue %s: %w", run.Name, err)
	}
	c.logger.Info("cost center update enqueued", slog.String("run", run.Name), slog.String("job_id", handle.JobID))
	return handle, nil
}

// EnqueueSingle creates a tracking document for one submitted entry and
// schedules its correction.
func (c *Corrector) EnqueueSingle(ctx context.Context, entryName string) (appshared.JobHandle, error) {
	if entryName == "" {
		return appshared.JobHandle{}, invalid("Expenses Entry name is required.")
	}
	entry, err := c.deps.Documents.Get(ctx, entryName)
	if err != nil {
		return appshared.JobHandle{}, err
	}
	if !entry.Submitted() {
		return appshared.JobHandle{}, invalid("Expenses Entry must be submitted to update cost centers.")
	}
	run, err := c.deps.Runs.Create(ctx, Run{
		Name:         newRunName(),
		FromDate:     entry.PostingDate,
		ToDate:       entry.PostingDate,
		ExpenseEntry: entry.Name,
	})
	if err != nil {
		c.logger.Error("create cost center update run", slog.String("expense_entry", entry.Name), slog.Any("error", err))
		return appshared.JobHandle{}, invalid("Failed to create update document: %v. Please check permissions or contact the administrator.", err)
	}
	handle, err := c.deps.Enqueuer.EnqueueSingleCostCenterUpdate(ctx, entry.Name, run.Name)
	if err != nil {
		return appshared.JobHandle{}, fmt.Errorf("correction: enqueue %s: %w", run.Name, err)
	}
	c.logger.Info("single cost center update enqueued",
		slog.String("run", run.Name), slog.String("expense_entry", entry.Name), slog.String("job_id", handle.JobID))
	return handle, nil
}

// Run corrects every submitted document posted within the run's range and
// stores the summary and log on the run.
func (c *Corrector) Run(ctx context.Context, runName string) (Summary, error) {
	run, err := c.deps.Runs.Get(ctx, runName)
	if err != nil {
		return Summary{}, err
	}
	if err := checkRange(run.FromDate, run.ToDate); err != nil {
		return Summary{}, err
	}
	c.logger.Info("starting cost center update",
		slog.String("run", run.Name), slog.Time("from", run.FromDate), slog.Time("to", run.ToDate))

	entries, err := c.deps.Documents.ListSubmittedBetween(ctx, run.FromDate, run.ToDate)
	if err != nil {
		return Summary{}, fmt.Errorf("correction: list documents: %w", err)
	}
	res := result{Summary: Summary{Processed: len(entries)}}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res.Summary, err
		}
		c.apply(ctx, entry, ModeBatch, &res)
	}
	return c.finish(ctx, run.Name, ModeBatch, res)
}

// RunSingle corrects one document. Unlike batch runs it also leaves lines
// alone when the template's own cost center already equals the target.
func (c *Corrector) RunSingle(ctx context.Context, entryName, runName string) (Summary, error) {
	run, err := c.deps.Runs.Get(ctx, runName)
	if err != nil {
		return Summary{}, err
	}
	entry, err := c.deps.Documents.Get(ctx, entryName)
	if err != nil {
		return Summary{}, err
	}
	c.logger.Info("starting cost center update", slog.String("run", run.Name), slog.String("expense_entry", entry.Name))
	res := result{Summary: Summary{Processed: 1}}
	c.apply(ctx, entry, ModeSingle, &res)
	return c.finish(ctx, run.Name, ModeSingle, res)
}

type result struct {
	Summary
	log []LogDetail
}

// pass accumulates the outcome of one document until its transaction ends.
type pass struct {
	entry   string
	log     []LogDetail
	updated int
	skipped int
}

func (p *pass) skip(idx int, msg string) {
	p.skipped++
	p.log = append(p.log, LogDetail{EntryName: p.entry, RowIdx: idx, Message: msg})
}

func (p *pass) updatedLine(idx int, msg string) {
	p.updated++
	p.log = append(p.log, LogDetail{EntryName: p.entry, RowIdx: idx, Message: msg})
}

// apply corrects one document inside its own transaction. A failed document
// contributes only its error row.
func (c *Corrector) apply(ctx context.Context, entry expenses.Entry, mode Mode, res *result) {
	c.logger.Info("processing expenses entry", slog.String("name", entry.Name))
	var p pass
	err := c.deps.Ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		p = pass{entry: entry.Name}
		for _, line := range entry.Lines {
			if err := c.correctLine(ctx, tx, entry, line, mode, &p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("error processing expenses entry", slog.String("name", entry.Name), slog.Any("error", err))
		res.log = append(res.log, LogDetail{EntryName: entry.Name, RowIdx: 0, Message: "Error processing: " + err.Error()})
		return
	}
	res.Updated += p.updated
	res.Skipped += p.skipped
	res.log = append(res.log, p.log...)
}

func (c *Corrector) correctLine(ctx context.Context, tx ledger.TxRepository, entry expenses.Entry, line expenses.Line, mode Mode, p *pass) error {
	log := c.logger.With(slog.String("name", entry.Name), slog.Int("row", line.Idx))
	if line.VATTemplate == "" || !line.VATAmount.IsPositive() {
		log.Info("skipping row: no vat template or amount")
		p.skip(line.Idx, "Skipped (No VAT template or amount)")
		return nil
	}
	tmpl, err := c.deps.Templates.Get(ctx, line.VATTemplate)
	if err != nil {
		return fmt.Errorf("vat template %s: %w", line.VATTemplate, err)
	}
	rule, ok := tmpl.FirstRule()
	if !ok {
		log.Info("skipping row: invalid vat template", slog.String("template", tmpl.Name))
		p.skip(line.Idx, "Skipped (Invalid VAT template)")
		return nil
	}
	target := entry.CostCenterFor(line)
	if target == "" {
		log.Info("skipping row: no cost center set")
		p.skip(line.Idx, "Skipped (No cost center set)")
		return nil
	}
	group, err := c.deps.CostCenters.IsGroup(ctx, target)
	if err != nil {
		return err
	}
	if group {
		log.Error("skipping row: cost center is a group", slog.String("cost_center", target))
		p.skip(line.Idx, fmt.Sprintf("Skipped (Cost center %s is a group)", target))
		return nil
	}

	found, err := tx.FindActiveByAccount(ctx, ledger.ExpensesEntryVoucher(entry.Name), rule.AccountHead)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		log.Info("skipping row: no vat gl entry found", slog.String("account", rule.AccountHead))
		p.skip(line.Idx, "Skipped (No VAT GL entry found)")
		return nil
	}
	actor := appshared.ActorID(ctx)
	for _, gl := range found {
		if gl.CostCenter == target {
			log.Info("skipping row: gl entry already has cost center", slog.String("gl_entry", gl.Name), slog.String("cost_center", target))
			p.skip(line.Idx, fmt.Sprintf("Skipped (GL entry %s already has cost center %s)", gl.Name, target))
			continue
		}
		if mode == ModeSingle && rule.CostCenter == target {
			log.Info("skipping row: template cost center matches target", slog.String("cost_center", rule.CostCenter))
			p.skip(line.Idx, fmt.Sprintf("Skipped (VAT template cost center %s matches target cost center)", rule.CostCenter))
			continue
		}
		now := c.now()
		remarks := fmt.Sprintf("Cost center updated to %s on %s (Original: %s)", target, now.Format(remarksTimeLayout), gl.CostCenter)
		if err := tx.UpdateCostCenter(ctx, gl.Name, target, remarks, actor, now); err != nil {
			return err
		}
		log.Info("updated gl entry cost center", slog.String("gl_entry", gl.Name), slog.String("from", gl.CostCenter), slog.String("cost_center", target))
		p.updatedLine(line.Idx, fmt.Sprintf("Updated GL entry %s to cost center %s (was %s)", gl.Name, target, gl.CostCenter))
	}
	return nil
}

func (c *Corrector) finish(ctx context.Context, runName string, mode Mode, res result) (Summary, error) {
	if err := c.deps.Runs.SaveResult(ctx, runName, res.Status(mode), res.log); err != nil {
		return res.Summary, fmt.Errorf("correction: save run %s: %w", runName, err)
	}
	c.logger.Info("completed cost center update", slog.String("run", runName),
		slog.Int("updated", res.Updated), slog.Int("skipped", res.Skipped))
	return res.Summary, nil
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return invalid("From Date and To Date are required in the document.")
	}
	if from.After(to) {
		return invalid("From Date cannot be later than To Date.")
	}
	return nil
}

func newRunName() string {
	return "CCU-" + strings.ToUpper(uuid.NewString()[:8])
}
