package correction_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/accounting/ledger/ledgertest"
	"github.com/odyssey-erp/expensepay/internal/correction"
	"github.com/odyssey-erp/expensepay/internal/correction/correctiontest"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/expenses/expensestest"
	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

type groupSet map[string]bool

func (g groupSet) IsGroup(_ context.Context, name string) (bool, error) { return g[name], nil }

type templateMap map[string]taxes.Template

func (m templateMap) Get(_ context.Context, name string) (taxes.Template, error) {
	tmpl, ok := m[name]
	if !ok {
		return taxes.Template{}, taxes.ErrTemplateNotFound
	}
	return tmpl, nil
}

type enqueued struct {
	kind, entry, run string
}

type stubEnqueuer struct {
	calls []enqueued
}

func (s *stubEnqueuer) EnqueueCostCenterUpdate(_ context.Context, runName string) (appshared.JobHandle, error) {
	s.calls = append(s.calls, enqueued{kind: "batch", run: runName})
	return appshared.JobHandle{JobID: "job-1", Queue: "long"}, nil
}

func (s *stubEnqueuer) EnqueueSingleCostCenterUpdate(_ context.Context, entryName, runName string) (appshared.JobHandle, error) {
	s.calls = append(s.calls, enqueued{kind: "single", entry: entryName, run: runName})
	return appshared.JobHandle{JobID: "job-2", Queue: "long"}, nil
}

var (
	postingDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	clock       = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	templates   = templateMap{
		"VAT 10%":   {Name: "VAT 10%", Rules: []taxes.Rule{{AccountHead: "VAT Input", CostCenter: "Tax CC"}}},
		"Other VAT": {Name: "Other VAT", Rules: []taxes.Rule{{AccountHead: "VAT Other", CostCenter: "Tax CC"}}},
		"Empty":     {Name: "Empty"},
	}
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func vatLine(idx int, template, costCenter string) expenses.Line {
	return expenses.Line{
		Idx:              idx,
		PaidTo:           "Office Rent",
		Amount:           dec("110"),
		AmountWithoutVAT: dec("100"),
		VATAmount:        dec("10"),
		VATTemplate:      template,
		CostCenter:       costCenter,
		Schema:           expenses.SchemaCurrent,
	}
}

func entry(name string, lines ...expenses.Line) expenses.Entry {
	return expenses.Entry{
		Name:        name,
		PostingDate: postingDate,
		Company:     "Odyssey",
		PaidFrom:    "Cash",
		Status:      expenses.StatusSubmitted,
		Lines:       lines,
	}
}

func vatGL(name, voucher, costCenter string) ledger.Entry {
	return ledger.Entry{
		Name:        name,
		Account:     "VAT Input",
		CostCenter:  costCenter,
		Debit:       dec("10"),
		VoucherType: ledger.VoucherTypeExpensesEntry,
		VoucherNo:   voucher,
	}
}

type fixture struct {
	runs      *correctiontest.Repository
	ledger    *ledgertest.Repository
	enqueuer  *stubEnqueuer
	corrector *correction.Corrector
}

func newFixture(groups groupSet, entries ...expenses.Entry) fixture {
	f := fixture{runs: correctiontest.New(), ledger: ledgertest.New(), enqueuer: &stubEnqueuer{}}
	f.corrector = correction.NewCorrector(correction.Deps{
		Runs:        f.runs,
		Documents:   expensestest.New(entries...),
		Ledger:      f.ledger,
		CostCenters: groups,
		Templates:   templates,
		Enqueuer:    f.enqueuer,
	}, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(func() time.Time { return clock })
	return f
}

func (f fixture) batchRun(t *testing.T) correction.Run {
	t.Helper()
	run, err := f.corrector.CreateRun(context.Background(), postingDate.AddDate(0, 0, -1), postingDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	return run
}

func (f fixture) gl(name string) ledger.Entry {
	for _, e := range f.ledger.All() {
		if e.Name == name {
			return e
		}
	}
	return ledger.Entry{}
}

func TestRunMovesVATLineToRowCostCenter(t *testing.T) {
	f := newFixture(groupSet{}, entry("EXP-1", vatLine(1, "VAT 10%", "Branch CC")))
	f.ledger.Seed(vatGL("GL-1", "EXP-1", "Tax CC"))
	run := f.batchRun(t)

	summary, err := f.corrector.Run(context.Background(), run.Name)
	require.NoError(t, err)
	require.Equal(t, correction.Summary{Processed: 1, Updated: 1}, summary)

	line := f.gl("GL-1")
	require.Equal(t, "Branch CC", line.CostCenter)
	require.Equal(t, "Cost center updated to Branch CC on 2024-05-01 10:00:00.000000 (Original: Tax CC)", line.Remarks)

	stored, err := f.runs.Get(context.Background(), run.Name)
	require.NoError(t, err)
	require.Equal(t, "Processed 1 Expenses Entry documents.\nUpdated 1 GL entries.\nSkipped 0 entries.", stored.UpdateStatus)
	require.Equal(t, []correction.LogDetail{{EntryName: "EXP-1", RowIdx: 1, Message: "Updated GL entry GL-1 to cost center Branch CC (was Tax CC)"}}, stored.Log)
}

func TestRunFallsBackToDefaultCostCenter(t *testing.T) {
	doc := entry("EXP-1", vatLine(1, "VAT 10%", ""))
	doc.DefaultCostCenter = "Main CC"
	f := newFixture(groupSet{}, doc)
	f.ledger.Seed(vatGL("GL-1", "EXP-1", "Tax CC"))

	_, err := f.corrector.Run(context.Background(), f.batchRun(t).Name)
	require.NoError(t, err)
	require.Equal(t, "Main CC", f.gl("GL-1").CostCenter)
}

func TestRunSkipReasons(t *testing.T) {
	noVAT := vatLine(1, "", "Branch CC")
	zeroVAT := vatLine(2, "VAT 10%", "Branch CC")
	zeroVAT.VATAmount = decimal.Zero
	f := newFixture(groupSet{"Group CC": true}, entry("EXP-1",
		noVAT,
		zeroVAT,
		vatLine(3, "Empty", "Branch CC"),
		vatLine(4, "VAT 10%", ""),
		vatLine(5, "VAT 10%", "Group CC"),
		vatLine(6, "Other VAT", "Branch CC"),
		vatLine(7, "VAT 10%", "Tax CC"),
	))
	f.ledger.Seed(vatGL("GL-1", "EXP-1", "Tax CC"))
	run := f.batchRun(t)

	summary, err := f.corrector.Run(context.Background(), run.Name)
	require.NoError(t, err)
	require.Equal(t, correction.Summary{Processed: 1, Skipped: 7}, summary)

	stored, err := f.runs.Get(context.Background(), run.Name)
	require.NoError(t, err)
	var messages []string
	for _, d := range stored.Log {
		messages = append(messages, d.Message)
	}
	require.Equal(t, []string{
		"Skipped (No VAT template or amount)",
		"Skipped (No VAT template or amount)",
		"Skipped (Invalid VAT template)",
		"Skipped (No cost center set)",
		"Skipped (Cost center Group CC is a group)",
		"Skipped (No VAT GL entry found)",
		"Skipped (GL entry GL-1 already has cost center Tax CC)",
	}, messages)
	require.Equal(t, "Tax CC", f.gl("GL-1").CostCenter)
}

func TestRunSkipsCancelledLedgerLines(t *testing.T) {
	f := newFixture(groupSet{}, entry("EXP-1", vatLine(1, "VAT 10%", "Branch CC")))
	cancelled := vatGL("GL-1", "EXP-1", "Tax CC")
	cancelled.IsCancelled = true
	f.ledger.Seed(cancelled)

	summary, err := f.corrector.Run(context.Background(), f.batchRun(t).Name)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, "Tax CC", f.gl("GL-1").CostCenter)
}

func TestSingleModeHonoursTemplateCostCenter(t *testing.T) {
	doc := entry("EXP-1", vatLine(1, "VAT 10%", "Tax CC"))

	batch := newFixture(groupSet{}, doc)
	batch.ledger.Seed(vatGL("GL-1", "EXP-1", "Old CC"))
	_, err := batch.corrector.Run(context.Background(), batch.batchRun(t).Name)
	require.NoError(t, err)
	require.Equal(t, "Tax CC", batch.gl("GL-1").CostCenter)

	single := newFixture(groupSet{}, doc)
	single.ledger.Seed(vatGL("GL-1", "EXP-1", "Old CC"))
	handle, err := single.corrector.EnqueueSingle(context.Background(), "EXP-1")
	require.NoError(t, err)
	require.Equal(t, "job-2", handle.JobID)
	call := single.enqueuer.calls[0]

	summary, err := single.corrector.RunSingle(context.Background(), call.entry, call.run)
	require.NoError(t, err)
	require.Equal(t, correction.Summary{Processed: 1, Skipped: 1}, summary)
	require.Equal(t, "Old CC", single.gl("GL-1").CostCenter)

	stored, err := single.runs.Get(context.Background(), call.run)
	require.NoError(t, err)
	require.Equal(t, "Processed 1 Expenses Entry document.\nUpdated 0 GL entries.\nSkipped 1 entries.", stored.UpdateStatus)
	require.Equal(t, "Skipped (VAT template cost center Tax CC matches target cost center)", stored.Log[0].Message)
}

func TestRunRollsBackFailedDocument(t *testing.T) {
	f := newFixture(groupSet{},
		entry("EXP-1", vatLine(1, "VAT 10%", "Branch CC")),
		entry("EXP-2", vatLine(1, "Missing", "Branch CC")),
	)
	f.ledger.Seed(vatGL("GL-1", "EXP-1", "Tax CC"))
	f.ledger.FailUpdate = ledgertest.ErrInjected
	run := f.batchRun(t)

	summary, err := f.corrector.Run(context.Background(), run.Name)
	require.NoError(t, err)
	require.Equal(t, correction.Summary{Processed: 2}, summary)
	require.Equal(t, "Tax CC", f.gl("GL-1").CostCenter)

	stored, err := f.runs.Get(context.Background(), run.Name)
	require.NoError(t, err)
	require.Equal(t, []correction.LogDetail{
		{EntryName: "EXP-1", RowIdx: 0, Message: "Error processing: " + ledgertest.ErrInjected.Error()},
		{EntryName: "EXP-2", RowIdx: 0, Message: "Error processing: vat template Missing: " + taxes.ErrTemplateNotFound.Error()},
	}, stored.Log)
}

func TestRunIgnoresDocumentsOutsideRange(t *testing.T) {
	late := entry("EXP-2", vatLine(1, "VAT 10%", "Branch CC"))
	late.PostingDate = postingDate.AddDate(0, 1, 0)
	draft := entry("EXP-3", vatLine(1, "VAT 10%", "Branch CC"))
	draft.Status = expenses.StatusDraft
	f := newFixture(groupSet{}, entry("EXP-1", vatLine(1, "VAT 10%", "Branch CC")), late, draft)

	summary, err := f.corrector.Run(context.Background(), f.batchRun(t).Name)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)

	n, err := f.corrector.CountEligible(context.Background(), postingDate, postingDate.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(groupSet{}, entry("EXP-1"))
	ctx := context.Background()
	noDates, err := f.corrector.CreateRun(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	reversed, err := f.corrector.CreateRun(ctx, postingDate, postingDate.AddDate(0, 0, -1))
	require.NoError(t, err)

	cases := []struct {
		name string
		run  string
		msg  string
	}{
		{"empty name", "", "Document name is required."},
		{"unsaved", "new-expenses-entry-cost-center-update-1", "Please save the Expenses Entry Cost Center Update document before running the update. This ensures the document is properly named and saved for tracking purposes."},
		{"missing dates", noDates.Name, "From Date and To Date are required in the document."},
		{"reversed range", reversed.Name, "From Date cannot be later than To Date."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.corrector.Enqueue(ctx, tc.run)
			require.ErrorIs(t, err, correction.ErrInvalidRequest)
			require.EqualError(t, err, tc.msg)
		})
	}
	require.Empty(t, f.enqueuer.calls)

	_, err = f.corrector.Enqueue(ctx, "CCU-MISSING")
	require.ErrorIs(t, err, correction.ErrRunNotFound)

	handle, err := f.corrector.Enqueue(ctx, f.batchRun(t).Name)
	require.NoError(t, err)
	require.Equal(t, appshared.JobHandle{JobID: "job-1", Queue: "long"}, handle)
}

func TestEnqueueSingleRequiresSubmittedEntry(t *testing.T) {
	draft := entry("EXP-D")
	draft.Status = expenses.StatusDraft
	f := newFixture(groupSet{}, draft, entry("EXP-1"))
	ctx := context.Background()

	_, err := f.corrector.EnqueueSingle(ctx, "")
	require.EqualError(t, err, "Expenses Entry name is required.")
	_, err = f.corrector.EnqueueSingle(ctx, "EXP-D")
	require.EqualError(t, err, "Expenses Entry must be submitted to update cost centers.")
	_, err = f.corrector.EnqueueSingle(ctx, "EXP-404")
	require.ErrorIs(t, err, expenses.ErrNotFound)

	_, err = f.corrector.EnqueueSingle(ctx, "EXP-1")
	require.NoError(t, err)
	require.Len(t, f.enqueuer.calls, 1)
	run, err := f.runs.Get(ctx, f.enqueuer.calls[0].run)
	require.NoError(t, err)
	require.Equal(t, "EXP-1", run.ExpenseEntry)
	require.Equal(t, correction.ModeSingle, run.Mode())
	require.True(t, run.FromDate.Equal(postingDate))
	require.True(t, run.ToDate.Equal(postingDate))
}

func TestExportLog(t *testing.T) {
	f := newFixture(groupSet{}, entry("EXP-1", vatLine(1, "VAT 10%", "Branch CC")))
	f.ledger.Seed(vatGL("GL-1", "EXP-1", "Tax CC"))
	run := f.batchRun(t)
	_, err := f.corrector.Run(context.Background(), run.Name)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.corrector.ExportLog(context.Background(), run.Name, &buf))
	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Update Log")
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"Expenses Entry", "Row", "Message"},
		{"EXP-1", "1", "Updated GL entry GL-1 to cost center Branch CC (was Tax CC)"},
	}, rows)
}
