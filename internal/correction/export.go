package correction

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const logSheet = "Update Log"

// ExportLog writes the run's status and log as an XLSX workbook.
func (c *Corrector) ExportLog(ctx context.Context, runName string, w io.Writer) error {
	run, err := c.deps.Runs.Get(ctx, runName)
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", logSheet); err != nil {
		return err
	}

	header := []any{"Expenses Entry", "Row", "Message"}
	if err := f.SetSheetRow(logSheet, "A1", &header); err != nil {
		return err
	}
	for i, d := range run.Log {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{d.EntryName, d.RowIdx, d.Message}
		if err := f.SetSheetRow(logSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(logSheet, "A", "A", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(logSheet, "C", "C", 80); err != nil {
		return err
	}

	if _, err := f.NewSheet("Summary"); err != nil {
		return err
	}
	rows := [][]any{
		{"Run", run.Name},
		{"From Date", formatDate(run.FromDate)},
		{"To Date", formatDate(run.ToDate)},
		{"Expenses Entry", run.ExpenseEntry},
		{"Status", run.UpdateStatus},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Summary", cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
