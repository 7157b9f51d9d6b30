package correction

import (
	"fmt"
	"time"
)

// Mode distinguishes date-range runs from runs scoped to one document.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeSingle Mode = "single"
)

// LogDetail is one row of a run's log. RowIdx 0 marks a document-level error.
type LogDetail struct {
	EntryName string `json:"entry_name"`
	RowIdx    int    `json:"row_idx"`
	Message   string `json:"log_message"`
}

// Run is the tracking document of a cost-center correction. Zero dates mean
// the date was never set.
type Run struct {
	Name         string      `json:"name"`
	FromDate     time.Time   `json:"from_date"`
	ToDate       time.Time   `json:"to_date"`
	ExpenseEntry string      `json:"expense_entry,omitempty"`
	UpdateStatus string      `json:"update_status"`
	Log          []LogDetail `json:"log_details"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Mode reports ModeSingle when the run is tied to one Expenses Entry.
func (r Run) Mode() Mode {
	if r.ExpenseEntry != "" {
		return ModeSingle
	}
	return ModeBatch
}

// Summary counts the outcome of a run.
type Summary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// Status renders the summary stored on the tracking document.
func (s Summary) Status(mode Mode) string {
	head := fmt.Sprintf("Processed %d Expenses Entry documents.", s.Processed)
	if mode == ModeSingle {
		head = "Processed 1 Expenses Entry document."
	}
	return fmt.Sprintf("%s\nUpdated %d GL entries.\nSkipped %d entries.", head, s.Updated, s.Skipped)
}
