package expenses

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status mirrors the document lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusCancelled Status = "CANCELLED"
)

// DocStatus returns the numeric docstatus (0 draft, 1 submitted, 2 cancelled).
func (s Status) DocStatus() int {
	switch s {
	case StatusSubmitted:
		return 1
	case StatusCancelled:
		return 2
	default:
		return 0
	}
}

// UnsavedPrefix marks names that have not been persisted yet.
const UnsavedPrefix = "new-"

// Schema tells which amount fields of a line are authoritative.
type Schema int

const (
	// SchemaLegacy lines carry a single Amount.
	SchemaLegacy Schema = iota
	// SchemaCurrent lines split Amount into AmountWithoutVAT and VATAmount.
	SchemaCurrent
)

func (s Schema) String() string {
	if s == SchemaCurrent {
		return "current"
	}
	return "legacy"
}

// ResolveSchema classifies a line from its stored split amounts. A line is
// current only when both split columns are present and the net amount is
// positive.
func ResolveSchema(withoutVAT, vat decimal.NullDecimal) Schema {
	if withoutVAT.Valid && vat.Valid && withoutVAT.Decimal.IsPositive() {
		return SchemaCurrent
	}
	return SchemaLegacy
}

// Line is one expense row of an Expenses Entry.
type Line struct {
	Idx              int             `json:"idx"`
	PaidTo           string          `json:"account_paid_to"`
	Amount           decimal.Decimal `json:"amount"`
	AmountWithoutVAT decimal.Decimal `json:"amount_without_vat"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	VATTemplate      string          `json:"vat_template,omitempty"`
	CostCenter       string          `json:"cost_center,omitempty"`
	Project          string          `json:"project,omitempty"`
	Remarks          string          `json:"remarks,omitempty"`
	Schema           Schema          `json:"-"`
}

// NetAmount is the amount debited to the paid-to account on posting. Lines
// carrying VAT always split, even when nothing is left for the expense
// account.
func (l Line) NetAmount() decimal.Decimal {
	if l.Schema == SchemaCurrent || l.HasVAT() {
		return l.AmountWithoutVAT
	}
	return l.Amount
}

// HasVAT reports whether the line carries a template and a positive VAT amount.
func (l Line) HasVAT() bool {
	return l.VATTemplate != "" && l.VATAmount.IsPositive()
}

// Decomposes reports whether Amount equals AmountWithoutVAT + VATAmount.
func (l Line) Decomposes() bool {
	return l.Amount.Equal(l.AmountWithoutVAT.Add(l.VATAmount))
}

// NeedsHealing reports a zero-filled split on a line with a positive Amount.
func (l Line) NeedsHealing() bool {
	return l.AmountWithoutVAT.IsZero() && l.VATAmount.IsZero() && l.Amount.IsPositive()
}

// Entry is an Expenses Entry document.
type Entry struct {
	Name              string          `json:"name"`
	PostingDate       time.Time       `json:"posting_date"`
	Company           string          `json:"company"`
	PaidFrom          string          `json:"account_paid_from"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	DefaultCostCenter string          `json:"default_cost_center,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`
	Status            Status          `json:"status"`
	Lines             []Line          `json:"expenses"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TotalDebit sums the line amounts.
func (e Entry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// Schema is current only when every line is current.
func (e Entry) Schema() Schema {
	for _, line := range e.Lines {
		if line.Schema != SchemaCurrent {
			return SchemaLegacy
		}
	}
	return SchemaCurrent
}

// CostCenterFor resolves a line's cost center, falling back to the document default.
func (e Entry) CostCenterFor(line Line) string {
	if line.CostCenter != "" {
		return line.CostCenter
	}
	return e.DefaultCostCenter
}

// PaidToAccounts lists the paid-to accounts in line order.
func (e Entry) PaidToAccounts() []string {
	out := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		out = append(out, line.PaidTo)
	}
	return out
}

// Unsaved reports whether the entry has not been persisted yet.
func (e Entry) Unsaved() bool {
	return e.Name == "" || strings.HasPrefix(e.Name, UnsavedPrefix)
}

func (e Entry) Submitted() bool {
	return e.Status == StatusSubmitted
}
