package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherTypeExpensesEntry tags every ledger line produced for an Expenses Entry.
const VoucherTypeExpensesEntry = "Expenses Entry"

// Flag values stored on every generated line.
const (
	FlagNo  = "No"
	FlagYes = "Yes"
)

// Voucher identifies the source document owning a batch of ledger lines.
type Voucher struct {
	Type string
	No   string
}

// ExpensesEntryVoucher builds the voucher for an Expenses Entry name.
func ExpensesEntryVoucher(name string) Voucher {
	return Voucher{Type: VoucherTypeExpensesEntry, No: name}
}

func (v Voucher) String() string {
	return v.Type + " " + v.No
}

// Entry is one submitted GL line. Only CostCenter and Remarks change after
// submission.
type Entry struct {
	Name                    string          `json:"name"`
	PostingDate             time.Time       `json:"posting_date"`
	Account                 string          `json:"account"`
	CostCenter              string          `json:"cost_center"`
	Project                 string          `json:"project,omitempty"`
	Debit                   decimal.Decimal `json:"debit"`
	Credit                  decimal.Decimal `json:"credit"`
	DebitInAccountCurrency  decimal.Decimal `json:"debit_in_account_currency"`
	CreditInAccountCurrency decimal.Decimal `json:"credit_in_account_currency"`
	Against                 string          `json:"against"`
	VoucherType             string          `json:"voucher_type"`
	VoucherNo               string          `json:"voucher_no"`
	IsOpening               string          `json:"is_opening"`
	IsAdvance               string          `json:"is_advance"`
	FiscalYear              string          `json:"fiscal_year"`
	Company                 string          `json:"company"`
	IsCancelled             bool            `json:"is_cancelled"`
	ToRename                bool            `json:"to_rename"`
	Remarks                 string          `json:"remarks"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	UpdatedBy               string          `json:"updated_by,omitempty"`
}

// Voucher returns the voucher pair of the line.
func (e Entry) Voucher() Voucher {
	return Voucher{Type: e.VoucherType, No: e.VoucherNo}
}

// Imbalance is a voucher whose lines, cancelled ones included, do not net to
// zero.
type Imbalance struct {
	VoucherNo string          `json:"voucher_no"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}
