package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// DocumentValidator runs the ledger-account pass over a whole document.
type DocumentValidator interface {
	Validate(ctx context.Context, entry expenses.Entry, opts expenses.ValidateOptions) error
}

// FiscalYearResolver picks the fiscal year stamped on generated lines.
type FiscalYearResolver interface {
	DefaultFiscalYear(ctx context.Context, userID string, date time.Time) (string, error)
}

// Deps groups the lookups the generators need.
type Deps struct {
	Validator   DocumentValidator
	Templates   expenses.TemplateSource
	FiscalYears FiscalYearResolver
}

// vatLine is a resolved VAT posting for one expense line.
type vatLine struct {
	account    string
	costCenter string
}

// GeneratePosting expands a submitted document into its ledger batch: the
// paid-from credit, then each expense debit followed by its VAT debit. It
// validates every account first and never persists anything.
func GeneratePosting(ctx context.Context, entry expenses.Entry, deps Deps) ([]ledger.Entry, error) {
	if err := deps.Validator.Validate(ctx, entry, expenses.ValidateOptions{}); err != nil {
		return nil, err
	}
	base, err := baseLine(ctx, entry, deps)
	if err != nil {
		return nil, err
	}

	var info strings.Builder
	for _, line := range entry.Lines {
		fmt.Fprintf(&info, "Expense: %s, VAT: %s (%s)\n", line.PaidTo, money(line.VATAmount), line.VATTemplate)
	}
	paidFrom := base
	paidFrom.Account = entry.PaidFrom
	paidFrom.CostCenter = entry.DefaultCostCenter
	setCredit(&paidFrom, entry.PaidAmount)
	paidFrom.Against = strings.Join(entry.PaidToAccounts(), ", ")
	paidFrom.Remarks = fmt.Sprintf("%s\nVAT Info:\n%s", entry.Remarks, info.String())

	lines := []ledger.Entry{paidFrom}
	for _, line := range entry.Lines {
		expense := base
		expense.Account = line.PaidTo
		expense.CostCenter = entry.CostCenterFor(line)
		expense.Project = line.Project
		setDebit(&expense, line.NetAmount())
		expense.Against = entry.PaidFrom
		expense.Remarks = fmt.Sprintf("%s | Amount without VAT: %s | VAT Amount: %s (%s)",
			line.Remarks, money(line.AmountWithoutVAT), money(line.VATAmount), line.VATTemplate)
		lines = append(lines, expense)

		vat, ok, err := resolveVAT(ctx, line, deps.Templates)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		tax := base
		tax.Account = vat.account
		tax.CostCenter = vat.costCenter
		setDebit(&tax, line.VATAmount)
		tax.Against = line.PaidTo
		tax.Remarks = fmt.Sprintf("VAT Amount: %s | VAT Account: %s | Cost Center: %s", money(line.VATAmount), vat.account, vat.costCenter)
		lines = append(lines, tax)
	}
	return lines, nil
}

// resolveVAT returns the VAT posting for a line with a template and a
// positive VAT amount. Templates without rules yield no posting.
func resolveVAT(ctx context.Context, line expenses.Line, templates expenses.TemplateSource) (vatLine, bool, error) {
	if !line.HasVAT() {
		return vatLine{}, false, nil
	}
	tmpl, err := templates.Get(ctx, line.VATTemplate)
	if err != nil {
		return vatLine{}, false, fmt.Errorf("integration: vat template %s: %w", line.VATTemplate, err)
	}
	rule, ok := tmpl.FirstRule()
	if !ok {
		return vatLine{}, false, nil
	}
	return vatLine{account: rule.AccountHead, costCenter: rule.CostCenter}, true, nil
}

func baseLine(ctx context.Context, entry expenses.Entry, deps Deps) (ledger.Entry, error) {
	var fiscalYear string
	if deps.FiscalYears != nil {
		fy, err := deps.FiscalYears.DefaultFiscalYear(ctx, appshared.ActorID(ctx), entry.PostingDate)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("integration: resolve fiscal year: %w", err)
		}
		fiscalYear = fy
	}
	return ledger.Entry{
		PostingDate:             entry.PostingDate,
		Debit:                   decimal.Zero,
		Credit:                  decimal.Zero,
		DebitInAccountCurrency:  decimal.Zero,
		CreditInAccountCurrency: decimal.Zero,
		VoucherType:             ledger.VoucherTypeExpensesEntry,
		VoucherNo:               entry.Name,
		IsOpening:               ledger.FlagNo,
		IsAdvance:               ledger.FlagNo,
		FiscalYear:              fiscalYear,
		Company:                 entry.Company,
	}, nil
}

func setDebit(e *ledger.Entry, amount decimal.Decimal) {
	e.Debit = amount
	e.DebitInAccountCurrency = amount
}

func setCredit(e *ledger.Entry, amount decimal.Decimal) {
	e.Credit = amount
	e.CreditInAccountCurrency = amount
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
