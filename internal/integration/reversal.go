package integration

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/expenses"
)

const cancelledPrefix = "On Cancelled "

// GenerateReversal expands a document into its cancellation batch. Legacy
// documents get one aggregated reversal without VAT lines; current documents
// get the exact mirror of GeneratePosting. Account validation is left to the
// caller.
func GenerateReversal(ctx context.Context, entry expenses.Entry, deps Deps) ([]ledger.Entry, error) {
	base, err := baseLine(ctx, entry, deps)
	if err != nil {
		return nil, err
	}
	base.IsCancelled = true
	if entry.Schema() == expenses.SchemaLegacy {
		return legacyReversal(entry, base), nil
	}

	var info strings.Builder
	for _, line := range entry.Lines {
		fmt.Fprintf(&info, "Cancelled Expense: %s, VAT: %s (%s)\n", line.PaidTo, money(line.VATAmount), line.VATTemplate)
	}
	paidFrom := base
	paidFrom.Account = entry.PaidFrom
	paidFrom.CostCenter = entry.DefaultCostCenter
	setDebit(&paidFrom, entry.PaidAmount)
	paidFrom.Against = strings.Join(entry.PaidToAccounts(), ", ")
	paidFrom.ToRename = true
	paidFrom.Remarks = fmt.Sprintf("%s%s\nVAT Info:\n%s", cancelledPrefix, entry.Remarks, info.String())

	lines := []ledger.Entry{paidFrom}
	for _, line := range entry.Lines {
		expense := base
		expense.Account = line.PaidTo
		expense.CostCenter = entry.CostCenterFor(line)
		expense.Project = line.Project
		setCredit(&expense, line.AmountWithoutVAT)
		expense.Against = entry.PaidFrom
		expense.ToRename = true
		expense.Remarks = fmt.Sprintf("%s%s | \n Amount without VAT: %s \n VAT Amount: %s (%s)",
			cancelledPrefix, line.Remarks, money(line.AmountWithoutVAT), money(line.VATAmount), line.VATTemplate)
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
		setCredit(&tax, line.VATAmount)
		tax.Against = line.PaidTo
		tax.Remarks = fmt.Sprintf("%sVAT Amount: %s | VAT Account: %s | Cost Center: %s",
			cancelledPrefix, money(line.VATAmount), vat.account, vat.costCenter)
		lines = append(lines, tax)
	}
	return lines, nil
}

func legacyReversal(entry expenses.Entry, base ledger.Entry) []ledger.Entry {
	base.ToRename = true
	paidFrom := base
	paidFrom.Account = entry.PaidFrom
	paidFrom.CostCenter = entry.DefaultCostCenter
	setDebit(&paidFrom, entry.PaidAmount)
	paidFrom.Against = strings.Join(entry.PaidToAccounts(), ", ")
	paidFrom.Remarks = cancelledPrefix + entry.Remarks

	lines := []ledger.Entry{paidFrom}
	for _, line := range entry.Lines {
		expense := base
		expense.Account = line.PaidTo
		expense.CostCenter = entry.CostCenterFor(line)
		expense.Project = line.Project
		setCredit(&expense, line.Amount)
		expense.Against = entry.PaidFrom
		expense.Remarks = cancelledPrefix + line.Remarks
		lines = append(lines, expense)
	}
	return lines
}
