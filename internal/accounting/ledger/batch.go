package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

// Totals sums the debit and credit sides of lines.
func Totals(lines []Entry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// ValidateBatch ensures a posting batch is non-empty, single-voucher, one-sided
// per line and balanced to two decimals.
func ValidateBatch(lines []Entry) error {
	if len(lines) == 0 {
		return shared.ErrNoLines
	}
	voucher := lines[0].Voucher()
	if voucher.No == "" {
		return shared.ErrVoucherRequired
	}
	for idx, line := range lines {
		if line.Voucher() != voucher {
			return fmt.Errorf("accounting: line %d belongs to %s, batch is %s", idx, line.Voucher(), voucher)
		}
		if line.Account == "" {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
	}
	debit, credit := Totals(lines)
	if !debit.Round(2).Equal(credit.Round(2)) {
		return fmt.Errorf("%w: debit %s, credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}
