package expenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
)

var (
	// ErrPaidAmountMismatch indicates the paid amount does not match the line total.
	ErrPaidAmountMismatch = errors.New("Total Debit amount must be equal to or less than the Paid Amount")
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("expenses: entry not found")
	// ErrNotSubmitted indicates an operation that requires a submitted document.
	ErrNotSubmitted = errors.New("expenses: entry is not submitted")
	// ErrInvalidTransition indicates a lifecycle change not allowed from the current status.
	ErrInvalidTransition = errors.New("expenses: invalid status transition")
	// ErrDuplicate indicates a document with the same name exists.
	ErrDuplicate = errors.New("expenses: entry already exists")
	// ErrIncomplete indicates a missing or malformed required field.
	ErrIncomplete = errors.New("expenses: incomplete document")
)

// LedgerValidator checks one account reference.
type LedgerValidator interface {
	ValidateLedger(ctx context.Context, account, docName, label string) error
}

// TemplateSource resolves VAT templates.
type TemplateSource interface {
	Get(ctx context.Context, name string) (taxes.Template, error)
}

// ValidateOptions tunes the document-wide account pass.
type ValidateOptions struct {
	// SkipMissingTemplates ignores VAT templates that do not exist. Save-time
	// validation sets it; posting surfaces the lookup error.
	SkipMissingTemplates bool
}

// AccountValidator runs the ledger-account check over every account a
// document references.
type AccountValidator struct {
	accounts  LedgerValidator
	templates TemplateSource
}

func NewAccountValidator(accounts LedgerValidator, templates TemplateSource) *AccountValidator {
	return &AccountValidator{accounts: accounts, templates: templates}
}

// Validate stops at the first failing reference.
func (v *AccountValidator) Validate(ctx context.Context, entry Entry, opts ValidateOptions) error {
	if err := v.accounts.ValidateLedger(ctx, entry.PaidFrom, entry.Name, "Account Paid From"); err != nil {
		return err
	}
	for _, line := range entry.Lines {
		if err := v.accounts.ValidateLedger(ctx, line.PaidTo, entry.Name, fmt.Sprintf("Account Paid To (Row #%d)", line.Idx)); err != nil {
			return err
		}
		if line.VATTemplate == "" {
			continue
		}
		tmpl, err := v.templates.Get(ctx, line.VATTemplate)
		if err != nil {
			if opts.SkipMissingTemplates && errors.Is(err, taxes.ErrTemplateNotFound) {
				continue
			}
			return fmt.Errorf("expenses: vat template %s: %w", line.VATTemplate, err)
		}
		rule, ok := tmpl.FirstRule()
		if !ok {
			continue
		}
		label := fmt.Sprintf("VAT Account from template '%s' (Row #%d)", line.VATTemplate, line.Idx)
		if err := v.accounts.ValidateLedger(ctx, rule.AccountHead, entry.Name, label); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAmounts enforces the save-time rule that the paid amount equals the
// total of the line amounts at two decimals.
func ValidateAmounts(entry Entry) error {
	if !entry.PaidAmount.Round(2).Equal(entry.TotalDebit().Round(2)) {
		return fmt.Errorf("%w (paid %s, total debit %s)", ErrPaidAmountMismatch,
			entry.PaidAmount.StringFixed(2), entry.TotalDebit().StringFixed(2))
	}
	return nil
}

// ValidateRequired checks the fields a document needs before it can be saved.
func ValidateRequired(entry Entry) error {
	if entry.PaidFrom == "" {
		return fmt.Errorf("%w: account paid from required", ErrIncomplete)
	}
	if entry.PostingDate.IsZero() {
		return fmt.Errorf("%w: posting date required", ErrIncomplete)
	}
	if entry.Company == "" {
		return fmt.Errorf("%w: company required", ErrIncomplete)
	}
	if len(entry.Lines) == 0 {
		return fmt.Errorf("%w: at least one expense line required", ErrIncomplete)
	}
	for _, line := range entry.Lines {
		if line.PaidTo == "" {
			return fmt.Errorf("%w: row #%d account paid to required", ErrIncomplete, line.Idx)
		}
		if line.Amount.IsNegative() || line.AmountWithoutVAT.IsNegative() || line.VATAmount.IsNegative() {
			return fmt.Errorf("%w: row #%d negative amount", ErrIncomplete, line.Idx)
		}
	}
	return nil
}
