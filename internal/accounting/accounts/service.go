package accounts

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
)

// GroupLookup is the read-only master data query used by the validator.
type GroupLookup interface {
	IsGroup(ctx context.Context, name string) (bool, error)
}

// Validator rejects group accounts before any ledger line references them.
type Validator struct {
	lookup GroupLookup
}

func NewValidator(lookup GroupLookup) *Validator {
	return &Validator{lookup: lookup}
}

// ValidateLedger fails with *shared.AccountError when account is a group
// account. An empty account is accepted; required-field checks belong to the
// document schema.
func (v *Validator) ValidateLedger(ctx context.Context, account, docName, label string) error {
	if account == "" {
		return nil
	}
	if v == nil || v.lookup == nil {
		return fmt.Errorf("accounts: validator not configured")
	}
	isGroup, err := v.lookup.IsGroup(ctx, account)
	if err != nil {
		return fmt.Errorf("accounts: lookup %s: %w", account, err)
	}
	if isGroup {
		if label == "" {
			label = "Account"
		}
		return &shared.AccountError{Label: label, Account: account, DocName: docName}
	}
	return nil
}
