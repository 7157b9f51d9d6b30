package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: ledger lines must balance")
	// ErrNoLines indicates an empty posting batch.
	ErrNoLines = errors.New("accounting: posting requires at least one line")
	// ErrInvalidAccount indicates a group account used where a ledger account is required.
	ErrInvalidAccount = errors.New("accounting: invalid account")
	// ErrGroupAccount is reported by the write layer when a persisted line targets a group account.
	ErrGroupAccount = errors.New("accounting: group accounts cannot be used in transactions")
	// ErrFiscalYearNotFound indicates no fiscal year could be resolved.
	ErrFiscalYearNotFound = errors.New("accounting: fiscal year not found")
	// ErrEntryNotFound indicates a missing ledger line.
	ErrEntryNotFound = errors.New("accounting: gl entry not found")
	// ErrVoucherRequired indicates an empty voucher number.
	ErrVoucherRequired = errors.New("accounting: voucher number required")
)

// AccountError reports a group account referenced by a document field.
type AccountError struct {
	Label   string
	Account string
	DocName string
}

func (e *AccountError) Error() string {
	msg := fmt.Sprintf("%s '%s' is a Group Account. Group accounts cannot be used in transactions. Please select a Ledger account", e.Label, e.Account)
	if e.DocName != "" {
		return msg + " for " + e.DocName + "."
	}
	return msg + "."
}

// Is lets errors.Is match ErrInvalidAccount.
func (e *AccountError) Is(target error) bool {
	return target == ErrInvalidAccount
}

// ErrorKind classifies ledger write failures.
type ErrorKind int

const (
	// KindWrite covers any persistence failure without a more specific kind.
	KindWrite ErrorKind = iota
	// KindGroupAccount marks a write rejected because the line targets a group account.
	KindGroupAccount
)

func (k ErrorKind) String() string {
	switch k {
	case KindGroupAccount:
		return "group_account"
	default:
		return "write"
	}
}

// PostingError wraps a ledger write failure with its kind.
type PostingError struct {
	Kind    ErrorKind
	Voucher string
	Account string
	Err     error
}

func (e *PostingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("accounting: %s failure posting %s", e.Kind, e.Voucher)
	}
	return fmt.Sprintf("accounting: posting %s: %v", e.Voucher, e.Err)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrGroupAccount for group-account failures.
func (e *PostingError) Is(target error) bool {
	return target == ErrGroupAccount && e.Kind == KindGroupAccount
}

// KindOf extracts the write kind from err, defaulting to KindWrite.
func KindOf(err error) ErrorKind {
	var perr *PostingError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, ErrGroupAccount) {
		return KindGroupAccount
	}
	return KindWrite
}
