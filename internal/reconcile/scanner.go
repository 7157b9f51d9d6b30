// Package reconcile heals submitted Expenses Entry documents and posts the
// ledger lines missing for them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/expensepay/internal/accounting/ledger"
	"github.com/odyssey-erp/expensepay/internal/expenses"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// ErrValidation matches every *ValidationErrors.
var ErrValidation = errors.New("reconcile: validation errors found")

// ValidationErrors collects every problem found during a scan.
type ValidationErrors struct {
	Messages []string
}

func (e *ValidationErrors) Error() string {
	return "The following validation errors were found:\n\n" + strings.Join(e.Messages, "\n")
}

func (e *ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Documents is the slice of the document store the scanner needs.
type Documents interface {
	ListSubmitted(ctx context.Context) ([]expenses.Entry, error)
	SaveAmounts(ctx context.Context, entry expenses.Entry) error
}

// Poster creates the ledger batch for a document.
type Poster interface {
	CreateGLEntries(ctx context.Context, entry expenses.Entry, sink appshared.Notifier) error
}

// LedgerProbe reports whether a voucher has any ledger lines.
type LedgerProbe interface {
	HasAny(ctx context.Context, v ledger.Voucher) (bool, error)
}

// Scanner walks submitted documents.
type Scanner struct {
	docs   Documents
	poster Poster
	ledger LedgerProbe
	logger *slog.Logger
}

func NewScanner(docs Documents, poster Poster, probe LedgerProbe, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{docs: docs, poster: poster, ledger: probe, logger: logger}
}

// Sync heals zero-filled split amounts, checks every line's decomposition and
// posts documents that have no ledger lines at all. It returns the names it
// posted. When anything went wrong the returned error is *ValidationErrors;
// postings made before that are kept.
func (s *Scanner) Sync(ctx context.Context, sink appshared.Notifier) ([]string, error) {
	entries, err := s.docs.ListSubmitted(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list submitted: %w", err)
	}
	s.logger.Info("gl sync started", slog.Int("documents", len(entries)))

	var posted, problems []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return posted, err
		}
		if heal(&entry) {
			if err := s.docs.SaveAmounts(ctx, entry); err != nil {
				s.logger.Error("save healed document", slog.String("name", entry.Name), slog.Any("error", err))
				problems = append(problems, fmt.Sprintf("Error saving document %s: %v", entry.Name, err))
				continue
			}
			s.logger.Info("healed zero-filled amounts", slog.String("name", entry.Name))
		}

		if violations := Violations(entry); len(violations) > 0 {
			s.logger.Info("amount decomposition mismatch, skipping posting", slog.String("name", entry.Name), slog.Int("rows", len(violations)))
			problems = append(problems, violations...)
			continue
		}

		exists, err := s.ledger.HasAny(ctx, ledger.ExpensesEntryVoucher(entry.Name))
		if err != nil {
			problems = append(problems, fmt.Sprintf("Error creating GL Entries for document %s: %v", entry.Name, err))
			continue
		}
		if exists {
			continue
		}
		if err := s.poster.CreateGLEntries(ctx, entry, sink); err != nil {
			s.logger.Error("create missing gl entries", slog.String("name", entry.Name), slog.Any("error", err))
			problems = append(problems, fmt.Sprintf("Error creating GL Entries for document %s: %v", entry.Name, err))
			continue
		}
		posted = append(posted, entry.Name)
	}

	s.logger.Info("gl sync finished", slog.Int("posted", len(posted)), slog.Int("problems", len(problems)))
	if len(problems) > 0 {
		return posted, &ValidationErrors{Messages: problems}
	}
	return posted, nil
}

// FindMiscalculated lists submitted documents with at least one line whose
// amount does not equal its split.
func (s *Scanner) FindMiscalculated(ctx context.Context) ([]string, error) {
	entries, err := s.docs.ListSubmitted(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list submitted: %w", err)
	}
	names := []string{}
	for _, entry := range entries {
		for _, line := range entry.Lines {
			if !line.Decomposes() {
				names = append(names, entry.Name)
				break
			}
		}
	}
	return names, nil
}

// Violations describes every line of entry whose amount does not decompose.
func Violations(entry expenses.Entry) []string {
	var out []string
	for _, line := range entry.Lines {
		if line.Decomposes() {
			continue
		}
		out = append(out, fmt.Sprintf("Doc %s, Row #%d: Amount (%s) does not equal Amount Without VAT (%s) + VAT Amount (%s)",
			entry.Name, line.Idx, line.Amount.StringFixed(2), line.AmountWithoutVAT.StringFixed(2), line.VATAmount.StringFixed(2)))
	}
	return out
}

// heal copies Amount into AmountWithoutVAT on zero-filled lines and reports
// whether anything changed.
func heal(entry *expenses.Entry) bool {
	changed := false
	for i := range entry.Lines {
		line := &entry.Lines[i]
		if !line.NeedsHealing() {
			continue
		}
		line.AmountWithoutVAT = line.Amount
		line.Schema = expenses.SchemaCurrent
		changed = true
	}
	return changed
}
