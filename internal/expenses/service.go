package expenses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

const idempotencyModule = "expenses.submit"

// GLHooks posts, reverses and removes ledger lines for a document.
type GLHooks interface {
	CreateGLEntries(ctx context.Context, entry Entry, sink appshared.Notifier) error
	CancelGLEntries(ctx context.Context, entry Entry, sink appshared.Notifier) error
	DeleteGLEntries(ctx context.Context, entry Entry, sink appshared.Notifier) error
}

// IdempotencyStore deduplicates submit requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service drives the document lifecycle and calls the GL hooks on each
// transition.
type Service struct {
	repo        Repository
	validator   *AccountValidator
	hooks       GLHooks
	idempotency IdempotencyStore
	logger      *slog.Logger
}

func NewService(repo Repository, validator *AccountValidator, hooks GLHooks, idempotency IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: validator, hooks: hooks, idempotency: idempotency, logger: logger}
}

// LineInput describes one expense row of a new document. Leaving both split
// amounts nil stores a legacy line.
type LineInput struct {
	PaidTo           string
	Amount           decimal.Decimal
	AmountWithoutVAT *decimal.Decimal
	VATAmount        *decimal.Decimal
	VATTemplate      string
	CostCenter       string
	Project          string
	Remarks          string
}

// CreateInput groups fields required to save a draft.
type CreateInput struct {
	Name              string
	PostingDate       time.Time
	Company           string
	PaidFrom          string
	PaidAmount        decimal.Decimal
	DefaultCostCenter string
	Remarks           string
	Lines             []LineInput
}

// Create validates and stores a draft document.
func (s *Service) Create(ctx context.Context, in CreateInput) (Entry, error) {
	entry := Entry{
		Name:              strings.TrimSpace(in.Name),
		PostingDate:       in.PostingDate,
		Company:           in.Company,
		PaidFrom:          in.PaidFrom,
		PaidAmount:        in.PaidAmount,
		DefaultCostCenter: in.DefaultCostCenter,
		Remarks:           in.Remarks,
		Status:            StatusDraft,
		CreatedBy:         appshared.ActorID(ctx),
	}
	if entry.Unsaved() {
		entry.Name = "EXP-" + strings.ToUpper(uuid.NewString()[:8])
	}
	for idx, li := range in.Lines {
		withoutVAT := optional(li.AmountWithoutVAT)
		vat := optional(li.VATAmount)
		entry.Lines = append(entry.Lines, Line{
			Idx:              idx + 1,
			PaidTo:           li.PaidTo,
			Amount:           li.Amount,
			AmountWithoutVAT: withoutVAT.Decimal,
			VATAmount:        vat.Decimal,
			VATTemplate:      li.VATTemplate,
			CostCenter:       li.CostCenter,
			Project:          li.Project,
			Remarks:          li.Remarks,
			Schema:           ResolveSchema(withoutVAT, vat),
		})
	}
	if err := ValidateRequired(entry); err != nil {
		return Entry{}, err
	}
	if err := ValidateAmounts(entry); err != nil {
		return Entry{}, err
	}
	if err := s.validator.Validate(ctx, entry, ValidateOptions{SkipMissingTemplates: true}); err != nil {
		return Entry{}, err
	}
	saved, err := s.repo.Create(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	s.logger.Info("expenses entry saved", slog.String("name", saved.Name), slog.Int("lines", len(saved.Lines)))
	return saved, nil
}

func optional(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// Get loads a document with its lines.
func (s *Service) Get(ctx context.Context, name string) (Entry, error) {
	return s.repo.Get(ctx, name)
}

// Submit moves a draft to submitted and posts its ledger lines. Validation
// failures keep the draft; a ledger write failure leaves the document
// submitted with a red notification, as lines may already be written.
func (s *Service) Submit(ctx context.Context, name, idempotencyKey string, sink appshared.Notifier) (Entry, error) {
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return Entry{}, err
		}
	}
	entry, err := s.submit(ctx, name, sink)
	if err != nil && idempotencyKey != "" && s.idempotency != nil {
		if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", delErr))
		}
	}
	return entry, err
}

func (s *Service) submit(ctx context.Context, name string, sink appshared.Notifier) (Entry, error) {
	entry, err := s.repo.Get(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusDraft {
		return Entry{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, entry.Name, entry.Status)
	}
	if err := ValidateAmounts(entry); err != nil {
		return Entry{}, err
	}
	if err := s.repo.SetStatus(ctx, entry.Name, StatusDraft, StatusSubmitted); err != nil {
		return Entry{}, err
	}
	entry.Status = StatusSubmitted
	if err := s.hooks.CreateGLEntries(ctx, entry, sink); err != nil {
		var perr *shared.PostingError
		if errors.As(err, &perr) {
			s.logger.Error("gl posting incomplete after submit", slog.String("name", entry.Name), slog.Any("error", err))
			return entry, nil
		}
		if revertErr := s.repo.SetStatus(ctx, entry.Name, StatusSubmitted, StatusDraft); revertErr != nil {
			return Entry{}, errors.Join(err, revertErr)
		}
		return Entry{}, err
	}
	return entry, nil
}

// Cancel moves a submitted document to cancelled and reverses its ledger
// lines. Account validation failures never block the cancellation.
func (s *Service) Cancel(ctx context.Context, name string, sink appshared.Notifier) (Entry, error) {
	entry, err := s.repo.Get(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusSubmitted {
		return Entry{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, entry.Name, entry.Status)
	}
	if err := s.repo.SetStatus(ctx, entry.Name, StatusSubmitted, StatusCancelled); err != nil {
		return Entry{}, err
	}
	entry.Status = StatusCancelled
	if err := s.hooks.CancelGLEntries(ctx, entry, sink); err != nil {
		if revertErr := s.repo.SetStatus(ctx, entry.Name, StatusCancelled, StatusSubmitted); revertErr != nil {
			return Entry{}, errors.Join(err, revertErr)
		}
		return Entry{}, err
	}
	return entry, nil
}

// Delete removes a draft or cancelled document after deleting every ledger
// line of its voucher.
func (s *Service) Delete(ctx context.Context, name string, sink appshared.Notifier) error {
	entry, err := s.repo.Get(ctx, name)
	if err != nil {
		return err
	}
	if entry.Status == StatusSubmitted {
		return fmt.Errorf("%w: cancel %s before deleting it", ErrInvalidTransition, entry.Name)
	}
	if err := s.hooks.DeleteGLEntries(ctx, entry, sink); err != nil {
		return err
	}
	return s.repo.Delete(ctx, entry.Name)
}

// PostGL runs the posting hook for an already submitted document. Callers use
// it to repost after the ledger lines were removed.
func (s *Service) PostGL(ctx context.Context, name string, sink appshared.Notifier) error {
	entry, err := s.repo.Get(ctx, name)
	if err != nil {
		return err
	}
	if !entry.Submitted() {
		return fmt.Errorf("%w: %s", ErrNotSubmitted, entry.Name)
	}
	return s.hooks.CreateGLEntries(ctx, entry, sink)
}
