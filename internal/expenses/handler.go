package expenses

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expensepay/internal/accounting/shared"
	"github.com/odyssey-erp/expensepay/internal/masterdata/taxes"
	"github.com/odyssey-erp/expensepay/internal/platform/httpx"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// Handler exposes the Expenses Entry lifecycle over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type lineRequest struct {
	PaidTo           string           `json:"account_paid_to" validate:"required"`
	Amount           decimal.Decimal  `json:"amount"`
	AmountWithoutVAT *decimal.Decimal `json:"amount_without_vat"`
	VATAmount        *decimal.Decimal `json:"vat_amount"`
	VATTemplate      string           `json:"vat_template"`
	CostCenter       string           `json:"cost_center"`
	Project          string           `json:"project"`
	Remarks          string           `json:"remarks" validate:"max=1000"`
}

type createRequest struct {
	Name              string          `json:"name" validate:"omitempty,max=140"`
	PostingDate       string          `json:"posting_date" validate:"required,datetime=2006-01-02"`
	Company           string          `json:"company" validate:"required"`
	PaidFrom          string          `json:"account_paid_from" validate:"required"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	DefaultCostCenter string          `json:"default_cost_center"`
	Remarks           string          `json:"remarks" validate:"max=1000"`
	Lines             []lineRequest   `json:"expenses" validate:"required,min=1,dive"`
}

type lifecycleResponse struct {
	Entry         *Entry                   `json:"entry,omitempty"`
	Notifications []appshared.Notification `json:"notifications"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.Tag(httpx.ErrValidation, err))
		return
	}
	postingDate, _ := time.Parse(time.DateOnly, req.PostingDate)
	in := CreateInput{
		Name:              req.Name,
		PostingDate:       postingDate,
		Company:           req.Company,
		PaidFrom:          req.PaidFrom,
		PaidAmount:        req.PaidAmount,
		DefaultCostCenter: req.DefaultCostCenter,
		Remarks:           req.Remarks,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput(line))
	}
	entry, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	sink := &appshared.Recorder{}
	entry, err := h.service.Submit(r.Context(), chi.URLParam(r, "name"), r.Header.Get("Idempotency-Key"), sink)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Entry: &entry, Notifications: sink.Items()})
}

func (h *Handler) postGL(w http.ResponseWriter, r *http.Request) {
	sink := &appshared.Recorder{}
	if err := h.service.PostGL(r.Context(), chi.URLParam(r, "name"), sink); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Notifications: sink.Items()})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	sink := &appshared.Recorder{}
	entry, err := h.service.Cancel(r.Context(), chi.URLParam(r, "name"), sink)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Entry: &entry, Notifications: sink.Items()})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	sink := &appshared.Recorder{}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "name"), sink); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Notifications: sink.Items()})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		err = httpx.Tag(httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicate), errors.Is(err, appshared.ErrIdempotencyConflict):
		err = httpx.Tag(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotSubmitted):
		err = httpx.Tag(httpx.ErrConflict, err)
	case errors.Is(err, shared.ErrInvalidAccount), errors.Is(err, ErrPaidAmountMismatch),
		errors.Is(err, shared.ErrUnbalanced), errors.Is(err, taxes.ErrTemplateNotFound):
		err = httpx.Tag(httpx.ErrUnprocessable, err)
	case errors.Is(err, ErrIncomplete):
		err = httpx.Tag(httpx.ErrValidation, err)
	default:
		h.logger.Error("expenses request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
