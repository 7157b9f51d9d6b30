package correction

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/expensepay/internal/expenses"
	"github.com/odyssey-erp/expensepay/internal/platform/httpx"
)

// Handler exposes cost-center correction runs.
type Handler struct {
	logger    *slog.Logger
	corrector *Corrector
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, corrector *Corrector) *Handler {
	return &Handler{logger: logger, corrector: corrector, validator: validator.New()}
}

// MountRoutes registers correction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cost-center-updates", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/eligible", h.eligible)
		r.Get("/{name}", h.show)
		r.Post("/{name}/run", h.run)
		r.Get("/{name}/log.xlsx", h.export)
	})
	r.Post("/expenses-entries/{name}/cost-centers/update", h.runSingle)
}

type createRunRequest struct {
	FromDate string `json:"from_date" validate:"omitempty,datetime=2006-01-02"`
	ToDate   string `json:"to_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.Tag(httpx.ErrValidation, err))
		return
	}
	run, err := h.corrector.CreateRun(r.Context(), parseDate(req.FromDate), parseDate(req.ToDate))
	if err != nil {
		h.fail(w, "create run", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) eligible(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := h.corrector.CountEligible(r.Context(), parseDate(q.Get("from")), parseDate(q.Get("to")))
	if err != nil {
		h.fail(w, "count eligible", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	run, err := h.corrector.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "get run", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	handle, err := h.corrector.Enqueue(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "enqueue run", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, handle)
}

func (h *Handler) runSingle(w http.ResponseWriter, r *http.Request) {
	handle, err := h.corrector.EnqueueSingle(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, "enqueue single run", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, handle)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.corrector.Get(r.Context(), name); err != nil {
		h.fail(w, "export run log", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+name+"-log.xlsx")
	if err := h.corrector.ExportLog(r.Context(), name, w); err != nil {
		h.logger.Error("export run log", slog.String("run", name), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, expenses.ErrNotFound):
		err = httpx.Tag(httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidRequest):
		err = httpx.Tag(httpx.ErrUnprocessable, err)
	case errors.Is(err, ErrDuplicateRun):
		err = httpx.Tag(httpx.ErrDuplicate, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseDate(v string) time.Time {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
