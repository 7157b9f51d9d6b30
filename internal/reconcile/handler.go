package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/expensepay/internal/platform/httpx"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

// Enqueuer schedules the sync as a background job.
type Enqueuer interface {
	EnqueueGLSync(ctx context.Context) (appshared.JobHandle, error)
}

// Handler exposes the scanner over HTTP.
type Handler struct {
	logger   *slog.Logger
	scanner  *Scanner
	enqueuer Enqueuer
}

// NewHandler builds Handler instance. enqueuer may be nil, in which case only
// inline syncs are offered.
func NewHandler(logger *slog.Logger, scanner *Scanner, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, scanner: scanner, enqueuer: enqueuer}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconcile", func(r chi.Router) {
		r.Post("/sync", h.sync)
		r.Get("/miscalculated", h.miscalculated)
	})
}

type syncResponse struct {
	Posted        []string                 `json:"posted"`
	Errors        []string                 `json:"errors,omitempty"`
	Message       string                   `json:"message,omitempty"`
	Notifications []appshared.Notification `json:"notifications"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" && h.enqueuer != nil {
		handle, err := h.enqueuer.EnqueueGLSync(r.Context())
		if err != nil {
			h.logger.Error("enqueue gl sync", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, handle)
		return
	}
	sink := &appshared.Recorder{}
	posted, err := h.scanner.Sync(r.Context(), sink)
	if posted == nil {
		posted = []string{}
	}
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		httpx.JSON(w, http.StatusUnprocessableEntity, syncResponse{
			Posted:        posted,
			Errors:        verrs.Messages,
			Message:       verrs.Error(),
			Notifications: sink.Items(),
		})
		return
	}
	if err != nil {
		h.logger.Error("gl sync failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, syncResponse{Posted: posted, Notifications: sink.Items()})
}

func (h *Handler) miscalculated(w http.ResponseWriter, r *http.Request) {
	names, err := h.scanner.FindMiscalculated(r.Context())
	if err != nil {
		h.logger.Error("find miscalculated amounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": names})
}
