package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"slotbook/internal/core"
	"slotbook/internal/scheduling"
	"slotbook/internal/types"
)

// defaultBookingListLimit bounds list responses when the client does not ask
// for a specific page size.
const defaultBookingListLimit = 50

// maxBookingListLimit is the hard cap on page size.
const maxBookingListLimit = 200

// BookingEngine is the transactional reservation engine.
type BookingEngine interface {
	Reserve(ctx context.Context, params scheduling.ReserveParams, now time.Time) (*types.Booking, error)
	Confirm(ctx context.Context, orgID, bookingID string) (*types.Booking, error)
	Cancel(ctx context.Context, orgID, bookingID string) (*types.Booking, error)
}

// BookingRepo provides read access to bookings for this handler.
type BookingRepo interface {
	GetByID(ctx context.Context, id, orgID string) (*types.Booking, error)
	ListByOrg(ctx context.Context, orgID, requesterID string, limit int) ([]types.Booking, error)
}

// CreateBookingRequest is the request body for POST /v1/bookings.
type CreateBookingRequest struct {
	SlotID      string `json:"slot_id" validate:"required"`
	RequesterID string `json:"requester_id" validate:"required,max=200"`
}

// BookingHandler manages booking creation and lifecycle transitions.
type BookingHandler struct {
	engine    BookingEngine
	repo      BookingRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(engine BookingEngine, repo BookingRepo, v *core.Validator, l *slog.Logger) *BookingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BookingHandler{engine: engine, repo: repo, validator: v, logger: l}
}

// RegisterRoutes mounts booking routes on the provided chi.Router.
func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/confirm", h.Confirm)
			r.Post("/cancel", h.Cancel)
		})
	})
}

// Create handles POST /v1/bookings.
//
// The heavy lifting (capacity, overlap, lead time, plan quota) happens inside
// the engine's reservation transaction; the handler only shapes the request.
// Retryable conflicts are surfaced with a Retry-After hint.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateBookingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	params := scheduling.ReserveParams{
		OrganizationID: orgID,
		SlotID:         req.SlotID,
		RequesterID:    req.RequesterID,
	}

	booking, err := h.engine.Reserve(r.Context(), params, time.Now().UTC())
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "booking created",
		"booking_id", booking.ID,
		"slot_id", booking.SlotID,
		"status", string(booking.Status),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: booking})
}

// Get handles GET /v1/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	booking, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: booking})
}

// List handles GET /v1/bookings. Optional query parameters:
//
//	requester_id - filter to a single requester
//	limit        - page size, capped at maxBookingListLimit
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := defaultBookingListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidRange, "limit must be a positive integer", nil))
			return
		}
		limit = parsed
		if limit > maxBookingListLimit {
			limit = maxBookingListLimit
		}
	}

	bookings, err := h.repo.ListByOrg(r.Context(), orgID, r.URL.Query().Get("requester_id"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: bookings})
}

// Confirm handles POST /v1/bookings/{id}/confirm.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Confirm)
}

// Cancel handles POST /v1/bookings/{id}/cancel. Cancelling does not refund
// the plan-period booking quota.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Cancel)
}

func (h *BookingHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, orgID, bookingID string) (*types.Booking, error),
) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	booking, err := op(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: booking})
}
