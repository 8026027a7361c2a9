package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slotbook/internal/core"
	"slotbook/internal/types"
)

// SvcRepo defines the data access contract for service catalog operations.
// Mirrors the concrete db.ServiceRepository methods used by this handler.
type SvcRepo interface {
	Create(ctx context.Context, svc *types.Service) error
	GetByID(ctx context.Context, id, orgID string) (*types.Service, error)
	List(ctx context.Context, orgID string) ([]types.Service, error)
	Update(ctx context.Context, svc *types.Service) error
	Deactivate(ctx context.Context, id, orgID string) error
}

// SvcPlanGuard checks plan limits before service creation.
type SvcPlanGuard interface {
	CheckServiceCreate(ctx context.Context, orgID string) error
}

// CreateServiceRequest is the request body for POST /v1/services.
type CreateServiceRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gte=5,lte=480"`
}

// UpdateServiceRequest is the request body for PATCH /v1/services/{id}.
// Duration changes apply to future generation runs only; existing slots keep
// the length they were generated with.
type UpdateServiceRequest struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,max=200"`
	DurationMinutes *int    `json:"duration_minutes,omitempty" validate:"omitempty,gte=5,lte=480"`
}

// ServiceHandler manages the per-organization service catalog.
type ServiceHandler struct {
	repo      SvcRepo
	guard     SvcPlanGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(repo SvcRepo, guard SvcPlanGuard, v *core.Validator, l *slog.Logger) *ServiceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ServiceHandler{repo: repo, guard: guard, validator: v, logger: l}
}

// RegisterRoutes mounts service catalog routes on the provided chi.Router.
// Slot generation and availability live in SlotHandler; only the catalog
// itself is managed here.
func (h *ServiceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Post("/deactivate", h.Deactivate)
		})
	})
}

// actorOrg resolves the acting organization from the request context.
// Staff actors operate on their own organization only.
func actorOrg(r *http.Request) (string, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}
	if actor.OrganizationID == "" {
		return "", types.NewAppError(types.ErrCodeNotFoundOrg, "actor has no organization", nil)
	}
	return actor.OrganizationID, nil
}

// Create handles POST /v1/services. The plan's active-service cap is
// checked before the row is written.
func (h *ServiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateServiceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.guard.CheckServiceCreate(r.Context(), orgID); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	svc := &types.Service{
		ID:              "svc_" + uuid.New().String(),
		OrganizationID:  orgID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.Create(r.Context(), svc); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "service created",
		"service_id", svc.ID,
		"organization_id", orgID,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: svc})
}

// List handles GET /v1/services.
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	services, err := h.repo.List(r.Context(), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: services})
}

// Get handles GET /v1/services/{id}.
func (h *ServiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	svc, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: svc})
}

// Update handles PATCH /v1/services/{id}.
func (h *ServiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdateServiceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	svc, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), orgID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		svc.Name = *req.Name
	}
	if req.DurationMinutes != nil {
		svc.DurationMinutes = *req.DurationMinutes
	}

	if err := h.repo.Update(r.Context(), svc); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: svc})
}

// Deactivate handles POST /v1/services/{id}/deactivate. Deactivation stops
// new slot generation and new bookings; existing bookings are untouched.
func (h *ServiceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.repo.Deactivate(r.Context(), id, orgID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "service deactivated",
		"service_id", id,
		"organization_id", orgID,
	)

	core.JSON(w, r, http.StatusNoContent, nil)
}
