// Package handlers contains the HTTP handler implementations for the
// slotbook API. Each handler defines the interfaces it depends on locally
// and is wired with concrete implementations by the application entry point.
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

// OrgRepo defines the data access contract for organization operations.
// Mirrors the concrete db.OrganizationRepository methods used by this handler.
type OrgRepo interface {
	Create(ctx context.Context, org *types.Organization) error
	GetByID(ctx context.Context, id string) (*types.Organization, error)
	Update(ctx context.Context, org *types.Organization) error
	UpdatePlan(ctx context.Context, id string, plan types.PlanTier, status types.SubscriptionStatus, expiresAt *time.Time) error
	Disable(ctx context.Context, id string) error
}

// OrgPlanGuard checks plan limits before organization creation.
type OrgPlanGuard interface {
	CheckOrganizationCreate(ctx context.Context, ownerID string, tier types.PlanTier) error
}

// CreateOrganizationRequest is the request body for POST /v1/organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Plan string `json:"plan,omitempty" validate:"omitempty,oneof=free pro enterprise"`
}

// UpdateOrganizationRequest is the request body for PATCH /v1/organizations/{id}.
// All fields are optional; absent fields are left unchanged.
type UpdateOrganizationRequest struct {
	Name          *string            `json:"name,omitempty" validate:"omitempty,max=200"`
	OverlapPolicy *string            `json:"overlap_policy,omitempty" validate:"omitempty,oneof=block_active block_confirmed"`
	Settings      *types.OrgSettings `json:"settings,omitempty"`
}

// UpdatePlanRequest is the request body for POST /v1/organizations/{id}/plan.
// ExpiresAt is required for paid tiers and must be in the future.
type UpdatePlanRequest struct {
	Plan      string     `json:"plan" validate:"required,oneof=free pro enterprise"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OrganizationHandler manages organization CRUD and plan lifecycle.
type OrganizationHandler struct {
	repo      OrgRepo
	guard     OrgPlanGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewOrganizationHandler creates a new OrganizationHandler.
func NewOrganizationHandler(repo OrgRepo, guard OrgPlanGuard, v *core.Validator, l *slog.Logger) *OrganizationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &OrganizationHandler{repo: repo, guard: guard, validator: v, logger: l}
}

// RegisterRoutes mounts organization routes on the provided chi.Router.
func (h *OrganizationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/organizations", func(r chi.Router) {
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Post("/plan", h.UpdatePlan)
			r.Delete("/", h.Disable)
		})
	})
}

// Create handles POST /v1/organizations.
//
// The authenticated actor becomes the owner. The per-owner organization cap
// is checked against the requested tier before anything is written.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CreateOrganizationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tier := types.PlanFree
	if req.Plan != "" {
		tier = types.PlanTier(req.Plan)
	}

	if err := h.guard.CheckOrganizationCreate(r.Context(), actor.ID, tier); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	org := &types.Organization{
		ID:                 "org_" + uuid.New().String(),
		OwnerID:            actor.ID,
		Name:               req.Name,
		Plan:               tier,
		SubscriptionStatus: types.SubStatusActive,
		SubscribedAt:       now,
		OverlapPolicy:      types.OverlapBlockActive,
		Settings: types.OrgSettings{
			DefaultCapacity: 1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.Create(r.Context(), org); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "organization created",
		"organization_id", org.ID,
		"owner_id", actor.ID,
		"plan", string(tier),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: org})
}

// Get handles GET /v1/organizations/{id}.
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := core.RequireOrgAccess(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	org, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: org})
}

// Update handles PATCH /v1/organizations/{id}. Only name, overlap policy,
// and settings are patchable; plan changes go through UpdatePlan.
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := core.RequireOrgAccess(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdateOrganizationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Settings != nil {
		if err := h.validator.ValidateStruct(*req.Settings); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	org, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.OverlapPolicy != nil {
		org.OverlapPolicy = types.OverlapPolicy(*req.OverlapPolicy)
	}
	if req.Settings != nil {
		org.Settings = *req.Settings
	}

	if err := h.repo.Update(r.Context(), org); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: org})
}

// UpdatePlan handles POST /v1/organizations/{id}/plan.
//
// Upgrades take effect immediately. Paid tiers carry an expiry timestamp;
// the maintenance sweep downgrades organizations whose expiry has passed.
func (h *OrganizationHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := core.RequireOrgAccess(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdatePlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tier := types.PlanTier(req.Plan)
	expiresAt := req.ExpiresAt
	if tier == types.PlanFree {
		// Free never expires.
		expiresAt = nil
	} else {
		if expiresAt == nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "expires_at is required for paid plans", nil))
			return
		}
		if !expiresAt.After(time.Now().UTC()) {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "expires_at must be in the future", nil))
			return
		}
	}

	if err := h.repo.UpdatePlan(r.Context(), id, tier, types.SubStatusActive, expiresAt); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "organization plan updated",
		"organization_id", id,
		"plan", req.Plan,
	)

	org, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: org})
}

// Disable handles DELETE /v1/organizations/{id}. Organizations are
// soft-disabled; existing bookings remain readable through other paths.
func (h *OrganizationHandler) Disable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := core.RequireOrgAccess(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.Disable(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusNoContent, nil)
}
