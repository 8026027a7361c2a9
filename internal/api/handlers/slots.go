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

// SlotGenerator produces slots for a service over a date window.
type SlotGenerator interface {
	Generate(ctx context.Context, params scheduling.GenerateParams, now time.Time) (*types.GenerationReport, error)
}

// AvailabilityResolver lists bookable slots for a service within a window.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, q scheduling.AvailabilityQuery, now time.Time) ([]types.SlotAvailability, error)
}

// GenerateSlotsRequest is the request body for POST /v1/services/{id}/slots/generate.
// Workday and break bounds are clock times in the form "HH:MM"; dates are
// "2006-01-02". An omitted slot_minutes uses the service's duration; an
// omitted break generates straight through the day.
type GenerateSlotsRequest struct {
	FromDate        string `json:"from_date" validate:"required"`
	ToDate          string `json:"to_date" validate:"required"`
	WorkdayStart    string `json:"workday_start" validate:"required"`
	WorkdayEnd      string `json:"workday_end" validate:"required"`
	SlotMinutes     int    `json:"slot_minutes" validate:"omitempty,gte=5,lte=480"`
	Capacity        int    `json:"capacity" validate:"required,gte=1,lte=100"`
	IncludeWeekends bool   `json:"include_weekends"`
	BreakStart      string `json:"break_start"`
	BreakEnd        string `json:"break_end"`
}

// SlotHandler exposes slot generation and availability for one service.
type SlotHandler struct {
	generator SlotGenerator
	resolver  AvailabilityResolver
	validator *core.Validator
	logger    *slog.Logger
}

// NewSlotHandler creates a new SlotHandler.
func NewSlotHandler(g SlotGenerator, res AvailabilityResolver, v *core.Validator, l *slog.Logger) *SlotHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SlotHandler{generator: g, resolver: res, validator: v, logger: l}
}

// RegisterRoutes mounts slot routes under the service namespace.
func (h *SlotHandler) RegisterRoutes(r chi.Router) {
	r.Route("/services/{id}/slots", func(r chi.Router) {
		r.Post("/generate", h.Generate)
	})
	r.Get("/services/{id}/availability", h.Availability)
}

// Generate handles POST /v1/services/{id}/slots/generate.
func (h *SlotHandler) Generate(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req GenerateSlotsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	fromDate, err := parseDate(req.FromDate, "from_date")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	toDate, err := parseDate(req.ToDate, "to_date")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	workStart, err := parseClock(req.WorkdayStart, "workday_start")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	workEnd, err := parseClock(req.WorkdayEnd, "workday_end")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	breakWindow, err := parseBreakWindow(req.BreakStart, req.BreakEnd)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	params := scheduling.GenerateParams{
		OrganizationID: orgID,
		ServiceID:      chi.URLParam(r, "id"),
		FromDate:       fromDate,
		ToDate:         toDate,
		WorkdayStart:   workStart,
		WorkdayEnd:     workEnd,
		SlotMinutes:    req.SlotMinutes,
		Capacity:       req.Capacity,
		Weekends:       req.IncludeWeekends,
		Break:          breakWindow,
	}

	report, err := h.generator.Generate(r.Context(), params, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "slot generation completed",
		"service_id", params.ServiceID,
		"created", report.Created,
		"skipped_days", len(report.SkippedDays),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: report})
}

// Availability handles GET /v1/services/{id}/availability.
//
// Query params from and to are RFC 3339 timestamps. An optional
// cutoff_minutes parameter tightens or relaxes the lead-time cutoff for
// this request; the cutoff itself is always applied server-side so the
// response never contains a slot that Reserve would reject as expired.
func (h *SlotHandler) Availability(w http.ResponseWriter, r *http.Request) {
	orgID, err := actorOrg(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	from, err := parseTimestamp(r.URL.Query().Get("from"), "from")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	to, err := parseTimestamp(r.URL.Query().Get("to"), "to")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	cutoff, err := parseCutoffMinutes(r.URL.Query().Get("cutoff_minutes"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	query := scheduling.AvailabilityQuery{
		OrganizationID: orgID,
		ServiceID:      chi.URLParam(r, "id"),
		From:           from,
		To:             to,
		CutoffOverride: cutoff,
	}

	slots, err := h.resolver.Resolve(r.Context(), query, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: slots})
}

// parseDate parses a "2006-01-02" date into a UTC midnight timestamp.
func parseDate(value, field string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidDate,
			field+" must be a date in the form YYYY-MM-DD",
			nil,
			map[string]interface{}{field: value},
		)
	}
	return t, nil
}

// parseClock parses an "HH:MM" clock time into an offset from midnight.
func parseClock(value, field string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidWindow,
			field+" must be a clock time in the form HH:MM",
			nil,
			map[string]interface{}{field: value},
		)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// parseBreakWindow parses the optional break bounds. Both ends must be
// given together; the window's position inside the workday is validated by
// the generator.
func parseBreakWindow(start, end string) (*scheduling.DayWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"break_start and break_end must be provided together",
			nil,
		)
	}
	from, err := parseClock(start, "break_start")
	if err != nil {
		return nil, err
	}
	to, err := parseClock(end, "break_end")
	if err != nil {
		return nil, err
	}
	return &scheduling.DayWindow{Start: from, End: to}, nil
}

// parseCutoffMinutes parses the optional cutoff_minutes query parameter.
// Empty means no override; range validation happens in the resolver.
func parseCutoffMinutes(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(value)
	if err != nil || minutes <= 0 {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidRange,
			"cutoff_minutes must be a positive integer",
			nil,
			map[string]interface{}{"cutoff_minutes": value},
		)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// parseTimestamp parses a required RFC 3339 query parameter.
func parseTimestamp(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			field+" query parameter is required",
			nil,
		)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidDate,
			field+" must be an RFC 3339 timestamp",
			nil,
			map[string]interface{}{field: value},
		)
	}
	return t.UTC(), nil
}
