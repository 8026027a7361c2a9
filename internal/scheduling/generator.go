// Package scheduling implements the slot and booking engine: bulk slot
// generation, availability resolution, the transactional booking flow, and
// the maintenance reap.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"slotbook/internal/types"
)

// MaxGenerationDays caps the date span of a single generation request so a
// bad request cannot flood the slots table.
const MaxGenerationDays = 62

// GeneratorDB defines the data access the slot generator needs.
type GeneratorDB interface {
	// GetService retrieves a service scoped to the organization.
	//
	// SQL: SELECT ... FROM services
	//      WHERE id = $1 AND organization_id = $2
	GetService(ctx context.Context, id, orgID string) (*types.Service, error)

	// CountSlotsOnDay counts a service's slots with start_at in
	// [dayStart, dayEnd).
	//
	// SQL: SELECT COUNT(*) FROM slots
	//      WHERE service_id = $1 AND start_at >= $2 AND start_at < $3
	CountSlotsOnDay(ctx context.Context, serviceID string, dayStart, dayEnd time.Time) (int, error)

	// InsertSlots inserts a batch of slots in one statement.
	InsertSlots(ctx context.Context, slots []types.Slot) error
}

// DayWindow is a sub-window of a workday, as offsets from midnight. Used
// for lunch breaks and other blackout periods no slot may intersect.
type DayWindow struct {
	Start time.Duration
	End   time.Duration
}

// GenerateParams describes one bulk generation request. FromDate and ToDate
// are inclusive UTC dates (midnight-truncated). WorkdayStart and WorkdayEnd
// are offsets from each day's midnight; slots are laid back to back from
// WorkdayStart and the last slot must end at or before WorkdayEnd.
type GenerateParams struct {
	OrganizationID string
	ServiceID      string
	FromDate       time.Time
	ToDate         time.Time
	WorkdayStart   time.Duration
	WorkdayEnd     time.Duration

	// SlotMinutes fixes the slot length. Zero falls back to the service
	// duration.
	SlotMinutes int
	Capacity    int

	// Weekends includes Saturdays and Sundays in the range.
	Weekends bool

	// Break is an optional blackout window; steps intersecting it are
	// dropped.
	Break *DayWindow
}

// Generator produces bookable slots for a service over a date range.
// Generation is idempotent per day: a day that already has any slots for
// the service is skipped wholesale.
type Generator struct {
	db     GeneratorDB
	logger *slog.Logger
}

// NewGenerator creates a slot generator.
func NewGenerator(db GeneratorDB, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{db: db, logger: logger}
}

// Generate validates the request, enumerates the slot grid for every day in
// the range, and persists each unpopulated day as one batch. Days are
// committed independently, so a failure partway through leaves earlier days
// fully generated and later days untouched; re-running the same request
// skips the completed days and finishes the rest.
func (g *Generator) Generate(ctx context.Context, params GenerateParams, now time.Time) (*types.GenerationReport, error) {
	if err := validateGenerateParams(params); err != nil {
		return nil, err
	}

	svc, err := g.db.GetService(ctx, params.ServiceID, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, types.NewAppError(types.ErrCodeConflictServiceInactive, "cannot generate slots for an inactive service", nil)
	}
	step := svc.Duration()
	if params.SlotMinutes > 0 {
		step = time.Duration(params.SlotMinutes) * time.Minute
	}
	if step > params.WorkdayEnd-params.WorkdayStart {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidWindow,
			"workday window is shorter than the slot duration", nil)
	}

	from := truncateToDay(params.FromDate)
	to := truncateToDay(params.ToDate)

	report := &types.GenerationReport{
		ServiceID:    svc.ID,
		From:         from,
		To:           to,
		CreatedByDay: make(map[string]int),
	}

	for day := from; !day.After(to); day = day.Add(24 * time.Hour) {
		dayKey := day.Format("2006-01-02")

		if !params.Weekends && isWeekend(day) {
			continue
		}

		existing, err := g.db.CountSlotsOnDay(ctx, svc.ID, day, day.Add(24*time.Hour))
		if err != nil {
			return nil, err
		}
		if existing > 0 {
			report.SkippedDays = append(report.SkippedDays, dayKey)
			continue
		}

		slots := enumerateDay(svc, params, step, day, now)
		if len(slots) == 0 {
			continue
		}
		if err := g.db.InsertSlots(ctx, slots); err != nil {
			return nil, err
		}

		report.Created += len(slots)
		report.CreatedByDay[dayKey] = len(slots)
	}

	g.logger.InfoContext(ctx, "slot generation finished",
		"service_id", svc.ID,
		"from", report.From.Format("2006-01-02"),
		"to", report.To.Format("2006-01-02"),
		"created", report.Created,
		"skipped_days", len(report.SkippedDays),
	)
	return report, nil
}

// enumerateDay lays out the slot grid for one day: back-to-back intervals
// of the slot duration starting at WorkdayStart, stopping when the next
// slot would end past WorkdayEnd. Steps intersecting the break window are
// dropped without shifting the grid.
func enumerateDay(svc *types.Service, params GenerateParams, step time.Duration, day, now time.Time) []types.Slot {
	dayStart := day.Add(params.WorkdayStart)
	dayEnd := day.Add(params.WorkdayEnd)

	var slots []types.Slot
	for start := dayStart; !start.Add(step).After(dayEnd); start = start.Add(step) {
		if params.Break != nil {
			breakStart := day.Add(params.Break.Start)
			breakEnd := day.Add(params.Break.End)
			if start.Before(breakEnd) && start.Add(step).After(breakStart) {
				continue
			}
		}
		slots = append(slots, types.Slot{
			ID:             "slot_" + uuid.New().String(),
			ServiceID:      svc.ID,
			OrganizationID: svc.OrganizationID,
			StartAt:        start,
			EndAt:          start.Add(step),
			Capacity:       params.Capacity,
			CreatedAt:      now,
		})
	}
	return slots
}

func validateGenerateParams(params GenerateParams) error {
	if params.ServiceID == "" || params.OrganizationID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "service and organization are required", nil)
	}
	if params.FromDate.IsZero() || params.ToDate.IsZero() {
		return types.NewAppError(types.ErrCodeValidationMissingField, "generation date range is required", nil)
	}

	from := truncateToDay(params.FromDate)
	to := truncateToDay(params.ToDate)
	if to.Before(from) {
		return types.NewAppError(types.ErrCodeValidationInvalidRange, "end date is before start date", nil)
	}
	if days := int(to.Sub(from)/(24*time.Hour)) + 1; days > MaxGenerationDays {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRange,
			fmt.Sprintf("generation range exceeds %d days", MaxGenerationDays), nil,
			map[string]any{"days": days, "max_days": MaxGenerationDays},
		)
	}

	if params.WorkdayStart < 0 || params.WorkdayEnd > 24*time.Hour || params.WorkdayEnd <= params.WorkdayStart {
		return types.NewAppError(types.ErrCodeValidationInvalidWindow, "workday window is invalid", nil)
	}
	if params.SlotMinutes < 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidDuration, "slot duration must be positive", nil)
	}
	if params.Break != nil {
		if params.Break.Start < params.WorkdayStart || params.Break.End > params.WorkdayEnd || params.Break.End <= params.Break.Start {
			return types.NewAppError(types.ErrCodeValidationInvalidWindow, "break window must fall inside the workday", nil)
		}
	}
	if params.Capacity < 1 {
		return types.NewAppError(types.ErrCodeValidationInvalidCapacity, "capacity must be at least 1", nil)
	}
	return nil
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
