package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/types"
)

// --- Mock AvailabilityDB ---

type mockAvailabilityDB struct {
	org        *types.Organization
	orgErr     error
	service    *types.Service
	serviceErr error

	slots    []types.SlotAvailability
	listErr  error
	gotFrom  time.Time
	gotTo    time.Time
	listHits int

	busy      []types.BusyInterval
	busyErr   error
	gotPolicy types.OverlapPolicy
}

func (m *mockAvailabilityDB) GetOrganization(_ context.Context, _ string) (*types.Organization, error) {
	return m.org, m.orgErr
}

func (m *mockAvailabilityDB) GetService(_ context.Context, _, _ string) (*types.Service, error) {
	return m.service, m.serviceErr
}

func (m *mockAvailabilityDB) ListAvailability(_ context.Context, _ string, from, to time.Time) ([]types.SlotAvailability, error) {
	m.listHits++
	m.gotFrom, m.gotTo = from, to
	return m.slots, m.listErr
}

func (m *mockAvailabilityDB) ListOrgBusy(_ context.Context, _ string, policy types.OverlapPolicy, _, _ time.Time) ([]types.BusyInterval, error) {
	m.gotPolicy = policy
	return m.busy, m.busyErr
}

func testOrg() *types.Organization {
	return &types.Organization{
		ID:            "org_1",
		OwnerID:       "user_1",
		Name:          "Tidy Cuts",
		Plan:          types.PlanFree,
		OverlapPolicy: types.OverlapBlockActive,
		Settings:      types.OrgSettings{LeadTimeMinutes: 30, DefaultCapacity: 1},
	}
}

func availQuery(from, to time.Time) AvailabilityQuery {
	return AvailabilityQuery{
		OrganizationID: "org_1",
		ServiceID:      "svc_1",
		From:           from,
		To:             to,
	}
}

func slotAt(id string, start time.Time, capacity, booked int) types.SlotAvailability {
	return types.SlotAvailability{
		Slot: types.Slot{
			ID:             id,
			ServiceID:      "svc_1",
			OrganizationID: "org_1",
			StartAt:        start,
			EndAt:          start.Add(30 * time.Minute),
			Capacity:       capacity,
		},
		ActiveBookings: booked,
	}
}

func TestResolver_Resolve_FiltersCutoffAndCapacity(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	// Lead time 30m puts the cutoff at 09:30.
	db := &mockAvailabilityDB{
		org:     testOrg(),
		service: activeService(),
		slots: []types.SlotAvailability{
			slotAt("slot_0930", now.Add(30*time.Minute), 1, 0),  // exactly at cutoff: bookable
			slotAt("slot_1000", now.Add(time.Hour), 1, 1),       // full
			slotAt("slot_1030", now.Add(90*time.Minute), 2, 1),  // one unit left
			slotAt("slot_1100", now.Add(120*time.Minute), 1, 0), // free
		},
	}
	resolver := NewResolver(db, nil)

	got, err := resolver.Resolve(context.Background(), availQuery(now, now.Add(12*time.Hour)), now)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "slot_0930", got[0].ID)
	assert.Equal(t, "slot_1030", got[1].ID)
	assert.Equal(t, "slot_1100", got[2].ID)
}

func TestResolver_Resolve_ExcludesCrossServiceOverlap(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	// The organization holds a 10:00-10:30 booking on another service's
	// slot. Every candidate intersecting that window is withheld.
	db := &mockAvailabilityDB{
		org:     testOrg(),
		service: activeService(),
		slots: []types.SlotAvailability{
			slotAt("slot_0945", now.Add(45*time.Minute), 1, 0),  // 09:45-10:15 overlaps
			slotAt("slot_1015", now.Add(75*time.Minute), 1, 0),  // 10:15-10:45 overlaps
			slotAt("slot_1030", now.Add(90*time.Minute), 1, 0),  // adjacent, bookable
			slotAt("slot_1100", now.Add(120*time.Minute), 1, 0), // clear
		},
		busy: []types.BusyInterval{{
			SlotID:      "slot_other_svc",
			RequesterID: "client_x",
			Start:       now.Add(60 * time.Minute),
			End:         now.Add(90 * time.Minute),
		}},
	}
	resolver := NewResolver(db, nil)

	got, err := resolver.Resolve(context.Background(), availQuery(now, now.Add(12*time.Hour)), now)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "slot_1030", got[0].ID)
	assert.Equal(t, "slot_1100", got[1].ID)
	assert.Equal(t, types.OverlapBlockActive, db.gotPolicy)
}

func TestResolver_Resolve_OwnSlotBookingsDoNotSelfBlock(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	// A slot with spare capacity stays offerable even though its own
	// booking shows up as a busy window for the organization.
	db := &mockAvailabilityDB{
		org:     testOrg(),
		service: activeService(),
		slots: []types.SlotAvailability{
			slotAt("slot_1000", now.Add(time.Hour), 2, 1),
		},
		busy: []types.BusyInterval{{
			SlotID:      "slot_1000",
			RequesterID: "client_x",
			Start:       now.Add(time.Hour),
			End:         now.Add(90 * time.Minute),
		}},
	}
	resolver := NewResolver(db, nil)

	got, err := resolver.Resolve(context.Background(), availQuery(now, now.Add(12*time.Hour)), now)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "slot_1000", got[0].ID)
}

func TestResolver_Resolve_ClampsQueryLowerBoundToCutoff(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	db := &mockAvailabilityDB{org: testOrg(), service: activeService()}
	resolver := NewResolver(db, nil)

	from := now.Add(-2 * time.Hour)
	_, err := resolver.Resolve(context.Background(), availQuery(from, now.Add(6*time.Hour)), now)
	require.NoError(t, err)

	assert.Equal(t, now.Add(30*time.Minute), db.gotFrom)
}

func TestResolver_Resolve_WindowEntirelyBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	db := &mockAvailabilityDB{org: testOrg(), service: activeService()}
	resolver := NewResolver(db, nil)

	got, err := resolver.Resolve(context.Background(), availQuery(now.Add(-2*time.Hour), now.Add(10*time.Minute)), now)
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Zero(t, db.listHits, "the database should not be queried for a dead window")
}

func TestResolver_Resolve_DefaultLeadTimeWhenUnset(t *testing.T) {
	org := testOrg()
	org.Settings.LeadTimeMinutes = 0
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	db := &mockAvailabilityDB{
		org:     org,
		service: activeService(),
		slots: []types.SlotAvailability{
			slotAt("slot_0915", now.Add(15*time.Minute), 1, 0),
			slotAt("slot_0930", now.Add(30*time.Minute), 1, 0),
		},
	}
	resolver := NewResolver(db, nil)

	got, err := resolver.Resolve(context.Background(), availQuery(now, now.Add(6*time.Hour)), now)
	require.NoError(t, err)

	// The platform default lead time (30m) applies, excluding the 09:15 slot.
	require.Len(t, got, 1)
	assert.Equal(t, "slot_0930", got[0].ID)
}

func TestResolver_Resolve_CutoffOverride(t *testing.T) {
	// Override of 2h pushes the cutoff past the organization's 30m lead
	// time, hiding the 10:00 slot.
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	db := &mockAvailabilityDB{
		org:     testOrg(),
		service: activeService(),
		slots: []types.SlotAvailability{
			slotAt("slot_1000", now.Add(time.Hour), 1, 0),
			slotAt("slot_1130", now.Add(150*time.Minute), 1, 0),
		},
	}
	resolver := NewResolver(db, nil)

	q := availQuery(now, now.Add(12*time.Hour))
	q.CutoffOverride = 2 * time.Hour
	got, err := resolver.Resolve(context.Background(), q, now)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "slot_1130", got[0].ID)
}

func TestResolver_Resolve_CutoffOverrideOutOfRange(t *testing.T) {
	resolver := NewResolver(&mockAvailabilityDB{}, nil)
	now := time.Now().UTC()

	for _, override := range []time.Duration{-time.Minute, MaxCutoffOverride + time.Hour} {
		q := availQuery(now, now.Add(6*time.Hour))
		q.CutoffOverride = override
		_, err := resolver.Resolve(context.Background(), q, now)
		require.Error(t, err)

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeValidationInvalidRange, appErr.Code)
	}
}

func TestResolver_Resolve_InvalidWindow(t *testing.T) {
	resolver := NewResolver(&mockAvailabilityDB{}, nil)
	now := time.Now().UTC()

	tests := []struct {
		name string
		from time.Time
		to   time.Time
	}{
		{name: "empty window", from: now, to: now},
		{name: "reversed window", from: now.Add(time.Hour), to: now},
		{name: "window too wide", from: now, to: now.Add(MaxAvailabilityWindow + time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), availQuery(tt.from, tt.to), now)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeValidationInvalidRange, appErr.Code)
		})
	}
}

func TestResolver_Resolve_UnknownService(t *testing.T) {
	db := &mockAvailabilityDB{
		org:        testOrg(),
		serviceErr: types.NewAppError(types.ErrCodeNotFoundService, "service not found", nil),
	}
	resolver := NewResolver(db, nil)

	now := time.Now().UTC()
	q := availQuery(now, now.Add(time.Hour))
	q.ServiceID = "svc_gone"
	_, err := resolver.Resolve(context.Background(), q, now)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundService, appErr.Code)
}
