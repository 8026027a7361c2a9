package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/types"
)

// --- Mocks ---

type mockOrgLookup struct {
	plan types.PlanTier
	err  error
}

func (m *mockOrgLookup) GetPlan(_ context.Context, _ string) (types.PlanTier, error) {
	return m.plan, m.err
}

type mockUsageDB struct {
	services     int
	bookings     int
	orgs         int
	servicesErr  error
	bookingsErr  error
	orgsErr      error
	gotPeriodRef time.Time
}

func (m *mockUsageDB) CountActiveServices(_ context.Context, _ string) (int, error) {
	return m.services, m.servicesErr
}

func (m *mockUsageDB) CountBookingsCreatedSince(_ context.Context, _ string, periodStart time.Time) (int, error) {
	m.gotPeriodRef = periodStart
	return m.bookings, m.bookingsErr
}

func (m *mockUsageDB) CountOrganizationsByOwner(_ context.Context, _ string) (int, error) {
	return m.orgs, m.orgsErr
}

// --- PeriodStart ---

func TestPeriodStart_FirstOfUTCMonth(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2026, 9, 1, 2, 30, 0, 0, loc) // Aug 31 21:30 UTC

	got := PeriodStart(now)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), got)
}

// --- CheckServiceCreate ---

func TestGuard_CheckServiceCreate(t *testing.T) {
	tests := []struct {
		name     string
		plan     types.PlanTier
		services int
		wantErr  bool
	}{
		{name: "under limit", plan: types.PlanFree, services: 14, wantErr: false},
		{name: "at limit", plan: types.PlanFree, services: 15, wantErr: true},
		{name: "over limit", plan: types.PlanFree, services: 20, wantErr: true},
		{name: "enterprise never limited", plan: types.PlanEnterprise, services: 100000, wantErr: false},
		{name: "unknown tier gets free limits", plan: types.PlanTier("mystery"), services: 15, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard(NewStaticRegistry(),
				&mockOrgLookup{plan: tt.plan},
				&mockUsageDB{services: tt.services},
				nil,
			)

			err := guard.CheckServiceCreate(context.Background(), "org_1")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeLimitExceeded, appErr.Code)
			assert.Equal(t, tt.services, appErr.Details["current"])
		})
	}
}

func TestGuard_CheckServiceCreate_OrgLookupError(t *testing.T) {
	lookupErr := types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	guard := NewGuard(NewStaticRegistry(), &mockOrgLookup{err: lookupErr}, &mockUsageDB{}, nil)

	err := guard.CheckServiceCreate(context.Background(), "org_gone")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundOrg, appErr.Code)
}

// --- CheckBookingCreate ---

func TestGuard_CheckBookingCreate_CountsFromPeriodStart(t *testing.T) {
	usage := &mockUsageDB{bookings: 99}
	guard := NewGuard(NewStaticRegistry(), &mockOrgLookup{plan: types.PlanFree}, usage, nil)

	now := time.Date(2026, 8, 29, 15, 45, 0, 0, time.UTC)
	err := guard.CheckBookingCreate(context.Background(), "org_1", now)
	require.NoError(t, err)

	// The count window must open at the first of the month, not at now.
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), usage.gotPeriodRef)
}

func TestGuard_CheckBookingCreate_AtLimit(t *testing.T) {
	guard := NewGuard(NewStaticRegistry(),
		&mockOrgLookup{plan: types.PlanFree},
		&mockUsageDB{bookings: 100},
		nil,
	)

	err := guard.CheckBookingCreate(context.Background(), "org_1", time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeLimitExceeded, appErr.Code)
	assert.Equal(t, 100, appErr.Details["limit"])
	assert.Equal(t, string(types.PlanFree), appErr.Details["plan"])
}

func TestGuard_CheckBookingCreate_UnlimitedSkipsCount(t *testing.T) {
	usage := &mockUsageDB{bookingsErr: errors.New("should not be called")}
	guard := NewGuard(NewStaticRegistry(), &mockOrgLookup{plan: types.PlanEnterprise}, usage, nil)

	err := guard.CheckBookingCreate(context.Background(), "org_1", time.Now().UTC())
	require.NoError(t, err)
}

// --- CheckOrganizationCreate ---

func TestGuard_CheckOrganizationCreate(t *testing.T) {
	tests := []struct {
		name    string
		tier    types.PlanTier
		owned   int
		wantErr bool
	}{
		{name: "first free org", tier: types.PlanFree, owned: 0, wantErr: false},
		{name: "second free org denied", tier: types.PlanFree, owned: 1, wantErr: true},
		{name: "pro allows three", tier: types.PlanPro, owned: 2, wantErr: false},
		{name: "pro fourth denied", tier: types.PlanPro, owned: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard(NewStaticRegistry(), &mockOrgLookup{}, &mockUsageDB{orgs: tt.owned}, nil)

			err := guard.CheckOrganizationCreate(context.Background(), "user_1", tt.tier)
			if tt.wantErr {
				var appErr *types.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, types.ErrCodeLimitExceeded, appErr.Code)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
