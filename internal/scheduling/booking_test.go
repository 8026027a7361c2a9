package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"slotbook/internal/types"
)

// --- Mock BookingDB ---

type mockBookingDB struct {
	org    *types.Organization
	orgErr error

	svc    *types.Service
	svcErr error

	slot    *types.Slot
	slotErr error

	booking    *types.Booking
	bookingErr error

	statusErr error
	gotFrom   types.BookingStatus
	gotTo     types.BookingStatus
}

func (m *mockBookingDB) GetOrganization(_ context.Context, _ string) (*types.Organization, error) {
	return m.org, m.orgErr
}

func (m *mockBookingDB) GetService(_ context.Context, _, _ string) (*types.Service, error) {
	return m.svc, m.svcErr
}

func (m *mockBookingDB) GetSlot(_ context.Context, _ string) (*types.Slot, error) {
	return m.slot, m.slotErr
}

func (m *mockBookingDB) GetBooking(_ context.Context, _, _ string) (*types.Booking, error) {
	return m.booking, m.bookingErr
}

func (m *mockBookingDB) UpdateBookingStatus(_ context.Context, _, _ string, from, to types.BookingStatus) error {
	m.gotFrom, m.gotTo = from, to
	return m.statusErr
}

// --- Mock PlanGuard ---

type mockGuard struct {
	err  error
	hits int
}

func (g *mockGuard) CheckBookingCreate(_ context.Context, _ string, _ time.Time) error {
	g.hits++
	return g.err
}

// --- Mock ReservationStore ---

type mockReservationTx struct {
	slot    *types.Slot
	lockErr error

	active   int
	countErr error

	busy      []types.BusyInterval
	busyErr   error
	gotPolicy types.OverlapPolicy

	insertErr error
	commitErr error

	inserted   *types.Booking
	committed  bool
	rolledBack bool
}

func (t *mockReservationTx) LockSlot(_ context.Context, _ string) (*types.Slot, error) {
	if t.lockErr != nil {
		return nil, t.lockErr
	}
	return t.slot, nil
}

func (t *mockReservationTx) CountActiveBookings(_ context.Context, _ string) (int, error) {
	return t.active, t.countErr
}

func (t *mockReservationTx) ListOrgBusy(_ context.Context, _ string, policy types.OverlapPolicy, _, _ time.Time) ([]types.BusyInterval, error) {
	t.gotPolicy = policy
	return t.busy, t.busyErr
}

func (t *mockReservationTx) InsertBooking(_ context.Context, bk *types.Booking) error {
	if t.insertErr != nil {
		return t.insertErr
	}
	t.inserted = bk
	return nil
}

func (t *mockReservationTx) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *mockReservationTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type mockReservationStore struct {
	tx       *mockReservationTx
	beginErr error
	begun    int
}

func (s *mockReservationStore) BeginTx(_ context.Context) (ReservationTx, error) {
	s.begun++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}

// --- Fixtures ---

var reserveNow = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func futureSlot() *types.Slot {
	return &types.Slot{
		ID:             "slot_1",
		ServiceID:      "svc_1",
		OrganizationID: "org_1",
		StartAt:        reserveNow.Add(2 * time.Hour),
		EndAt:          reserveNow.Add(2*time.Hour + 30*time.Minute),
		Capacity:       1,
	}
}

func reserveParams() ReserveParams {
	return ReserveParams{
		OrganizationID: "org_1",
		SlotID:         "slot_1",
		RequesterID:    "client_9",
	}
}

func newTestEngine(db *mockBookingDB, guard *mockGuard, store ReservationStore) *Engine {
	return NewEngine(db, guard, store, nil)
}

// --- Reserve ---

func TestEngine_Reserve_Success_Pending(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	guard := &mockGuard{}
	tx := &mockReservationTx{slot: futureSlot()}
	store := &mockReservationStore{tx: tx}

	engine := newTestEngine(db, guard, store)
	bk, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.NoError(t, err)

	assert.Equal(t, types.BookingPending, bk.Status)
	assert.Equal(t, "slot_1", bk.SlotID)
	assert.Equal(t, "svc_1", bk.ServiceID)
	assert.Equal(t, "client_9", bk.RequesterID)
	assert.NotEmpty(t, bk.ID)
	assert.Equal(t, 1, guard.hits)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestEngine_Reserve_AutoConfirm(t *testing.T) {
	org := testOrg()
	org.Settings.AutoConfirm = true
	db := &mockBookingDB{org: org, svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{slot: futureSlot()}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	bk, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.NoError(t, err)
	assert.Equal(t, types.BookingConfirmed, bk.Status)
}

func TestEngine_Reserve_SlotFullAtRecheck(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{slot: futureSlot(), active: 1}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictSlotFull, appErr.Code)
	assert.True(t, tx.rolledBack)
	assert.Nil(t, tx.inserted)
}

func TestEngine_Reserve_CrossServiceOverlap(t *testing.T) {
	// Someone else's 10:00-10:30 booking on another service blocks the
	// whole organization; the target slot runs 10:15-10:45.
	target := futureSlot()
	target.StartAt = time.Date(2026, 9, 1, 10, 15, 0, 0, time.UTC)
	target.EndAt = time.Date(2026, 9, 1, 10, 45, 0, 0, time.UTC)

	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: target}
	tx := &mockReservationTx{
		slot: target,
		busy: []types.BusyInterval{{
			SlotID:      "slot_other",
			RequesterID: "client_other",
			Start:       time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			End:         time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
		}},
	}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictBookingOverlap, appErr.Code)
	assert.Equal(t, "slot_other", appErr.Details["conflicting_slot_id"])
}

func TestEngine_Reserve_AdjacentSlotsDoNotConflict(t *testing.T) {
	// A booking ending exactly when the target starts is not an overlap.
	target := futureSlot()
	target.StartAt = time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	target.EndAt = time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)

	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: target}
	tx := &mockReservationTx{
		slot: target,
		busy: []types.BusyInterval{{
			SlotID: "slot_other",
			Start:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
			End:    time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
		}},
	}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.NoError(t, err)
}

func TestEngine_Reserve_DuplicateOnSameSlot(t *testing.T) {
	target := futureSlot()
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: target}
	tx := &mockReservationTx{
		slot:   target,
		active: 0,
		busy: []types.BusyInterval{{
			SlotID:      target.ID,
			RequesterID: "client_9",
			Start:       target.StartAt,
			End:         target.EndAt,
		}},
	}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictDuplicate, appErr.Code)
}

func TestEngine_Reserve_SameSlotSharesCapacity(t *testing.T) {
	// Another requester on the same slot is a capacity question, not an
	// overlap conflict. With a free unit left the reservation goes through.
	target := futureSlot()
	target.Capacity = 2
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: target}
	tx := &mockReservationTx{
		slot:   target,
		active: 1,
		busy: []types.BusyInterval{{
			SlotID:      target.ID,
			RequesterID: "client_other",
			Start:       target.StartAt,
			End:         target.EndAt,
		}},
	}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	bk, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.NoError(t, err)
	assert.Equal(t, types.BookingPending, bk.Status)
}

func TestEngine_Reserve_PolicyPassedToOverlapScan(t *testing.T) {
	org := testOrg()
	org.OverlapPolicy = types.OverlapBlockConfirmed
	db := &mockBookingDB{org: org, svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{slot: futureSlot()}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.NoError(t, err)
	assert.Equal(t, types.OverlapBlockConfirmed, tx.gotPolicy)
}

func TestEngine_Reserve_ExpiredBeforeTransaction(t *testing.T) {
	slot := futureSlot()
	slot.StartAt = reserveNow.Add(10 * time.Minute) // inside the 30m lead time
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: slot}
	store := &mockReservationStore{tx: &mockReservationTx{}}

	engine := newTestEngine(db, &mockGuard{}, store)
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictSlotExpired, appErr.Code)
	assert.Zero(t, store.begun, "a doomed request must not open a transaction")
}

func TestEngine_Reserve_ExpiredAtRecheck(t *testing.T) {
	// Advisory copy looks fine but the locked row carries an earlier start.
	lockedSlot := futureSlot()
	lockedSlot.StartAt = reserveNow.Add(5 * time.Minute)

	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{slot: lockedSlot}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictSlotExpired, appErr.Code)
	assert.True(t, tx.rolledBack)
}

func TestEngine_Reserve_CrossTenantSlot(t *testing.T) {
	slot := futureSlot()
	slot.OrganizationID = "org_other"
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: slot}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: &mockReservationTx{}})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSlot, appErr.Code)
}

func TestEngine_Reserve_InactiveService(t *testing.T) {
	svc := activeService()
	svc.Active = false
	db := &mockBookingDB{org: testOrg(), svc: svc, slot: futureSlot()}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: &mockReservationTx{}})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictServiceInactive, appErr.Code)
}

func TestEngine_Reserve_PlanLimitBlocks(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	guard := &mockGuard{err: types.NewAppError(types.ErrCodeLimitExceeded, "booking limit exceeded for current period", nil)}
	store := &mockReservationStore{tx: &mockReservationTx{}}

	engine := newTestEngine(db, guard, store)
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeLimitExceeded, appErr.Code)
	assert.Zero(t, store.begun)
}

func TestEngine_Reserve_LockContentionIsRetryable(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{
		lockErr: types.NewAppError(types.ErrCodeBusy, "slot is being booked by another request, try again", nil),
	}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{tx: tx})
	_, err := engine.Reserve(context.Background(), reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeBusy, appErr.Code)
	assert.True(t, appErr.Retryable())
}

func TestEngine_Reserve_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	store := &mockReservationStore{
		beginErr: types.NewAppError(types.ErrCodeInternalDB, "failed to begin reservation transaction", nil),
	}

	engine := newTestEngine(db, &mockGuard{}, store)
	ctx := context.Background()

	// Six consecutive infrastructure failures trip the breaker.
	for i := 0; i < 6; i++ {
		_, err := engine.Reserve(ctx, reserveParams(), reserveNow)
		require.Error(t, err)
	}

	begunBefore := store.begun
	_, err := engine.Reserve(ctx, reserveParams(), reserveNow)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeBusy, appErr.Code)
	assert.True(t, appErr.Retryable())
	assert.Equal(t, begunBefore, store.begun, "an open breaker must not reach the store")
}

func TestEngine_Reserve_ConflictsDoNotTripBreaker(t *testing.T) {
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: futureSlot()}
	tx := &mockReservationTx{slot: futureSlot(), active: 1}
	store := &mockReservationStore{tx: tx}

	engine := newTestEngine(db, &mockGuard{}, store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := engine.Reserve(ctx, reserveParams(), reserveNow)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeConflictSlotFull, appErr.Code, "conflicts must keep flowing, not trip the breaker")
	}
}

// --- Concurrent last-unit race ---

// memReservationStore serializes reservations on a mutex the way the
// database serializes them on the slot row lock.
type memReservationStore struct {
	mu     sync.Mutex
	slot   types.Slot
	booked int
}

func (s *memReservationStore) BeginTx(_ context.Context) (ReservationTx, error) {
	return &memReservationTx{store: s}, nil
}

type memReservationTx struct {
	store *memReservationStore
	done  bool
}

func (t *memReservationTx) LockSlot(_ context.Context, _ string) (*types.Slot, error) {
	t.store.mu.Lock()
	slot := t.store.slot
	return &slot, nil
}

func (t *memReservationTx) CountActiveBookings(_ context.Context, _ string) (int, error) {
	return t.store.booked, nil
}

func (t *memReservationTx) ListOrgBusy(_ context.Context, _ string, _ types.OverlapPolicy, _, _ time.Time) ([]types.BusyInterval, error) {
	return nil, nil
}

func (t *memReservationTx) InsertBooking(_ context.Context, _ *types.Booking) error {
	t.store.booked++
	return nil
}

func (t *memReservationTx) Commit(_ context.Context) error {
	if !t.done {
		t.done = true
		t.store.mu.Unlock()
	}
	return nil
}

func (t *memReservationTx) Rollback(_ context.Context) error {
	if !t.done {
		t.done = true
		t.store.mu.Unlock()
	}
	return nil
}

func TestEngine_Reserve_ConcurrentLastUnit(t *testing.T) {
	slot := futureSlot()
	store := &memReservationStore{slot: *slot}
	db := &mockBookingDB{org: testOrg(), svc: activeService(), slot: slot}

	engine := newTestEngine(db, &mockGuard{}, store)
	ctx := context.Background()

	const contenders = 8
	results := make([]error, contenders)

	var g errgroup.Group
	for i := 0; i < contenders; i++ {
		i := i
		g.Go(func() error {
			params := reserveParams()
			params.RequesterID = "client_" + string(rune('a'+i))
			_, err := engine.Reserve(ctx, params, reserveNow)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	successes, conflicts := 0, 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeConflictSlotFull, appErr.Code)
		conflicts++
	}

	// Capacity 1: exactly one contender wins, everyone else conflicts.
	assert.Equal(t, 1, successes)
	assert.Equal(t, contenders-1, conflicts)
	assert.Equal(t, 1, store.booked)
}

// --- Confirm / Cancel ---

func TestEngine_Confirm_FromPending(t *testing.T) {
	db := &mockBookingDB{booking: &types.Booking{ID: "bk_1", OrganizationID: "org_1", Status: types.BookingPending}}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{})
	bk, err := engine.Confirm(context.Background(), "org_1", "bk_1")
	require.NoError(t, err)

	assert.Equal(t, types.BookingConfirmed, bk.Status)
	assert.Equal(t, types.BookingPending, db.gotFrom)
	assert.Equal(t, types.BookingConfirmed, db.gotTo)
}

func TestEngine_Cancel_FromConfirmed(t *testing.T) {
	db := &mockBookingDB{booking: &types.Booking{ID: "bk_1", OrganizationID: "org_1", Status: types.BookingConfirmed}}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{})
	bk, err := engine.Cancel(context.Background(), "org_1", "bk_1")
	require.NoError(t, err)
	assert.Equal(t, types.BookingCancelled, bk.Status)
}

func TestEngine_Transitions_TerminalStates(t *testing.T) {
	tests := []struct {
		name   string
		status types.BookingStatus
		call   func(*Engine) error
	}{
		{
			name:   "confirm a cancelled booking",
			status: types.BookingCancelled,
			call: func(e *Engine) error {
				_, err := e.Confirm(context.Background(), "org_1", "bk_1")
				return err
			},
		},
		{
			name:   "cancel a cancelled booking",
			status: types.BookingCancelled,
			call: func(e *Engine) error {
				_, err := e.Cancel(context.Background(), "org_1", "bk_1")
				return err
			},
		},
		{
			name:   "confirm a confirmed booking",
			status: types.BookingConfirmed,
			call: func(e *Engine) error {
				_, err := e.Confirm(context.Background(), "org_1", "bk_1")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockBookingDB{booking: &types.Booking{ID: "bk_1", OrganizationID: "org_1", Status: tt.status}}
			engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{})

			err := tt.call(engine)
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeConflictStatusTerminal, appErr.Code)
		})
	}
}

func TestEngine_Confirm_NotFound(t *testing.T) {
	db := &mockBookingDB{bookingErr: types.NewAppError(types.ErrCodeNotFoundBooking, "booking not found", nil)}

	engine := newTestEngine(db, &mockGuard{}, &mockReservationStore{})
	_, err := engine.Confirm(context.Background(), "org_1", "bk_gone")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundBooking, appErr.Code)
}
