package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweepDB struct {
	downgraded int64
	err        error
	gotNow     time.Time
}

func (m *mockSweepDB) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.gotNow = now
	return m.downgraded, m.err
}

func TestSweepService_SweepExpiredSubscriptions(t *testing.T) {
	db := &mockSweepDB{downgraded: 4}
	svc := NewSweepService(db, nil)

	now := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	n, err := svc.SweepExpiredSubscriptions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, now, db.gotNow)
}

func TestSweepService_SweepExpiredSubscriptions_Error(t *testing.T) {
	db := &mockSweepDB{err: errors.New("connection reset")}
	svc := NewSweepService(db, nil)

	_, err := svc.SweepExpiredSubscriptions(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeping expired subscriptions")
}
