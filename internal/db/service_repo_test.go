package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotbook/internal/types"
)

func TestServiceRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	svc := &types.Service{
		ID:              "svc_1",
		OrganizationID:  "org_1",
		Name:            "Haircut",
		DurationMinutes: 30,
		Active:          true,
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(ctx, svc)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestServiceRepository_GetByID_ScopedToOrg(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	// A service that exists but belongs to another org scans as no rows.
	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"svc_1", "org_other"}).Return(row)

	_, err := repo.GetByID(ctx, "svc_1", "org_other")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundService, appErr.Code)
	db.AssertExpectations(t)
}

func TestServiceRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "svc_1"
			*dest[1].(*string) = "org_1"
			*dest[2].(*string) = "Haircut"
			*dest[3].(*int) = 30
			*dest[4].(*bool) = true
			*dest[5].(*time.Time) = now
			*dest[6].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"svc_1", "org_1"}).Return(row)

	svc, err := repo.GetByID(ctx, "svc_1", "org_1")
	require.NoError(t, err)
	assert.Equal(t, "Haircut", svc.Name)
	assert.Equal(t, 30*time.Minute, svc.Duration())
	assert.True(t, svc.Active)
	db.AssertExpectations(t)
}

func TestServiceRepository_List_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"svc_2", "org_1", "Massage", 60, true, now, now},
		{"svc_1", "org_1", "Haircut", 30, false, now, now},
	})

	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"org_1"}).Return(rows, nil)

	services, err := repo.List(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "Massage", services[0].Name)
	assert.False(t, services[1].Active)
	db.AssertExpectations(t)
}

func TestServiceRepository_Deactivate_AlreadyInactive(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"svc_1", "org_1"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Deactivate(ctx, "svc_1", "org_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundService, appErr.Code)
	db.AssertExpectations(t)
}

func TestServiceRepository_CountActive(t *testing.T) {
	db := new(mockDBTX)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = 14
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"org_1"}).Return(row)

	count, err := repo.CountActive(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, 14, count)
	db.AssertExpectations(t)
}
