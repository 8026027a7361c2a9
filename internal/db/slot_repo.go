package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/types"
)

// SlotRepository provides data access for the slots table. Slots are
// immutable after creation; the only mutations are batch insertion during
// generation and deletion during the maintenance reap.
type SlotRepository struct {
	db DBTX
}

// NewSlotRepository creates a new SlotRepository backed by the given
// database connection (pool or transaction).
func NewSlotRepository(db DBTX) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `sl.id, sl.service_id, sl.organization_id, sl.start_at,
	sl.end_at, sl.capacity, sl.created_at`

func scanSlot(row pgx.Row) (*types.Slot, error) {
	var slot types.Slot
	err := row.Scan(
		&slot.ID,
		&slot.ServiceID,
		&slot.OrganizationID,
		&slot.StartAt,
		&slot.EndAt,
		&slot.Capacity,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// InsertBatch inserts the given slots in a single multi-row statement.
// The unique index on (service_id, start_at) makes a duplicate insert fail
// as a whole; the generator avoids this by skipping populated days first.
func (r *SlotRepository) InsertBatch(ctx context.Context, slots []types.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO slots (id, service_id, organization_id, start_at, end_at, capacity, created_at) VALUES `)
	args := make([]any, 0, len(slots)*7)
	for i, s := range slots {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, COALESCE($%d, NOW()))",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, s.ID, s.ServiceID, s.OrganizationID, s.StartAt, s.EndAt, s.Capacity, nilIfZeroTime(s.CreatedAt))
	}

	if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert slot batch", err)
	}
	return nil
}

// GetByID retrieves a slot by its ID. Returns ErrCodeNotFoundSlot when no
// row exists.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*types.Slot, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+slotColumns+`
		 FROM slots sl
		 WHERE sl.id = $1`,
		id,
	)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSlot, "slot not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve slot", err)
	}
	return slot, nil
}

// CountOnDay returns the number of slots a service already has with
// start_at inside [dayStart, dayEnd). The generator treats any non-zero
// count as "day already populated" and skips the whole day.
func (r *SlotRepository) CountOnDay(ctx context.Context, serviceID string, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM slots
		 WHERE service_id = $1 AND start_at >= $2 AND start_at < $3`,
		serviceID, dayStart, dayEnd,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count slots for day", err)
	}
	return count, nil
}

// ListAvailability returns a service's slots inside [from, to) together
// with their live non-cancelled booking counts. The count is advisory; the
// booking engine re-reads it under a row lock before committing.
//
// Ordered by start_at ascending.
func (r *SlotRepository) ListAvailability(ctx context.Context, serviceID string, from, to time.Time) ([]types.SlotAvailability, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+slotColumns+`,
		        COUNT(b.id) FILTER (WHERE b.status != 'cancelled') AS active_bookings
		 FROM slots sl
		 LEFT JOIN bookings b ON b.slot_id = sl.id
		 WHERE sl.service_id = $1 AND sl.start_at >= $2 AND sl.start_at < $3
		 GROUP BY sl.id
		 ORDER BY sl.start_at ASC`,
		serviceID, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query availability", err)
	}
	defer rows.Close()

	var result []types.SlotAvailability
	for rows.Next() {
		var av types.SlotAvailability
		err := rows.Scan(
			&av.ID,
			&av.ServiceID,
			&av.OrganizationID,
			&av.StartAt,
			&av.EndAt,
			&av.Capacity,
			&av.CreatedAt,
			&av.ActiveBookings,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan availability row", err)
		}
		result = append(result, av)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate availability rows", err)
	}
	return result, nil
}

// DeleteEndedBefore removes slots whose end_at fell before the cutoff,
// capped at limit rows per call so the maintenance reap works through a
// backlog in bounded batches. Bookings on the deleted slots are removed by
// the ON DELETE CASCADE constraint.
//
// Returns the number of slots deleted.
func (r *SlotRepository) DeleteEndedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM slots
		 WHERE id IN (
		     SELECT id FROM slots
		     WHERE end_at < $1
		     ORDER BY end_at ASC
		     LIMIT $2
		 )`,
		cutoff, limit,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete ended slots", err)
	}
	return tag.RowsAffected(), nil
}
