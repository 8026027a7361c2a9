package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingCancelled, true},
		{BookingConfirmed, BookingCancelled, true},
		{BookingConfirmed, BookingPending, false},
		{BookingCancelled, BookingConfirmed, false},
		{BookingCancelled, BookingPending, false},
		{BookingCancelled, BookingCancelled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestBookingStatus_Active(t *testing.T) {
	assert.True(t, BookingPending.Active())
	assert.True(t, BookingConfirmed.Active())
	assert.False(t, BookingCancelled.Active())
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.True(t, BookingCancelled.Terminal())
	assert.False(t, BookingPending.Terminal())
	assert.False(t, BookingConfirmed.Terminal())
}

func TestOverlapPolicy_Blocks(t *testing.T) {
	// Default policy: any non-cancelled booking blocks.
	assert.True(t, OverlapBlockActive.Blocks(BookingPending))
	assert.True(t, OverlapBlockActive.Blocks(BookingConfirmed))
	assert.False(t, OverlapBlockActive.Blocks(BookingCancelled))

	// Relaxed policy: only confirmed bookings block.
	assert.False(t, OverlapBlockConfirmed.Blocks(BookingPending))
	assert.True(t, OverlapBlockConfirmed.Blocks(BookingConfirmed))
	assert.False(t, OverlapBlockConfirmed.Blocks(BookingCancelled))
}

func TestOverlapPolicy_UnknownValueFallsBackToActive(t *testing.T) {
	// An unrecognized policy value must fail safe (strictest behavior).
	p := OverlapPolicy("something_else")
	assert.True(t, p.Blocks(BookingPending))
	assert.True(t, p.Blocks(BookingConfirmed))
}
