package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestReservation(t *testing.T) Reservation {
	t.Helper()
	r, err := NewReservation("r-1", "o-1", KindStock, "sku-1", "u-1", 2, t0, 15*time.Minute)
	require.NoError(t, err)
	return r
}

func TestNewReservation(t *testing.T) {
	r := newTestReservation(t)
	assert.Equal(t, StatusReserved, r.Status)
	require.NotNil(t, r.ExpiresAt)
	assert.Equal(t, t0.Add(15*time.Minute), *r.ExpiresAt)
	assert.Equal(t, int64(1), r.Version)

	_, err := NewReservation("r-2", "o-1", KindStock, "sku-1", "u-1", 0, t0, time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	_, err = NewReservation("r-2", "", KindStock, "sku-1", "u-1", 1, t0, time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestReservationTerminalStatesAreFinal(t *testing.T) {
	r := newTestReservation(t)
	confirmed, err := r.Confirm(t0)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	_, err = confirmed.Release(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = confirmed.Confirm(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = confirmed.Expire(t0.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = confirmed.Pin(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestReservationExpireRequiresDue(t *testing.T) {
	r := newTestReservation(t)

	_, err := r.Expire(t0.Add(14 * time.Minute))
	assert.True(t, errors.Is(err, ErrNotDue))

	expired, err := r.Expire(t0.Add(15 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)
}

func TestPinnedReservationNeverExpires(t *testing.T) {
	r := newTestReservation(t)
	pinned, err := r.Pin(t0)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned())
	assert.False(t, pinned.IsDue(t0.Add(24*time.Hour)))

	_, err = pinned.Expire(t0.Add(24 * time.Hour))
	assert.True(t, errors.Is(err, ErrNotDue))

	released, err := pinned.Release(t0)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, released.Status)
}

func TestParseHelpers(t *testing.T) {
	k, err := ParseResourceKind("VOUCHER")
	require.NoError(t, err)
	assert.Equal(t, KindVoucher, k)
	_, err = ParseResourceKind("GIFT")
	assert.True(t, errors.Is(err, ErrUnknownResourceKind))

	s, err := ParseStatus("EXPIRED")
	require.NoError(t, err)
	assert.True(t, s.IsTerminal())
	assert.False(t, StatusReserved.IsTerminal())
}
