package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNewOrderMergesLines(t *testing.T) {
	o, err := NewOrder("o-1", "u-1", PaymentOnline, []OrderLine{
		{VariationID: "v-1", Quantity: 1}, {VariationID: "v-2", Quantity: 2}, {VariationID: "v-1", Quantity: 3},
	}, "", now)
	require.NoError(t, err)
	assert.Equal(t, []OrderLine{{"v-1", 4}, {"v-2", 2}}, o.Lines)
	assert.Equal(t, StateCreated, o.State)
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, int64(1), o.Version)

	_, err = NewOrder("o-2", "u-1", PaymentOnline, []OrderLine{{VariationID: "v-1", Quantity: 0}}, "", now)
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	_, err = NewOrder("o-3", "u-1", PaymentOnline, nil, "", now)
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}

func TestOrderTransitions(t *testing.T) {
	o, err := NewOrder("o-1", "u-1", PaymentOnline, []OrderLine{{VariationID: "v-1", Quantity: 1}}, "", now)
	require.NoError(t, err)

	assert.True(t, errors.Is(o.Pay(now), ErrInvalidOrderState))
	require.NoError(t, o.MarkAsPendingPayment(now))
	require.NoError(t, o.Pay(now.Add(time.Minute)))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, int64(3), o.Version)
	assert.True(t, errors.Is(o.Cancel(now), ErrInvalidOrderState))
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("")
	require.NoError(t, err)
	assert.Equal(t, PaymentOnline, m)
	m, err = ParsePaymentMethod("COD")
	require.NoError(t, err)
	assert.Equal(t, PaymentCOD, m)
	_, err = ParsePaymentMethod("BARTER")
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}
