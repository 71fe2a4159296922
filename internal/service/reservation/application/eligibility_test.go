package application

import (
	"testing"

	"backoffice/internal/service/reservation/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCancelRule(t *testing.T) {
	rule, err := NewEligibilityRule("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCancelRule, rule.String())

	cases := []struct {
		name  string
		order port.OrderSnapshot
		want  bool
	}{
		{"pending online unpaid", port.OrderSnapshot{Status: "PENDING_PAYMENT", PaymentMethod: "ONLINE", PaymentStatus: "UNPAID"}, true},
		{"cash on delivery", port.OrderSnapshot{Status: "PENDING_PAYMENT", PaymentMethod: "COD", PaymentStatus: "UNPAID"}, false},
		{"already paid", port.OrderSnapshot{Status: "PENDING_PAYMENT", PaymentMethod: "ONLINE", PaymentStatus: "PAID"}, false},
		{"already cancelled", port.OrderSnapshot{Status: "CANCELLED", PaymentMethod: "ONLINE", PaymentStatus: "UNPAID"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rule.Eligible(tc.order)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCustomCancelRule(t *testing.T) {
	rule, err := NewEligibilityRule(`order.status in ["PENDING_PAYMENT", "CREATED"]`)
	require.NoError(t, err)

	ok, err := rule.Eligible(port.OrderSnapshot{Status: "CREATED", PaymentMethod: "COD"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelRuleMustBeBoolean(t *testing.T) {
	_, err := NewEligibilityRule(`order.status`)
	assert.Error(t, err)

	_, err = NewEligibilityRule(`order.status ==`)
	assert.Error(t, err)
}
