package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatusClassification(t *testing.T) {
	cases := []struct {
		status    PaymentStatus
		absorbing bool
		terminal  bool
	}{
		{PaymentStatusPending, false, false},
		{PaymentStatusProcessing, false, false},
		{PaymentStatusSucceeded, true, true},
		{PaymentStatusFailed, false, true},
		{PaymentStatusExpired, true, true},
		{PaymentStatusCanceled, true, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.True(t, tc.status.IsValid())
			assert.Equal(t, tc.absorbing, tc.status.IsAbsorbing())
			assert.Equal(t, tc.terminal, tc.status.IsTerminal())
		})
	}
}

func TestParsePaymentStatus(t *testing.T) {
	_, err := ParsePaymentStatus("paid")
	require.Error(t, err)

	got, err := ParsePaymentStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusProcessing, got)
}
