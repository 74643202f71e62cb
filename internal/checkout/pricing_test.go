package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestChargeAmount(t *testing.T) {
	cases := []struct {
		name      string
		solution  models.Solution
		plan      enums.PlanType
		requested string
		want      string
	}{
		{"premium uses requested amount", models.Solution{}, enums.PlanTypePremium, "100", "100"},
		{"premium tier price wins", models.Solution{PremiumPrice: decimal.NewNullDecimal(dec("149.99"))}, enums.PlanTypePremium, "100", "149.99"},
		{"pro without credit", models.Solution{ProPrice: decimal.NewNullDecimal(dec("500"))}, enums.PlanTypePro, "1", "500"},
		{"pro minus premium credit", models.Solution{ProPrice: decimal.NewNullDecimal(dec("500")), Discount: decimal.NewNullDecimal(dec("100"))}, enums.PlanTypePro, "0", "400"},
		{"pro credit on requested amount", models.Solution{Discount: decimal.NewNullDecimal(dec("25.50"))}, enums.PlanTypePro, "300", "274.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			solution := tc.solution
			got, err := ChargeAmount(&solution, tc.plan, dec(tc.requested))
			require.NoError(t, err)
			assert.True(t, dec(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestChargeAmountRejectsNonPositive(t *testing.T) {
	solution := &models.Solution{ProPrice: decimal.NewNullDecimal(dec("100")), Discount: decimal.NewNullDecimal(dec("150"))}
	_, err := ChargeAmount(solution, enums.PlanTypePro, dec("100"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ChargeAmount(&models.Solution{}, enums.PlanTypePremium, dec("0"))
	require.Error(t, err)

	_, err = ChargeAmount(&models.Solution{}, enums.PlanType("enterprise"), dec("10"))
	require.Error(t, err)

	_, err = ChargeAmount(nil, enums.PlanTypePremium, dec("10"))
	require.Error(t, err)
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(10000), ToCents(dec("100")))
	assert.Equal(t, int64(14999), ToCents(dec("149.99")))
	assert.Equal(t, int64(1), ToCents(dec("0.005")))
}
