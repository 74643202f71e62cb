package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

// ChargeAmount resolves what the customer pays for a plan. A quoted tier price
// on the solution wins over the requested amount, and the pro plan is reduced
// by any premium credit, never below zero.
func ChargeAmount(solution *models.Solution, plan enums.PlanType, requested decimal.Decimal) (decimal.Decimal, error) {
	if solution == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "solution not found")
	}

	amount := requested
	switch plan {
	case enums.PlanTypePremium:
		if solution.PremiumPrice.Valid {
			amount = solution.PremiumPrice.Decimal
		}
	case enums.PlanTypePro:
		if solution.ProPrice.Valid {
			amount = solution.ProPrice.Decimal
		}
		if solution.Discount.Valid {
			amount = decimal.Max(decimal.Zero, amount.Sub(solution.Discount.Decimal))
		}
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan type")
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "nothing to charge for this plan")
	}
	return amount, nil
}

// ToCents converts a two-place amount into Stripe's minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
