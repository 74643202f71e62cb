package enums

// PlanType identifies which paid tier an order purchases.
type PlanType string

const (
	PlanTypePremium PlanType = "premium"
	PlanTypePro     PlanType = "pro"
)

var planTypes = newSet("plan type", PlanTypePremium, PlanTypePro)

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the plan type is recognized.
func (p PlanType) IsValid() bool {
	return planTypes.has(p)
}

// GrantsDiscount reports whether a completed purchase of the plan credits the
// paid amount toward the solution's later tiers.
func (p PlanType) GrantsDiscount() bool {
	return p == PlanTypePremium
}

// ParsePlanType converts a raw string into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	return planTypes.parse(value)
}
