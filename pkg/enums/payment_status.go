package enums

// PaymentStatus tracks the lifecycle of an order payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusSucceeded,
	PaymentStatusFailed,
	PaymentStatusExpired,
	PaymentStatusCanceled,
)

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return paymentStatuses.has(p)
}

// IsAbsorbing reports whether no later event may move the status.
func (p PaymentStatus) IsAbsorbing() bool {
	switch p {
	case PaymentStatusSucceeded, PaymentStatusExpired, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the payment reached an outcome. Failed is terminal
// but can still be superseded by a newer retry on the same intent.
func (p PaymentStatus) IsTerminal() bool {
	return p.IsAbsorbing() || p == PaymentStatusFailed
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
