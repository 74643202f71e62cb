package reconcile

import (
	"time"

	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
)

// Decision is what the ledger does with an observed status.
type Decision string

const (
	// DecisionApply moves the order to the observed status.
	DecisionApply Decision = "apply"
	// DecisionRefresh keeps the status and rewrites audit metadata only.
	DecisionRefresh Decision = "refresh"
	// DecisionIgnore leaves the order untouched.
	DecisionIgnore Decision = "ignore"
)

// Decide applies the payment state machine. lastEventAt is the timestamp of
// the newest observation already applied to the order and at is the timestamp
// of the incoming one.
//
// succeeded, expired and canceled absorb everything. failed only yields to a
// strictly newer processing or succeeded observation (a retried payment on the
// same intent). Nothing moves back to pending, and observations older than
// lastEventAt are dropped.
func Decide(current, next enums.PaymentStatus, lastEventAt *time.Time, at time.Time) Decision {
	if !next.IsValid() {
		return DecisionIgnore
	}
	if lastEventAt != nil && at.Before(*lastEventAt) {
		return DecisionIgnore
	}
	if current == next {
		return DecisionRefresh
	}

	switch {
	case current.IsAbsorbing():
		return DecisionIgnore
	case current == enums.PaymentStatusFailed:
		if next != enums.PaymentStatusProcessing && next != enums.PaymentStatusSucceeded {
			return DecisionIgnore
		}
		if lastEventAt != nil && !at.After(*lastEventAt) {
			return DecisionIgnore
		}
		return DecisionApply
	case next == enums.PaymentStatusPending:
		return DecisionIgnore
	default:
		return DecisionApply
	}
}
