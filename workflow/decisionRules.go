package workflow

import (
	"fmt"

	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/utils"
)

// ValidateTransition enforces the request state machine:
// pending -> approved | rejected, approved -> rejected (revocation),
// rejected is terminal.
func ValidateTransition(current models.RequestStatus, next models.RequestStatus) error {
	switch current {
	case models.RequestStatusPending:
		if next == models.RequestStatusApproved || next == models.RequestStatusRejected {
			return nil
		}
	case models.RequestStatusApproved:
		if next == models.RequestStatusRejected {
			return nil
		}
	case models.RequestStatusRejected:
		// terminal
	}
	return utils.NewValidationError(
		fmt.Sprintf("cannot change request status from %s to %s", current, next), nil)
}

// IsRevocation reports whether the transition undoes a prior approval.
func IsRevocation(current models.RequestStatus, next models.RequestStatus) bool {
	return current == models.RequestStatusApproved && next == models.RequestStatusRejected
}
