package reservation

import (
	"fmt"

	"chargeslot/internal/domain"
)

type Action string

const (
	ActionView        Action = "view"
	ActionCancel      Action = "cancel"
	ActionAccept      Action = "accept"
	ActionRefuse      Action = "refuse"
	ActionViewReceipt Action = "view_receipt"
)

// Decision is the outcome of a permission check. A denial is a normal result,
// not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into an authorization error; it is nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return newError(ErrForbidden, d.Reason)
}

// RequesterMayActOn allows only the user who made the reservation.
func RequesterMayActOn(r *domain.Reservation, actorID int64, action Action) Decision {
	if r == nil {
		return deny("reservation is missing")
	}
	if actorID == 0 || r.UserID != actorID {
		return deny("only the requester may %s reservation %d", action, r.ID)
	}
	return allow()
}

// OwnerMayActOn allows only the owner of the reservation's station. The station
// must be loaded on r.
func OwnerMayActOn(r *domain.Reservation, actorID int64, action Action) Decision {
	if r == nil {
		return deny("reservation is missing")
	}
	if r.Station == nil {
		return deny("station of reservation %d is not loaded", r.ID)
	}
	if actorID == 0 || r.Station.OwnerID != actorID {
		return deny("only the station owner may %s reservation %d", action, r.ID)
	}
	return allow()
}
