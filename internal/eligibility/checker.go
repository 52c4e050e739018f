package eligibility

// DenyReason enumerates why a join request was refused.
type DenyReason string

const (
	ReasonAlreadyBanned DenyReason = "already_banned"
	ReasonRoomFull      DenyReason = "room_full"
	ReasonNotEligible   DenyReason = "not_eligible"
)

// Signals carries the external facts a policy decision depends on. The checker
// owns none of this state; identity and moderation systems supply it per call.
type Signals struct {
	Banned   bool
	Verified bool
	// RegisteredStateCode is the state code already on the user's account,
	// empty if none has been recorded.
	RegisteredStateCode string
	// RequestedStateCode is the code the current join request names, empty
	// for joins not driven by a state code.
	RequestedStateCode string
}

type Decision struct {
	Allowed bool
	Reason  DenyReason
	Detail  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

type Checker interface {
	Check(userId, roomId string, sig Signals) Decision
}

// OccupancyFunc reports the current member count of a room.
type OccupancyFunc func(roomId string) int

// PolicyChecker is the default join policy. MaxRoomSize only constrains rooms
// when set above zero; platoon rooms run unbounded.
type PolicyChecker struct {
	MaxRoomSize int
	Occupancy   OccupancyFunc
}

func NewPolicyChecker(maxRoomSize int, occupancy OccupancyFunc) *PolicyChecker {
	return &PolicyChecker{
		MaxRoomSize: maxRoomSize,
		Occupancy:   occupancy,
	}
}

func (c *PolicyChecker) Check(userId, roomId string, sig Signals) Decision {
	if sig.Banned {
		return Deny(ReasonAlreadyBanned, "user is banned")
	}

	if !sig.Verified {
		return Deny(ReasonNotEligible, "account is not verified")
	}

	if sig.RegisteredStateCode != "" && sig.RequestedStateCode != "" &&
		sig.RegisteredStateCode != sig.RequestedStateCode {
		return Deny(ReasonNotEligible, "user already has a different state code")
	}

	if c.MaxRoomSize > 0 && c.Occupancy != nil && c.Occupancy(roomId) >= c.MaxRoomSize {
		return Deny(ReasonRoomFull, "room is at capacity")
	}

	return Allow()
}
