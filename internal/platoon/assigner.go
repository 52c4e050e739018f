package platoon

import (
	"errors"
	"fmt"
	"log"

	"github.com/RemyAde/kopa-backend/internal/eligibility"
	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/statecode"
	"github.com/RemyAde/kopa-backend/internal/types"
)

// JoinRejectedError surfaces an eligibility denial verbatim to the caller.
type JoinRejectedError struct {
	Reason eligibility.DenyReason
	Detail string
}

func (e *JoinRejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("join rejected (%s): %s", e.Reason, e.Detail)
	}

	return fmt.Sprintf("join rejected (%s)", e.Reason)
}

type MembershipStore interface {
	Add(userId, roomId string) (types.Membership, error)
}

// Assigner orchestrates first-join-by-state-code: registry lookup, eligibility
// gate, then membership grant.
type Assigner struct {
	log      *log.Logger
	registry *statecode.Registry
	checker  eligibility.Checker
	store    MembershipStore
}

func NewAssigner(logger *log.Logger, registry *statecode.Registry, checker eligibility.Checker, store MembershipStore) *Assigner {
	return &Assigner{
		log:      logger,
		registry: registry,
		checker:  checker,
		store:    store,
	}
}

// JoinPlatoon returns the platoon room id for stateCode after granting the
// user membership. It is idempotent: a user who already belongs to the room
// gets the same room id back. Concurrent duplicate joins are resolved by the
// store, not by locking here.
func (a *Assigner) JoinPlatoon(userId, stateCode string, sig eligibility.Signals) (string, error) {
	roomId, err := a.registry.Resolve(stateCode)
	if err != nil {
		return "", err
	}

	sig.RequestedStateCode = stateCode
	if d := a.checker.Check(userId, roomId, sig); !d.Allowed {
		return "", &JoinRejectedError{Reason: d.Reason, Detail: d.Detail}
	}

	if _, err := a.store.Add(userId, roomId); err != nil {
		if errors.Is(err, membership.ErrAlreadyMember) {
			// platoon assignment is naturally idempotent
			return roomId, nil
		}
		return "", fmt.Errorf("add membership: %w", err)
	}

	a.log.Printf("assigned user %q to platoon room %q", userId, roomId)
	return roomId, nil
}
