package platoon

import (
	"sync"
	"testing"

	"github.com/RemyAde/kopa-backend/internal/eligibility"
	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/statecode"
	"github.com/RemyAde/kopa-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssigner(t *testing.T) (*Assigner, *membership.Store) {
	registry, err := statecode.NewRegistry([]statecode.Mapping{
		{Code: "NY", RoomId: "platoon-ny"},
		{Code: "CA", RoomId: "platoon-ca"},
	})
	require.NoError(t, err, "failed to create registry")

	store := membership.NewStore(testutil.TestLogger(t), nil)
	checker := eligibility.NewPolicyChecker(0, store.MemberCount)

	return NewAssigner(testutil.TestLogger(t), registry, checker, store), store
}

func TestJoinPlatoon(t *testing.T) {
	a, store := newTestAssigner(t)

	roomId, err := a.JoinPlatoon("user-1", "NY", eligibility.Signals{Verified: true})
	assert.NoError(t, err, "expected join to succeed")
	assert.Equal(t, "platoon-ny", roomId, "expected state code to resolve to platoon room")
	assert.Equal(t, []string{"platoon-ny"}, store.ListRoomsForUser("user-1"), "expected membership to be created")
}

func TestJoinPlatoonIdempotent(t *testing.T) {
	a, store := newTestAssigner(t)

	first, err := a.JoinPlatoon("user-1", "NY", eligibility.Signals{Verified: true})
	assert.NoError(t, err, "expected first join to succeed")

	second, err := a.JoinPlatoon("user-1", "NY", eligibility.Signals{Verified: true})
	assert.NoError(t, err, "expected repeat join to succeed")
	assert.Equal(t, first, second, "expected both joins to return the same room id")

	assert.Len(t, store.ListMembersForRoom("platoon-ny"), 1, "expected exactly one membership record")
}

func TestJoinPlatoonUnknownStateCode(t *testing.T) {
	a, store := newTestAssigner(t)

	_, err := a.JoinPlatoon("user-1", "ZZ", eligibility.Signals{Verified: true})
	assert.ErrorIs(t, err, statecode.ErrUnknownStateCode, "expected unknown state code error")
	assert.Empty(t, store.ListRoomsForUser("user-1"), "expected no membership to be created")
}

func TestJoinPlatoonRejected(t *testing.T) {
	tcases := []struct {
		name   string
		sig    eligibility.Signals
		reason eligibility.DenyReason
	}{
		{
			name:   "banned user",
			sig:    eligibility.Signals{Banned: true, Verified: true},
			reason: eligibility.ReasonAlreadyBanned,
		},
		{
			name:   "unverified user",
			sig:    eligibility.Signals{},
			reason: eligibility.ReasonNotEligible,
		},
		{
			name:   "state code conflict",
			sig:    eligibility.Signals{Verified: true, RegisteredStateCode: "CA"},
			reason: eligibility.ReasonNotEligible,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			a, store := newTestAssigner(t)

			_, err := a.JoinPlatoon("user-1", "NY", tc.sig)

			var rejected *JoinRejectedError
			assert.ErrorAs(t, err, &rejected, "expected a join rejection")
			assert.Equal(t, tc.reason, rejected.Reason, "expected deny reason to be surfaced verbatim")
			assert.Empty(t, store.ListRoomsForUser("user-1"), "expected no membership to be created")
		})
	}
}

func TestJoinPlatoonConcurrent(t *testing.T) {
	const callers = 16

	a, store := newTestAssigner(t)

	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.JoinPlatoon("user-1", "NY", eligibility.Signals{Verified: true})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i], "expected caller %d to succeed", i)
		assert.Equal(t, "platoon-ny", results[i], "expected caller %d to get the platoon room", i)
	}

	assert.Equal(t, []string{"user-1"}, store.ListMembersForRoom("platoon-ny"), "expected exactly one membership")
}
