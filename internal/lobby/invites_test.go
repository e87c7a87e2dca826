package lobby

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestInvitationsConsumeExactPair(t *testing.T) {
	inv := NewInvitations()
	inv.Add("bob", "alice")

	assert.False(t, inv.Consume("bob", "carol"), "wrong inviter must not match")
	assert.False(t, inv.Consume("alice", "bob"), "reversed pair must not match")
	assert.True(t, inv.Consume("bob", "alice"))
	assert.False(t, inv.Consume("bob", "alice"), "pair is gone after consumption")
}

func TestInvitationsDuplicateAddCollapses(t *testing.T) {
	inv := NewInvitations()
	inv.Add("bob", "alice")
	inv.Add("bob", "alice")

	assert.Equal(t, 1, inv.Count())
	assert.True(t, inv.Consume("bob", "alice"))
	assert.Zero(t, inv.Count())
}

func TestInvalidateInviteeRemovesOnlyTheirs(t *testing.T) {
	inv := NewInvitations()
	inv.Add("bob", "alice")
	inv.Add("bob", "carol")
	inv.Add("dave", "alice")

	assert.Equal(t, 2, inv.InvalidateInvitee("bob"))
	assert.False(t, inv.Consume("bob", "alice"))
	assert.False(t, inv.Consume("bob", "carol"))
	assert.True(t, inv.Consume("dave", "alice"))
}

// After an invitee joins a room their entire invitation slate is void,
// regardless of who invited them or in what order.
func TestInvalidatedInviteeCannotAccept(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		inv := NewInvitations()
		inviters := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 10).Draw(rt, "inviters")
		for _, i := range inviters {
			inv.Add("bob", fmt.Sprintf("user-%d", i))
		}
		inv.Add("dave", "user-0")

		inv.InvalidateInvitee("bob")
		for _, i := range inviters {
			if inv.Consume("bob", fmt.Sprintf("user-%d", i)) {
				rt.Fatalf("invitation from user-%d survived invalidation", i)
			}
		}
		if inv.Count() != 1 {
			rt.Fatalf("unrelated invitations disturbed, count=%d", inv.Count())
		}
	})
}
