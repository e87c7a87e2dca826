package lobby

import "sync"

type invitePair struct {
	invitee string
	inviter string
}

// Invitations tracks pending (invitee, inviter) pairs. An invitation
// reserves nothing; a stale one is resolved later when the accept's join
// fails through the normal room failure path.
type Invitations struct {
	mu    sync.Mutex
	pairs map[invitePair]struct{}
}

// NewInvitations creates an empty invitation set.
func NewInvitations() *Invitations {
	return &Invitations{pairs: make(map[invitePair]struct{})}
}

// Add records an invitation from inviter to invitee. Adding an existing
// pair is a no-op; there is at most one invitation per pair.
func (i *Invitations) Add(invitee, inviter string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pairs[invitePair{invitee, inviter}] = struct{}{}
}

// Consume removes exactly the matching pair, reporting whether it existed.
func (i *Invitations) Consume(invitee, inviter string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	p := invitePair{invitee, inviter}
	if _, ok := i.pairs[p]; !ok {
		return false
	}
	delete(i.pairs, p)
	return true
}

// InvalidateInvitee removes every pending invitation addressed to invitee.
// Called once the invitee joins any room, since they can occupy only one.
func (i *Invitations) InvalidateInvitee(invitee string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	removed := 0
	for p := range i.pairs {
		if p.invitee == invitee {
			delete(i.pairs, p)
			removed++
		}
	}
	return removed
}

// Count returns the number of pending invitations.
func (i *Invitations) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pairs)
}
