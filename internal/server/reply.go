// Package server records direct-message partners in the ReplyRouter, backing
// the /replyPM shortcut.
package server

import "sync"

// ReplyRouter maps each username to the most recent direct-message partner
// in either direction. Entries are updated in pairs: sending a PM records
// the link on both sides regardless of who initiated.
type ReplyRouter struct {
	mu       sync.RWMutex
	partners map[string]string
}

// NewReplyRouter creates an empty ReplyRouter.
func NewReplyRouter() *ReplyRouter {
	return &ReplyRouter{partners: make(map[string]string)}
}

// RecordExchange notes that userA and userB exchanged a direct message,
// setting both directions under one critical section.
func (r *ReplyRouter) RecordExchange(userA, userB string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partners[userA] = userB
	r.partners[userB] = userA
}

// LastPartner returns the last direct-message counterpart recorded for user.
func (r *ReplyRouter) LastPartner(user string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	partner, ok := r.partners[user]
	return partner, ok
}

// Remove deletes user's own entry and clears every entry that points at
// user. It returns the usernames whose entries were cleared so the caller
// can notify each of them that the reply shortcut is no longer available.
// Multiple users may have the removed user as their last partner; all of
// them are cleared, not just the first found.
func (r *ReplyRouter) Remove(user string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.partners, user)

	var dangling []string
	for holder, partner := range r.partners {
		if partner == user {
			delete(r.partners, holder)
			dangling = append(dangling, holder)
		}
	}
	return dangling
}

// Rename moves oldName's own entry to newName and redirects every entry
// pointing at oldName so no reply link references the retired name.
func (r *ReplyRouter) Rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if partner, ok := r.partners[oldName]; ok {
		delete(r.partners, oldName)
		r.partners[newName] = partner
	}
	for holder, partner := range r.partners {
		if partner == oldName {
			r.partners[holder] = newName
		}
	}
}
