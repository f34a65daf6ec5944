package models

// Team represents a named group with one owner.
//
// While the record exists OwnerID is always listed in Members and Members
// is never empty.
type Team struct {
	// ID is the unique identifier for the team (UUID format).
	ID string

	// Name is the display name of the team (e.g., "Alpha").
	Name string

	// OwnerID is the user who created the team or received ownership.
	OwnerID string

	// Members is the set of member user IDs in join order.
	// Order is informational only; membership has set semantics.
	Members []string

	// CreatedAt is the Unix timestamp when the team was created.
	CreatedAt int64

	// Version is the optimistic concurrency token assigned by the store.
	// Updates carrying a stale version are rejected.
	Version int64
}

// HasMember reports whether userID is listed in the member set.
func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// IsOwner reports whether userID owns the team.
func (t *Team) IsOwner(userID string) bool {
	return t.OwnerID == userID
}

// AddMember inserts userID unless already present.
// It reports whether the member set changed.
func (t *Team) AddMember(userID string) bool {
	if t.HasMember(userID) {
		return false
	}
	t.Members = append(t.Members, userID)
	return true
}

// RemoveMember drops userID from the member set, keeping the order of the rest.
// It reports whether the member set changed.
func (t *Team) RemoveMember(userID string) bool {
	kept := t.Members[:0:0]
	removed := false
	for _, m := range t.Members {
		if m == userID {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	t.Members = kept
	return removed
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	c.Members = append([]string(nil), t.Members...)
	return &c
}
