package core

// Policy gatekeeps the restricted room. Every other room is open to any
// bound connection. The authorized set is configuration, not runtime state.
type Policy struct {
	restrictedRoom string
	authorized     map[string]struct{}
}

// NewPolicy builds a policy from the restricted room name and the set of
// user ids allowed into it. An empty room name disables the restriction.
func NewPolicy(restrictedRoom string, authorizedUserIDs []string) *Policy {
	authorized := make(map[string]struct{}, len(authorizedUserIDs))
	for _, id := range authorizedUserIDs {
		authorized[id] = struct{}{}
	}
	return &Policy{
		restrictedRoom: restrictedRoom,
		authorized:     authorized,
	}
}

// CanJoin reports whether userID may join room. Checked on every join
// attempt; a past grant carries no weight.
func (p *Policy) CanJoin(userID, room string) bool {
	if p.restrictedRoom == "" || room != p.restrictedRoom {
		return true
	}
	_, ok := p.authorized[userID]
	return ok
}
