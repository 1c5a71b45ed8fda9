package models

// AssignedRole is the in-session role a participant plays.
type AssignedRole string

const (
	AssignedRoleFacilitator AssignedRole = "FACILITATOR"
	AssignedRoleTimekeeper  AssignedRole = "TIMEKEEPER"
	AssignedRoleClarifier   AssignedRole = "CLARIFIER"
	AssignedRoleConnector   AssignedRole = "CONNECTOR"
	AssignedRoleScribe      AssignedRole = "SCRIBE"
)

// Valid reports whether r is a known assigned role.
func (r AssignedRole) Valid() bool {
	switch r {
	case AssignedRoleFacilitator, AssignedRoleTimekeeper, AssignedRoleClarifier,
		AssignedRoleConnector, AssignedRoleScribe:
		return true
	}
	return false
}

// GroupRole is the participant's standing in the owning study group.
type GroupRole string

const (
	GroupRoleOwner  GroupRole = "OWNER"
	GroupRoleMod    GroupRole = "MOD"
	GroupRoleMember GroupRole = "MEMBER"
)

// Valid reports whether r is a known group role.
func (r GroupRole) Valid() bool {
	switch r {
	case GroupRoleOwner, GroupRoleMod, GroupRoleMember:
		return true
	}
	return false
}

// Member is a session participant.
type Member struct {
	UserID       string       `json:"userId"`
	AssignedRole AssignedRole `json:"assignedRole"`
	GroupRole    GroupRole    `json:"groupRole"`
}

// MemberIndex maps user id to member for constant time role lookups.
type MemberIndex map[string]Member

// IndexMembers builds a MemberIndex. Later duplicates win.
func IndexMembers(members []Member) MemberIndex {
	idx := make(MemberIndex, len(members))
	for _, m := range members {
		idx[m.UserID] = m
	}
	return idx
}

// Lookup returns the member for userID, or nil when the user is not part
// of the session.
func (idx MemberIndex) Lookup(userID string) *Member {
	m, ok := idx[userID]
	if !ok {
		return nil
	}
	return &m
}
