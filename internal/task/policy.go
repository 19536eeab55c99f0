package task

// Role of the current session, derived from the fixed username mapping in
// the session package. Not a general RBAC system.
type Role string

const (
	RoleCreator   Role = "creator"
	RoleAdmin     Role = "admin"
	RoleFulfiller Role = "fulfiller"
)

// ActionSet is a bitmask of actions a role may perform on a task.
type ActionSet uint8

const (
	ActionRespond ActionSet = 1 << iota
	ActionEdit
	ActionDelete
	ActionAssign
)

func (s ActionSet) Has(a ActionSet) bool {
	return s&a != 0
}

// AllowedActions maps (role, task state) to the permitted actions. Pure:
// rendering uses it to decide what to show, the engine uses it to reject
// disallowed intents before they reach the store.
func AllowedActions(role Role, t Task) ActionSet {
	var s ActionSet
	pending := t.State.Equals(StatusPending)
	if pending && (role == RoleAdmin || role == RoleFulfiller) {
		s |= ActionRespond
	}
	if role != RoleAdmin {
		return s
	}
	if !t.State.Equals(StatusCompleted) {
		s |= ActionEdit
	}
	s |= ActionDelete
	if pending {
		s |= ActionAssign
	}
	return s
}
