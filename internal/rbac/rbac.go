// Package rbac decides who may change a suggestion.
package rbac

type Role string
type Action string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleElevated  Role = "elevated"
)

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Can reports whether role may perform action on a suggestion. owner is true
// when the caller authored the suggestion.
func Can(role Role, action Action, owner bool) bool {
	switch action {
	case ActionEdit:
		// Text edits stay with the author even for elevated callers.
		return role != RoleAnonymous && owner
	case ActionDelete:
		return role == RoleElevated || (role == RoleUser && owner)
	default:
		return false
	}
}

// For derives the caller's role from the request identity.
func For(userID string, elevated bool) Role {
	switch {
	case elevated:
		return RoleElevated
	case userID != "":
		return RoleUser
	default:
		return RoleAnonymous
	}
}
