package rbac

import "strings"

type Role string
type Action string

// Operation names a document operation exposed to clients.
type Operation string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionAdmin   Action = "admin"
)

const (
	OpCreate  Operation = "create"
	OpOpen    Operation = "open"
	OpEdit    Operation = "edit"
	OpDictate Operation = "dictate"
	OpImport  Operation = "import"
	OpSave    Operation = "save"
	OpSuggest Operation = "suggest"
	OpApply   Operation = "apply"
	OpDismiss Operation = "dismiss"
	OpComment Operation = "comment"
	OpResolve Operation = "resolve"
	OpDelete  Operation = "delete"
)

var required = map[Operation]Action{
	OpCreate:  ActionWrite,
	OpOpen:    ActionRead,
	OpEdit:    ActionWrite,
	OpDictate: ActionWrite,
	OpImport:  ActionWrite,
	OpSave:    ActionWrite,
	OpSuggest: ActionWrite,
	OpApply:   ActionWrite,
	OpDismiss: ActionWrite,
	OpComment: ActionComment,
	OpResolve: ActionComment,
	OpDelete:  ActionAdmin,
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case RoleCommenter:
		return action == ActionRead || action == ActionComment
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Required returns the action op needs. Unknown operations need admin.
func Required(op Operation) Action {
	if action, ok := required[op]; ok {
		return action
	}
	return ActionAdmin
}

func Permits(role Role, op Operation) bool {
	return Can(role, Required(op))
}

// Normalize maps a role name onto a known role, case-insensitively; anything
// unrecognised becomes a viewer.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleViewer, RoleCommenter, RoleEditor, RoleAdmin:
		return r
	default:
		return RoleViewer
	}
}
