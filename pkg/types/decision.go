package types

// Action is what finally happened to one deletion target.
type Action string

const (
	ActionDeleted Action = "deleted"
	ActionBlocked Action = "blocked"
	ActionFailed  Action = "failed"
	// ActionVirtual marks a dry-run target that would have been deleted.
	ActionVirtual Action = "virtual"
)
