package login

// Action tells the caller what outside help a State needs before it can
// make progress.
type Action int

const (
	ActionNone Action = iota
	ActionNeedsVerification
	ActionNeedsPassword
	ActionNeedsUpgrade
	ActionNeedsFinishMigrating
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionNeedsVerification:
		return "NeedsVerification"
	case ActionNeedsPassword:
		return "NeedsPassword"
	case ActionNeedsUpgrade:
		return "NeedsUpgrade"
	case ActionNeedsFinishMigrating:
		return "NeedsFinishMigrating"
	default:
		return "Unknown"
	}
}
