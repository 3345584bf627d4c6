package login

import "fmt"

// TransitionKind distinguishes informational transitions from client-side
// failures.
type TransitionKind int

const (
	LogMessage TransitionKind = iota
	LocalError
)

func (k TransitionKind) String() string {
	if k == LocalError {
		return "LocalError"
	}
	return "LogMessage"
}

// Transition describes why a state was replaced. It is delivered alongside
// the next State rather than returned as an error.
type Transition struct {
	Kind   TransitionKind
	Detail string
	// Err is the underlying failure, if any.
	Err error
}

func logMessage(format string, args ...any) Transition {
	return Transition{Kind: LogMessage, Detail: fmt.Sprintf(format, args...)}
}

func localError(err error, format string, args ...any) Transition {
	return Transition{Kind: LocalError, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (t Transition) String() string {
	if t.Err != nil {
		return fmt.Sprintf("%s: %s: %v", t.Kind, t.Detail, t.Err)
	}
	return fmt.Sprintf("%s: %s", t.Kind, t.Detail)
}
