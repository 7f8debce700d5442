package domain

// SessionState is the liveness of the client's single session.
type SessionState int

const (
	SessionNone SessionState = iota
	SessionAuthenticating
	SessionActive
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticating:
		return "authenticating"
	case SessionActive:
		return "active"
	default:
		return "none"
	}
}

// SessionTransition describes a change of the session state.
// Previous is the identity that was active before the change, if any.
type SessionTransition struct {
	From     SessionState
	To       SessionState
	Identity Identity
	Previous Identity
}

// IdentityChanged reports whether the active identity differs before and after.
func (t SessionTransition) IdentityChanged() bool {
	return t.Identity.ID != t.Previous.ID
}
