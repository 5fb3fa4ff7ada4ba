package models

// SessionStatus defines the status of a session.
type SessionStatus string

const (
	SessionStatusWaiting       SessionStatus = "WAITING"
	SessionStatusVoting        SessionStatus = "VOTING"
	SessionStatusTransitioning SessionStatus = "TRANSITIONING"
	SessionStatusEnded         SessionStatus = "ENDED"
)

func (s SessionStatus) AcceptsVotes() bool { return s == SessionStatusVoting }

// IsTerminal reports whether the session has ended.
func (s SessionStatus) IsTerminal() bool { return s == SessionStatusEnded }

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusVoting, SessionStatusTransitioning, SessionStatusEnded:
		return true
	}
	return false
}

// StartPolicy defines how a voting round begins while a session is waiting.
type StartPolicy string

const (
	// StartPolicyAuto starts voting once enough players are connected.
	StartPolicyAuto StartPolicy = "auto"
	// StartPolicyManual waits for an explicit start from a player or the admin API.
	StartPolicyManual StartPolicy = "manual"
)

func (p StartPolicy) Valid() bool {
	return p == StartPolicyAuto || p == StartPolicyManual
}
