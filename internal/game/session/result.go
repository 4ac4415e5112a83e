package session

import "time"

// Result is the record of a completed session handed to a result store.
type Result struct {
	SessionID  int64
	Type       string
	OwnerID    string
	MemberIDs  []string
	Outcome    any
	StartedAt  time.Time
	FinishedAt time.Time
}
