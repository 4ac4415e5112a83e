package runner

import (
	"context"
	"slices"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// ParticipantStatus is a point-in-time view of one participant.
type ParticipantStatus struct {
	Participant session.Participant
	// Known is false for ids the router has never seen.
	Known     bool
	Connected bool
	ChannelID string
	// SessionID is zero when the participant is not mapped to a session.
	SessionID int64
}

// SessionStatus is a point-in-time view of one session.
type SessionStatus struct {
	Info session.Info
	// Connected lists connected members in membership order.
	Connected   []string
	Finished    bool
	TickPending bool
}

// Stats summarizes the routing tables.
type Stats struct {
	Participants   int
	Connected      int
	Sessions       int
	ActiveSessions int
	NextSessionID  int64
}

// Participant reports the routing state of one participant.
func (r *Router) Participant(ctx context.Context, id string) (ParticipantStatus, error) {
	var st ParticipantStatus
	err := r.do(ctx, "participant_status", func(context.Context) error {
		p, known := r.participants[id]
		if !known {
			p = session.Participant{ID: id}
		}
		st = ParticipantStatus{Participant: p, Known: known}
		if ch, ok := r.channels[id]; ok {
			st.Connected = true
			st.ChannelID = ch.ID()
		}
		st.SessionID = r.playerSessions[id]
		return nil
	})
	return st, err
}

// Session reports the state of one session. The bool is false for ids that
// were never assigned, failed to start, or have been released.
func (r *Router) Session(ctx context.Context, id int64) (SessionStatus, bool, error) {
	var (
		st    SessionStatus
		found bool
	)
	err := r.do(ctx, "session_status", func(context.Context) error {
		ls, ok := r.sessions[id]
		if !ok {
			return nil
		}
		found = true
		info := ls.info
		info.MemberIDs = slices.Clone(ls.info.MemberIDs)
		st = SessionStatus{
			Info:        info,
			Finished:    ls.finished,
			TickPending: ls.tick.pending(),
		}
		for _, m := range ls.info.MemberIDs {
			if ls.connected[m] {
				st.Connected = append(st.Connected, m)
			}
		}
		return nil
	})
	return st, found, err
}

// Stats summarizes the routing tables.
func (r *Router) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.do(ctx, "stats", func(context.Context) error {
		st = Stats{
			Participants:  len(r.participants),
			Connected:     len(r.channels),
			Sessions:      len(r.sessions),
			NextSessionID: r.nextID,
		}
		for _, ls := range r.sessions {
			if !ls.finished {
				st.ActiveSessions++
			}
		}
		return nil
	})
	return st, err
}
