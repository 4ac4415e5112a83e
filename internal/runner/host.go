package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// liveSession is the router's record of one session instance.
type liveSession struct {
	info      session.Info
	impl      session.Session
	observer  session.ConnectionObserver
	ticker    session.Ticker
	logger    *zap.Logger
	connected map[string]bool
	finished  bool
	outcome   any
	startedAt time.Time
	tick      tickTimer
}

// host is the session.Host handed to one session. Its methods run inline on
// the router loop while a hook of that session executes.
type host struct {
	r  *Router
	ls *liveSession
}

var _ session.Host = (*host)(nil)

func (h *host) Broadcast(payload any) {
	if h.ls.finished {
		return
	}
	h.r.fanout(h.ls, channel.EventStateUpdate, payload)
}

func (h *host) RequestInput(participantID string, payload any) {
	if h.ls.finished {
		return
	}
	if !h.r.mappedTo(participantID, h.ls.info.ID) {
		h.ls.logger.Debug("input request for participant outside session",
			zap.String("participant_id", participantID))
		return
	}
	ev, ok := h.r.event(channel.EventInputRequested, payload)
	if ok {
		h.r.emit(participantID, ev)
	}
}

func (h *host) Complete(payload any) {
	ls := h.ls
	if ls.finished {
		return
	}
	h.r.fanout(ls, channel.EventSessionOver, payload)
	ls.finished = true
	ls.outcome, _ = h.r.normalize(payload)
	ls.tick.stop()
	ls.logger.Info("session completed", zap.Int("members", len(ls.info.MemberIDs)))
	h.r.saveResult(ls)
}

func (h *host) ScheduleTick(after time.Duration) {
	ls := h.ls
	if ls.finished {
		return
	}
	if ls.ticker == nil {
		ls.logger.Warn("tick scheduled by session without a Tick hook")
		return
	}
	h.r.armTick(ls, after)
}

func (h *host) Participant(id string) session.Participant {
	return h.r.participant(id)
}

func (h *host) IsConnected(id string) bool {
	_, ok := h.r.channels[id]
	return ok
}

func (h *host) Logger() *zap.Logger {
	return h.ls.logger
}

// invoke runs a session hook, converting a panic into a *SessionFault.
func (r *Router) invoke(ls *liveSession, hook string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ls.logger.Error("session fault",
				zap.String("hook", hook),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = &SessionFault{SessionID: ls.info.ID, Hook: hook, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return fn()
}

func isFault(err error) bool {
	var fault *SessionFault
	return errors.As(err, &fault)
}

func (r *Router) participant(id string) session.Participant {
	if p, ok := r.participants[id]; ok {
		return p
	}
	return session.Participant{ID: id}
}

func (r *Router) mappedTo(participantID string, sessionID int64) bool {
	sid, ok := r.playerSessions[participantID]
	return ok && sid == sessionID
}

// normalize snapshots a payload into plain JSON values so writer goroutines
// never share memory with a session.
func (r *Router) normalize(payload any) (any, bool) {
	v, err := channel.Normalize(payload)
	if err != nil {
		r.logger.Error("dropping unencodable payload", zap.Error(err))
		return nil, false
	}
	return v, true
}

func (r *Router) event(name string, payload any) (channel.Event, bool) {
	v, ok := r.normalize(payload)
	if !ok {
		return channel.Event{}, false
	}
	return channel.Event{Name: name, Payload: v}, true
}

// emit sends ev to the participant's live channel, if any. Failures are logged.
func (r *Router) emit(participantID string, ev channel.Event) {
	ch, ok := r.channels[participantID]
	if !ok {
		r.logger.Debug("skipping send",
			zap.String("participant_id", participantID),
			zap.String("event", ev.Name),
			zap.Error(ErrChannelUnavailable),
		)
		return
	}
	if err := ch.Send(ev); err != nil {
		r.logger.Warn("send failed",
			zap.String("participant_id", participantID),
			zap.String("channel_id", ch.ID()),
			zap.String("event", ev.Name),
			zap.Error(err),
		)
	}
}

// fanout sends one snapshot of payload to every member still mapped to ls.
func (r *Router) fanout(ls *liveSession, name string, payload any) {
	ev, ok := r.event(name, payload)
	if !ok {
		return
	}
	for _, m := range ls.info.MemberIDs {
		if r.mappedTo(m, ls.info.ID) {
			r.emit(m, ev)
		}
	}
}

func (r *Router) sendError(participantID, message string) {
	r.emit(participantID, channel.Event{
		Name:    channel.EventSessionError,
		Payload: channel.SessionError{Message: message},
	})
}

func (r *Router) armTick(ls *liveSession, after time.Duration) {
	id := ls.info.ID
	ls.tick.arm(after, func(gen uint64) {
		r.post("tick", func(context.Context) error {
			r.fireTick(id, gen)
			return nil
		})
	})
}

func (r *Router) fireTick(id int64, gen uint64) {
	ls, ok := r.sessions[id]
	if !ok || ls.finished || !ls.tick.claim(gen) {
		r.logger.Debug("ignoring stale tick", zap.Int64("session_id", id))
		return
	}
	var (
		next  time.Duration
		again bool
	)
	err := r.invoke(ls, "Tick", func() error {
		next, again = ls.ticker.Tick()
		return nil
	})
	if err != nil {
		ls.tick.stop()
		return
	}
	if again && !ls.finished {
		r.armTick(ls, next)
	}
}

// attach connects a member with a live channel. joined-session is emitted
// before MemberConnected runs, so anything the hook sends arrives after the
// snapshot. Finished sessions replay their outcome instead.
func (r *Router) attach(ls *liveSession, participantID string) {
	var state any
	if err := r.invoke(ls, "State", func() error {
		state = ls.impl.State()
		return nil
	}); err != nil {
		return
	}
	ev, ok := r.event(channel.EventJoinedSession, channel.JoinedSession{
		SessionID: ls.info.ID,
		Type:      ls.info.Type,
		State:     state,
	})
	if !ok {
		return
	}
	r.emit(participantID, ev)
	if ls.finished {
		r.emit(participantID, channel.Event{Name: channel.EventSessionOver, Payload: ls.outcome})
		return
	}
	ls.connected[participantID] = true
	if ls.observer != nil {
		p := r.participant(participantID)
		_ = r.invoke(ls, "MemberConnected", func() error {
			ls.observer.MemberConnected(p)
			return nil
		})
	}
}

// detach marks a member disconnected and runs the disconnected hook once.
func (r *Router) detach(ls *liveSession, participantID string) {
	if !ls.connected[participantID] {
		return
	}
	delete(ls.connected, participantID)
	if ls.finished || ls.observer == nil {
		return
	}
	p := r.participant(participantID)
	_ = r.invoke(ls, "MemberDisconnected", func() error {
		ls.observer.MemberDisconnected(p)
		return nil
	})
}

// reap drops a session once no member is mapped to it any more.
func (r *Router) reap(ls *liveSession) {
	for _, m := range ls.info.MemberIDs {
		if r.mappedTo(m, ls.info.ID) {
			return
		}
	}
	ls.tick.stop()
	delete(r.sessions, ls.info.ID)
	if ls.finished {
		ls.logger.Debug("finished session released")
	} else {
		ls.logger.Info("session abandoned by all members")
	}
}

func (r *Router) saveResult(ls *liveSession) {
	if r.store == nil {
		return
	}
	res := session.Result{
		SessionID:  ls.info.ID,
		Type:       ls.info.Type,
		OwnerID:    ls.info.OwnerID,
		MemberIDs:  slices.Clone(ls.info.MemberIDs),
		Outcome:    ls.outcome,
		StartedAt:  ls.startedAt,
		FinishedAt: r.now(),
	}
	logger := ls.logger
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.resultTimeout)
		defer cancel()
		if err := r.store.SaveResult(ctx, res); err != nil {
			logger.Warn("saving session result", zap.Error(err))
		}
	}()
}
