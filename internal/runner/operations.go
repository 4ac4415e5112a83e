package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/channel"
	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

// CreateRequest asks for a new session of Type. The requester receives any
// error event; membership is MemberIDs in order, duplicates removed.
type CreateRequest struct {
	Type        string   `validate:"required,max=64"`
	RequesterID string   `validate:"required,max=128"`
	MemberIDs   []string `validate:"required,min=1,max=64,dive,required,max=128"`
}

// RegisterParticipant records p and binds ch as its live channel, replacing
// any previous channel without closing it.
//
// Precondition: p.ID must be non-empty and ch non-nil.
// Postcondition: ch receives joined-session (and the session's connected hook
// runs) if p belongs to a session, otherwise not-in-session.
func (r *Router) RegisterParticipant(ctx context.Context, p session.Participant, ch channel.Channel) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if ch == nil {
		return fmt.Errorf("%w: nil channel", ErrInvalidRequest)
	}
	return r.do(ctx, "register_participant", func(context.Context) error {
		r.registerParticipant(p, ch)
		return nil
	})
}

func (r *Router) registerParticipant(p session.Participant, ch channel.Channel) {
	logger := r.logger.With(zap.String("participant_id", p.ID), zap.String("channel_id", ch.ID()))
	r.participants[p.ID] = p
	if prev, ok := r.channels[p.ID]; ok && prev.ID() != ch.ID() {
		logger.Info("superseding channel", zap.String("previous_channel_id", prev.ID()))
	}
	r.channels[p.ID] = ch

	sid, mapped := r.playerSessions[p.ID]
	ls, live := r.sessions[sid]
	if !mapped || !live {
		logger.Info("participant registered")
		r.emit(p.ID, channel.Event{Name: channel.EventNotInSession})
		return
	}
	logger.Info("participant reconnected", zap.Int64("session_id", sid))
	r.attach(ls, p.ID)
}

// CreateSession instantiates a session of req.Type and moves every member into it.
//
// Postcondition: Returns the new session id, or an error after sending exactly
// one session-error event to the requester. Unknown types and invalid requests
// leave every table unchanged.
func (r *Router) CreateSession(ctx context.Context, req CreateRequest) (int64, error) {
	var id int64
	err := r.do(ctx, "create_session", func(context.Context) error {
		var err error
		id, err = r.createSession(req)
		return err
	})
	return id, err
}

func (r *Router) createSession(req CreateRequest) (int64, error) {
	if err := validate.Struct(req); err != nil {
		r.sendError(req.RequesterID, "Invalid create-session request")
		return 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	factory, ok := r.resolver.Resolve(req.Type)
	if !ok {
		r.logger.Debug("create rejected",
			zap.String("participant_id", req.RequesterID),
			zap.String("type", req.Type),
			zap.Error(ErrUnknownGameType),
		)
		r.sendError(req.RequesterID, fmt.Sprintf("Could not create game type %s", req.Type))
		return 0, fmt.Errorf("%w: %q", ErrUnknownGameType, req.Type)
	}

	id := r.nextID
	r.nextID++
	info := session.Info{
		ID:        id,
		Type:      req.Type,
		OwnerID:   req.RequesterID,
		MemberIDs: lo.Uniq(req.MemberIDs),
	}
	ls := &liveSession{
		info:      info,
		logger:    r.logger.With(zap.Int64("session_id", id), zap.String("type", req.Type)),
		connected: make(map[string]bool),
		startedAt: r.now(),
	}
	if err := r.instantiate(ls, factory); err != nil {
		ls.tick.stop()
		ls.logger.Warn("session creation failed", zap.Error(err))
		r.sendError(req.RequesterID, fmt.Sprintf("Could not start game type %s", req.Type))
		return 0, err
	}

	r.sessions[id] = ls
	for _, m := range info.MemberIDs {
		if prev, ok := r.playerSessions[m]; ok && prev != id {
			r.leave(m, prev)
		}
		r.playerSessions[m] = id
	}
	ls.logger.Info("session created",
		zap.String("owner_id", info.OwnerID),
		zap.Strings("member_ids", info.MemberIDs),
	)
	for _, m := range info.MemberIDs {
		if _, live := r.channels[m]; live && !ls.connected[m] {
			r.attach(ls, m)
		}
	}
	return id, nil
}

// instantiate builds and initializes the session. The session is not yet
// registered, so host callbacks during Initialize reach no member.
func (r *Router) instantiate(ls *liveSession, factory session.Factory) error {
	err := r.invoke(ls, "Factory", func() error {
		ls.impl = factory()
		if ls.impl == nil {
			return errors.New("factory returned a nil session")
		}
		return nil
	})
	if err != nil {
		return err
	}
	ls.observer, _ = ls.impl.(session.ConnectionObserver)
	ls.ticker, _ = ls.impl.(session.Ticker)

	info := ls.info
	info.MemberIDs = slices.Clone(ls.info.MemberIDs)
	h := &host{r: r, ls: ls}
	err = r.invoke(ls, "Initialize", func() error {
		return ls.impl.Initialize(h, info)
	})
	if err != nil {
		return fmt.Errorf("runner: initializing session %d: %w", ls.info.ID, err)
	}
	return nil
}

// leave unmaps a participant from a session it is being evicted from.
func (r *Router) leave(participantID string, sessionID int64) {
	delete(r.playerSessions, participantID)
	ls, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	ls.logger.Info("member moved to another session", zap.String("participant_id", participantID))
	r.detach(ls, participantID)
	r.reap(ls)
}

// RouteInput hands payload to the participant's session. Input from
// participants without an active session is dropped silently.
//
// Postcondition: If the session rejects the input, the sender receives a
// session-error event carrying the rejection message.
func (r *Router) RouteInput(ctx context.Context, participantID string, payload any) error {
	return r.do(ctx, "route_input", func(context.Context) error {
		r.routeInput(participantID, payload)
		return nil
	})
}

func (r *Router) routeInput(participantID string, payload any) {
	sid, ok := r.playerSessions[participantID]
	ls, live := r.sessions[sid]
	if !ok || !live || ls.finished {
		r.logger.Debug("dropping input",
			zap.String("participant_id", participantID),
			zap.Error(ErrNoActiveSession),
		)
		return
	}
	p := r.participant(participantID)
	err := r.invoke(ls, "HandleInput", func() error {
		return ls.impl.HandleInput(p, payload)
	})
	if err != nil && !isFault(err) {
		ls.logger.Debug("input rejected", zap.String("participant_id", participantID), zap.Error(err))
		r.sendError(participantID, err.Error())
	}
}

// DisconnectChannel removes the participant's live channel when channelID
// identifies it; an empty channelID matches any channel. The session mapping
// is kept so the participant can reconnect.
//
// Postcondition: Repeated or stale calls have no effect.
func (r *Router) DisconnectChannel(ctx context.Context, participantID, channelID string) error {
	return r.do(ctx, "disconnect_channel", func(context.Context) error {
		r.disconnectChannel(participantID, channelID)
		return nil
	})
}

func (r *Router) disconnectChannel(participantID, channelID string) {
	ch, ok := r.channels[participantID]
	if !ok {
		return
	}
	if channelID != "" && ch.ID() != channelID {
		r.logger.Debug("ignoring disconnect of superseded channel",
			zap.String("participant_id", participantID),
			zap.String("channel_id", channelID),
		)
		return
	}
	delete(r.channels, participantID)
	r.logger.Info("participant disconnected",
		zap.String("participant_id", participantID),
		zap.String("channel_id", ch.ID()),
	)
	if sid, ok := r.playerSessions[participantID]; ok {
		if ls, ok := r.sessions[sid]; ok {
			r.detach(ls, participantID)
		}
	}
}

// Dispatch routes an inbound client event for an identified participant.
// Transports call it for every event after the identify handshake.
func (r *Router) Dispatch(ctx context.Context, participantID string, ev channel.Event) error {
	switch ev.Name {
	case channel.EventCreateSession:
		var req channel.CreateSession
		if err := channel.Decode(ev.Payload, &req); err != nil {
			r.reject(ctx, participantID, "Malformed create-session payload")
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		_, err := r.CreateSession(ctx, CreateRequest{
			Type:        req.Type,
			RequesterID: participantID,
			MemberIDs:   req.MemberIDs,
		})
		return err
	case channel.EventPlayerInput:
		return r.RouteInput(ctx, participantID, ev.Payload)
	case channel.EventDisconnect:
		return r.DisconnectChannel(ctx, participantID, "")
	default:
		r.reject(ctx, participantID, fmt.Sprintf("Unknown event %s", ev.Name))
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
}

func (r *Router) reject(ctx context.Context, participantID, message string) {
	_ = r.do(ctx, "reject", func(context.Context) error {
		r.sendError(participantID, message)
		return nil
	})
}
