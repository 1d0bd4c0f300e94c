package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/repository/session"
)

type CreateJoinTicketParams struct {
	SessionId  string
	DeviceId   string
	Credential domain.Credential
}

// CreateJoinTicket stashes the join parameters under a one-shot ticket so
// the credential does not ride on the socket URL.
func (s *service) CreateJoinTicket(ctx context.Context, params *CreateJoinTicketParams) (string, error) {
	if _, err := s.getSession(params.SessionId); err != nil {
		return "", err
	}

	ticketId := uuid.NewString()
	if err := s.sessionRepo.SetJoinTicket(ctx, &session.SetJoinTicketParams{
		TicketId:    ticketId,
		SessionId:   params.SessionId,
		DeviceId:    params.DeviceId,
		AccountId:   params.Credential.AccountId,
		AccessToken: params.Credential.AccessToken,
	}); err != nil {
		return "", fmt.Errorf("failed to set join ticket: %w", err)
	}

	return ticketId, nil
}

type JoinParams struct {
	SessionId  string
	DeviceId   string
	Credential domain.Credential
}

type JoinResponse struct {
	AccountId string
	AuthToken string
	Snapshot  domain.Snapshot
}

// JoinWithTicket consumes a join ticket and joins with its parameters.
func (s *service) JoinWithTicket(ctx context.Context, ticketId string) (JoinResponse, error) {
	ticket, err := s.sessionRepo.ConsumeJoinTicket(ctx, ticketId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to consume join ticket: %w", err)
	}

	return s.Join(ctx, &JoinParams{
		SessionId: ticket.SessionId,
		DeviceId:  ticket.DeviceId,
		Credential: domain.Credential{
			AccessToken: ticket.AccessToken,
			AccountId:   ticket.AccountId,
		},
	})
}

// Join authenticates the credential, adds the participant to the roster
// (idempotent by account id), binds the output device and, when a track is
// already playing, primes the newcomer onto the host's track and offset.
func (s *service) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return JoinResponse{}, err
	}

	adapter := s.newAdapter(params.Credential)
	confirmed, err := adapter.Authenticate(ctx)
	if err != nil {
		s.logger.InfoContext(ctx, "authentication failed", "session_id", sess.id, "error", err)
		return JoinResponse{}, ErrAuthenticationFailed
	}
	if confirmed.AccessToken != params.Credential.AccessToken {
		return JoinResponse{}, ErrAuthenticationFailed
	}
	if params.Credential.AccountId != "" && confirmed.AccountId != params.Credential.AccountId {
		return JoinResponse{}, ErrAuthenticationFailed
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.findParticipant(confirmed.AccountId)
	isNew := p == nil
	if isNew {
		if len(sess.participants) >= s.participantsLimit {
			return JoinResponse{}, ErrParticipantsLimitReached
		}

		p = &participant{
			accountId:   confirmed.AccountId,
			accessToken: confirmed.AccessToken,
			adapter:     adapter,
		}
		sess.participants = append(sess.participants, p)
	}

	if err := adapter.BindDevice(ctx, params.DeviceId); err != nil {
		if isNew {
			sess.removeParticipant(p.accountId)
		}
		return JoinResponse{}, fmt.Errorf("failed to bind device: %w", err)
	}

	// a rejoin may carry a refreshed token; once its device is bound, the
	// newly authenticated adapter takes over
	p.adapter = adapter
	p.accessToken = confirmed.AccessToken
	p.deviceId = params.DeviceId

	// A newcomer to a session with a live track starts where the host is,
	// then the whole roster is converged.
	if len(sess.participants) > 1 && sess.participants[0] != p {
		hostState, err := sess.host().adapter.CurrentState(ctx)
		if err != nil {
			s.logger.InfoContext(ctx, "failed to get host state", "session_id", sess.id, "error", err)
		} else if hostState != nil {
			if err := p.adapter.PlayTrack(ctx, hostState.TrackId, hostState.ProgressMs); err != nil {
				s.logger.InfoContext(ctx, "failed to prime participant",
					"session_id", sess.id,
					"account_id", p.accountId,
					"error", err,
				)
			}
			s.synchronize(ctx, sess)
		}
	}

	authToken, err := s.generateAuthToken(sess.id, p.accountId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to generate auth token: %w", err)
	}

	s.logger.InfoContext(ctx, "participant joined",
		"session_id", sess.id,
		"account_id", p.accountId,
		"participants", len(sess.participants),
	)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return JoinResponse{
		AccountId: p.accountId,
		AuthToken: authToken,
		Snapshot:  snapshot,
	}, nil
}

type LeaveParams struct {
	SessionId string
	AccountId string
}

type LeaveResponse struct {
	IsSessionReset bool
	Snapshot       domain.Snapshot
}

// Leave pauses the departing participant's device so it does not keep
// playing outside the session, removes it from the roster and, when the
// departing participant was the host or the roster became empty, resets the
// whole session. Host identity is pinned to roster position 0 and is not
// reassigned.
func (s *service) Leave(ctx context.Context, params *LeaveParams) (LeaveResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return LeaveResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.findParticipant(params.AccountId)
	if p == nil {
		return LeaveResponse{}, ErrParticipantNotFound
	}

	s.pauseIfPlaying(ctx, p)

	_, wasHost := sess.removeParticipant(params.AccountId)

	reset := false
	if wasHost || len(sess.participants) == 0 {
		s.teardown(ctx, sess)
		reset = true
	}

	s.logger.InfoContext(ctx, "participant left",
		"session_id", sess.id,
		"account_id", params.AccountId,
		"session_reset", reset,
	)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return LeaveResponse{
		IsSessionReset: reset,
		Snapshot:       snapshot,
	}, nil
}

// teardown pauses every remaining device and clears all session state.
// Caller must hold sess.mu.
func (s *service) teardown(ctx context.Context, sess *state) {
	s.fanOut(ctx, sess.participants, func(p *participant) error {
		s.pauseIfPlaying(ctx, p)
		return nil
	})

	sess.reset()
}

func (s *service) pauseIfPlaying(ctx context.Context, p *participant) {
	state, err := p.adapter.CurrentState(ctx)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get participant state", "account_id", p.accountId, "error", err)
		return
	}

	if state == nil || !state.IsPlaying {
		return
	}

	if err := p.adapter.Pause(ctx); err != nil {
		s.logger.InfoContext(ctx, "failed to pause participant", "account_id", p.accountId, "error", err)
	}
}
