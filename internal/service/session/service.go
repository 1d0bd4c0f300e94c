package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/repository/session"
	"github.com/tunespace/server/pkg/randstr"
)

var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrNoParticipants           = errors.New("no participants in session")
	ErrAuthenticationFailed     = errors.New("failed to authenticate participant")
	ErrParticipantsLimitReached = errors.New("participants limit reached")
	ErrQueueLimitReached        = errors.New("queue limit reached")
)

// PlaybackAdapter issues remote playback commands for one participant's
// account and bound output device. Operations against a single adapter are
// applied in the order they are issued; operations across adapters carry no
// ordering guarantee and must commute.
type PlaybackAdapter interface {
	Authenticate(ctx context.Context) (domain.Credential, error)
	BindDevice(ctx context.Context, deviceId string) error
	PlayTrack(ctx context.Context, trackId string, offsetMs int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, offsetMs int) error
	CurrentState(ctx context.Context) (*domain.PlaybackState, error)
	Search(ctx context.Context, query string) ([]domain.Track, error)
	FetchTrack(ctx context.Context, trackId string) (domain.Track, error)
}

// AdapterFactory constructs the adapter for a joining participant's
// credential.
type AdapterFactory func(credential domain.Credential) PlaybackAdapter

type iSessionRepo interface {
	SetSnapshot(context.Context, *session.SetSnapshotParams) error
	RemoveSnapshot(ctx context.Context, sessionId string) error
	SetJoinTicket(context.Context, *session.SetJoinTicketParams) error
	ConsumeJoinTicket(ctx context.Context, ticketId string) (session.JoinTicket, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	Secret            string
	ParticipantsLimit int
	QueueLimit        int
}

type service struct {
	sessionRepo       iSessionRepo
	newAdapter        AdapterFactory
	generator         iGenerator
	logger            *slog.Logger
	secret            string
	participantsLimit int
	queueLimit        int

	mu       sync.RWMutex
	sessions map[string]*state
}

func NewService(sessionRepo iSessionRepo, newAdapter AdapterFactory, logger *slog.Logger, cfg *Config) *service {
	s := service{
		sessionRepo:       sessionRepo,
		newAdapter:        newAdapter,
		logger:            logger,
		secret:            cfg.Secret,
		participantsLimit: cfg.ParticipantsLimit,
		queueLimit:        cfg.QueueLimit,
		sessions:          make(map[string]*state),
	}

	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

type CreateSessionParams struct {
	Topic     string
	IsPrivate bool
}

type CreateSessionResponse struct {
	SessionId string
	Snapshot  domain.Snapshot
}

func (s *service) CreateSession(ctx context.Context, params *CreateSessionParams) (CreateSessionResponse, error) {
	sess := newState(uuid.NewString(), params.Topic, params.IsPrivate)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session created", "session_id", sess.id, "topic", sess.topic)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return CreateSessionResponse{
		SessionId: sess.id,
		Snapshot:  snapshot,
	}, nil
}

func (s *service) GetSnapshot(ctx context.Context, sessionId string) (domain.Snapshot, error) {
	sess, err := s.getSession(sessionId)
	if err != nil {
		return domain.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.snapshot(), nil
}

// CloseSession tears the session down and removes it from the registry.
func (s *service) CloseSession(ctx context.Context, sessionId string) error {
	sess, err := s.getSession(sessionId)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	s.teardown(ctx, sess)
	sess.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionId)
	s.mu.Unlock()

	if err := s.sessionRepo.RemoveSnapshot(ctx, sessionId); err != nil {
		s.logger.InfoContext(ctx, "failed to remove session snapshot", "session_id", sessionId, "error", err)
	}

	s.logger.InfoContext(ctx, "session closed", "session_id", sessionId)
	return nil
}

func (s *service) getSession(sessionId string) (*state, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionId]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

func (s *service) storeSnapshot(ctx context.Context, sessionId string, snapshot domain.Snapshot) {
	if err := s.sessionRepo.SetSnapshot(ctx, &session.SetSnapshotParams{
		SessionId: sessionId,
		Snapshot:  snapshot,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to store session snapshot", "session_id", sessionId, "error", err)
	}
}
