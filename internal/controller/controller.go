package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/service/session"
	"github.com/tunespace/server/pkg/validator"
)

type iSessionService interface {
	CreateSession(context.Context, *session.CreateSessionParams) (session.CreateSessionResponse, error)
	CloseSession(ctx context.Context, sessionId string) error
	GetSnapshot(ctx context.Context, sessionId string) (domain.Snapshot, error)
	CreateJoinTicket(context.Context, *session.CreateJoinTicketParams) (string, error)
	JoinWithTicket(ctx context.Context, ticketId string) (session.JoinResponse, error)
	ParseAuthToken(tokenString string) (*session.Claims, error)
	Leave(context.Context, *session.LeaveParams) (session.LeaveResponse, error)
	Search(context.Context, *session.SearchParams) ([]domain.Track, error)
	Enqueue(context.Context, *session.EnqueueParams) (session.EnqueueResponse, error)
	Dequeue(context.Context, *session.DequeueParams) (session.DequeueResponse, error)
	Skip(context.Context, *session.SkipParams) (session.SkipResponse, error)
	TogglePlay(context.Context, *session.TogglePlayParams) (session.TogglePlayResponse, error)
	PlayTrackNow(context.Context, *session.PlayTrackNowParams) (session.PlayTrackNowResponse, error)
	Synchronize(ctx context.Context, sessionId string) error
}

type iConnRepo interface {
	Add(conn *websocket.Conn, sessionId, accountId string) error
	RemoveByConn(conn *websocket.Conn) error
	GetParticipant(conn *websocket.Conn) (sessionId, accountId string, err error)
	GetSessionConns(sessionId string) []*websocket.Conn
}

type iSnapshotRepo interface {
	GetSnapshot(ctx context.Context, sessionId string) (domain.Snapshot, error)
}

type controller struct {
	sessionService iSessionService
	connRepo       iConnRepo
	snapshotRepo   iSnapshotRepo
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	logger         *slog.Logger
}

func NewController(sessionService iSessionService, connRepo iConnRepo, snapshotRepo iSnapshotRepo, logger *slog.Logger) *controller {
	return &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessionService: sessionService,
		connRepo:       connRepo,
		snapshotRepo:   snapshotRepo,
		validate:       validator.NewValidator(),
		logger:         logger,
	}
}
