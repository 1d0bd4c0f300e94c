package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/service/session"
	"github.com/tunespace/server/pkg/ctxlogger"
	"github.com/tunespace/server/pkg/wsrouter"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// serveSession upgrades the connection and attaches it to a session. A
// first-time client presents a one-shot join ticket; a reconnecting client
// presents the auth token it got on join.
func (c controller) serveSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")
	ticketId := r.URL.Query().Get("ticket")
	authToken := r.URL.Query().Get("token")
	if ticketId == "" && authToken == "" {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticket or token is required"})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	ctx := r.Context()

	var accountId string
	var snapshot domain.Snapshot
	if ticketId != "" {
		joinResp, err := c.sessionService.JoinWithTicket(ctx, ticketId)
		if err != nil {
			c.logger.InfoContext(ctx, "failed to join session", "session_id", sessionId, "error", err)
			c.writeError(ctx, conn, err)
			conn.Close()
			return
		}
		if joinResp.Snapshot.SessionId != sessionId {
			c.writeError(ctx, conn, errors.New("ticket does not match session"))
			// the join already happened; undo it so the participant is not
			// stranded in a session it has no connection to
			if _, err := c.sessionService.Leave(ctx, &session.LeaveParams{
				SessionId: joinResp.Snapshot.SessionId,
				AccountId: joinResp.AccountId,
			}); err != nil {
				c.logger.InfoContext(ctx, "failed to leave session", "error", err)
			}
			conn.Close()
			return
		}

		accountId = joinResp.AccountId
		snapshot = joinResp.Snapshot

		if err := conn.WriteJSON(&Output{
			Type: "JOINED",
			Payload: map[string]any{
				"account_id": joinResp.AccountId,
				"auth_token": joinResp.AuthToken,
				"session":    joinResp.Snapshot,
			},
		}); err != nil {
			c.logger.InfoContext(ctx, "failed to write message", "error", err)
			conn.Close()
			return
		}
	} else {
		claims, err := c.sessionService.ParseAuthToken(authToken)
		if err != nil || claims.SessionId != sessionId {
			c.writeError(ctx, conn, session.ErrAuthenticationFailed)
			conn.Close()
			return
		}

		accountId = claims.AccountId
		snapshot, err = c.sessionService.GetSnapshot(ctx, sessionId)
		if err != nil {
			c.writeError(ctx, conn, err)
			conn.Close()
			return
		}
	}

	if err := c.connRepo.Add(conn, sessionId, accountId); err != nil {
		c.logger.InfoContext(ctx, "failed to register connection", "error", err)
		conn.Close()
		return
	}

	c.broadcastSnapshot(ctx, sessionId, snapshot)

	ctx = context.WithValue(ctx, sessionIdCtxKey, sessionId)
	ctx = context.WithValue(ctx, accountIdCtxKey, accountId)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sessionId))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("account_id", accountId))

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "connection closed", "error", err)
	}

	// a reconnect replaces the registered conn for the account; only the
	// registered conn's close counts as leaving the session
	if _, _, err := c.connRepo.GetParticipant(conn); err != nil {
		return
	}
	c.connRepo.RemoveByConn(conn)

	// disconnect counts as leaving the session
	leaveResp, err := c.sessionService.Leave(ctx, &session.LeaveParams{
		SessionId: sessionId,
		AccountId: accountId,
	})
	if err != nil {
		if !errors.Is(err, session.ErrParticipantNotFound) && !errors.Is(err, session.ErrSessionNotFound) {
			c.logger.InfoContext(ctx, "failed to leave session", "error", err)
		}
		return
	}

	c.broadcastSnapshot(ctx, sessionId, leaveResp.Snapshot)
}

func (c controller) handleAlive(_ context.Context, _ *websocket.Conn, _ json.RawMessage) {
}

func (c controller) handleSearch(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var data struct {
		Query string `json:"query"`
	}
	if err := c.unmarshalJSONorError(ctx, conn, payload, &data); err != nil {
		return
	}
	if data.Query == "" {
		c.writeError(ctx, conn, errors.New("no search query provided"))
		return
	}

	tracks, err := c.sessionService.Search(ctx, &session.SearchParams{
		SessionId: c.getSessionIdFromCtx(ctx),
		Query:     data.Query,
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to search", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	if err := conn.WriteJSON(&Output{
		Type:    "SEARCH_RESULTS",
		Payload: map[string]any{"tracks": tracks},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to write message", "error", err)
	}
}

func (c controller) handleAddQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var data struct {
		TrackId string `json:"track_id"`
	}
	if err := c.unmarshalJSONorError(ctx, conn, payload, &data); err != nil {
		return
	}

	resp, err := c.sessionService.Enqueue(ctx, &session.EnqueueParams{
		SessionId: c.getSessionIdFromCtx(ctx),
		TrackId:   data.TrackId,
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to enqueue", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) handleRemoveQueue(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var data struct {
		QueueId string `json:"queue_id"`
	}
	if err := c.unmarshalJSONorError(ctx, conn, payload, &data); err != nil {
		return
	}

	resp, err := c.sessionService.Dequeue(ctx, &session.DequeueParams{
		SessionId: c.getSessionIdFromCtx(ctx),
		QueueId:   data.QueueId,
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to dequeue", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) handleSkip(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) {
	resp, err := c.sessionService.Skip(ctx, &session.SkipParams{
		SessionId: c.getSessionIdFromCtx(ctx),
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to skip", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) handleTogglePlay(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) {
	resp, err := c.sessionService.TogglePlay(ctx, &session.TogglePlayParams{
		SessionId: c.getSessionIdFromCtx(ctx),
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to toggle play", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) handlePlayNow(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) {
	var data struct {
		TrackId string `json:"track_id"`
	}
	if err := c.unmarshalJSONorError(ctx, conn, payload, &data); err != nil {
		return
	}

	resp, err := c.sessionService.PlayTrackNow(ctx, &session.PlayTrackNowParams{
		SessionId: c.getSessionIdFromCtx(ctx),
		TrackId:   data.TrackId,
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to play track", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) handleSync(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) {
	sessionId := c.getSessionIdFromCtx(ctx)
	if err := c.sessionService.Synchronize(ctx, sessionId); err != nil {
		c.logger.InfoContext(ctx, "failed to synchronize", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	snapshot, err := c.sessionService.GetSnapshot(ctx, sessionId)
	if err != nil {
		c.writeError(ctx, conn, err)
		return
	}

	c.broadcastSnapshot(ctx, sessionId, snapshot)
}

func (c controller) handleGetPlayback(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) {
	snapshot, err := c.sessionService.GetSnapshot(ctx, c.getSessionIdFromCtx(ctx))
	if err != nil {
		c.writeError(ctx, conn, err)
		return
	}

	if err := conn.WriteJSON(&Output{
		Type:    "SESSION_STATE",
		Payload: map[string]any{"session": snapshot},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to write message", "error", err)
	}
}

func (c controller) handleLeave(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) {
	resp, err := c.sessionService.Leave(ctx, &session.LeaveParams{
		SessionId: c.getSessionIdFromCtx(ctx),
		AccountId: c.getAccountIdFromCtx(ctx),
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to leave", "error", err)
		c.writeError(ctx, conn, err)
		return
	}

	c.connRepo.RemoveByConn(conn)
	c.broadcastSnapshot(ctx, c.getSessionIdFromCtx(ctx), resp.Snapshot)
}

func (c controller) unmarshalJSONorError(ctx context.Context, conn *websocket.Conn, payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		c.logger.InfoContext(ctx, "failed to unmarshal payload", "error", err)
		c.writeError(ctx, conn, errors.New("invalid payload"))
		return err
	}

	return nil
}

func (c controller) writeError(ctx context.Context, conn *websocket.Conn, err error) {
	c.logger.DebugContext(ctx, "command failed",
		"message_type", wsrouter.GetMessageTypeFromCtx(ctx),
		"error", err,
	)

	if err := conn.WriteJSON(&Output{
		Type:    "ERROR",
		Payload: map[string]string{"message": err.Error()},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to write error", "error", err)
	}
}

// broadcastSnapshot rebroadcasts the session model to every connected
// client. Individual write failures are logged and skipped so one broken
// connection does not stall the rest.
func (c controller) broadcastSnapshot(ctx context.Context, sessionId string, snapshot domain.Snapshot) {
	for _, conn := range c.connRepo.GetSessionConns(sessionId) {
		if err := conn.WriteJSON(&Output{
			Type:    "SESSION_UPDATED",
			Payload: map[string]any{"session": snapshot},
		}); err != nil {
			c.logger.InfoContext(ctx, "failed to broadcast", "error", err)
		}
	}
}
