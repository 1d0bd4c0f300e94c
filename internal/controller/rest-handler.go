package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunespace/server/internal/domain"
	"github.com/tunespace/server/internal/service/session"
)

func (c controller) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		c.logger.Error("failed to write response", "error", err)
	}
}

func (c controller) writeHTTPError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, session.ErrParticipantsLimitReached), errors.Is(err, session.ErrQueueLimitReached):
		status = http.StatusConflict
	}

	c.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createSessionInput struct {
	Topic     string `json:"topic" validate:"required,min=1,max=200"`
	IsPrivate bool   `json:"is_private"`
}

func (c controller) createSession(w http.ResponseWriter, r *http.Request) {
	var input createSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"validation_errors": validationErrors})
		return
	}

	resp, err := c.sessionService.CreateSession(r.Context(), &session.CreateSessionParams{
		Topic:     input.Topic,
		IsPrivate: input.IsPrivate,
	})
	if err != nil {
		c.writeHTTPError(w, err)
		return
	}

	c.writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": resp.SessionId,
		"session":    resp.Snapshot,
	})
}

// getSession serves reads from the cached snapshot when one is present, so
// plain GETs do not contend with command dispatch; a cache miss falls back
// to the live session state.
func (c controller) getSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "session-id")

	snapshot, err := c.snapshotRepo.GetSnapshot(r.Context(), sessionId)
	if err != nil {
		snapshot, err = c.sessionService.GetSnapshot(r.Context(), sessionId)
		if err != nil {
			c.writeHTTPError(w, err)
			return
		}
	}

	c.writeJSON(w, http.StatusOK, map[string]any{"session": snapshot})
}

type createJoinTicketInput struct {
	DeviceId    string `json:"device_id" validate:"required"`
	AccessToken string `json:"access_token" validate:"required"`
	AccountId   string `json:"account_id"`
}

func (c controller) createJoinTicket(w http.ResponseWriter, r *http.Request) {
	var input createJoinTicketInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		c.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"validation_errors": validationErrors})
		return
	}

	ticketId, err := c.sessionService.CreateJoinTicket(r.Context(), &session.CreateJoinTicketParams{
		SessionId: chi.URLParam(r, "session-id"),
		DeviceId:  input.DeviceId,
		Credential: domain.Credential{
			AccessToken: input.AccessToken,
			AccountId:   input.AccountId,
		},
	})
	if err != nil {
		c.writeHTTPError(w, err)
		return
	}

	c.writeJSON(w, http.StatusCreated, map[string]string{"ticket": ticketId})
}
