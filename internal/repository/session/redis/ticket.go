package redis

import (
	"context"
	"fmt"

	"github.com/tunespace/server/internal/repository/session"
)

func (r repo) getJoinTicketKey(ticketId string) string {
	return "join-ticket:" + ticketId
}

func (r repo) SetJoinTicket(ctx context.Context, params *session.SetJoinTicketParams) error {
	ticket := session.JoinTicket{
		SessionId:   params.SessionId,
		DeviceId:    params.DeviceId,
		AccountId:   params.AccountId,
		AccessToken: params.AccessToken,
	}

	ticketKey := r.getJoinTicketKey(params.TicketId)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, ticketKey, ticket)
	pipe.Expire(ctx, ticketKey, r.ticketTTL)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set join ticket: %w", err)
	}

	return nil
}

// ConsumeJoinTicket returns the ticket and deletes it, so a ticket can be
// used only once.
func (r repo) ConsumeJoinTicket(ctx context.Context, ticketId string) (session.JoinTicket, error) {
	ticketKey := r.getJoinTicketKey(ticketId)

	var ticket session.JoinTicket
	if err := r.rc.HGetAll(ctx, ticketKey).Scan(&ticket); err != nil {
		return session.JoinTicket{}, fmt.Errorf("failed to get join ticket: %w", err)
	}

	if ticket.SessionId == "" {
		return session.JoinTicket{}, session.ErrTicketNotFound
	}

	if err := r.rc.Del(ctx, ticketKey).Err(); err != nil {
		return session.JoinTicket{}, fmt.Errorf("failed to remove join ticket: %w", err)
	}

	return ticket, nil
}
