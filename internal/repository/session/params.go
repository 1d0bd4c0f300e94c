package session

import "github.com/tunespace/server/internal/domain"

type SetSnapshotParams struct {
	SessionId string
	Snapshot  domain.Snapshot
}

type SetJoinTicketParams struct {
	TicketId    string
	SessionId   string
	DeviceId    string
	AccountId   string
	AccessToken string
}
