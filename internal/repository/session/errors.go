package session

import "errors"

var (
	ErrTicketNotFound   = errors.New("join ticket not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
