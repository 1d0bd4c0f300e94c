package session

import (
	"context"
	"fmt"

	"github.com/tunespace/server/internal/domain"
)

const queueIdLength = 50

type SearchParams struct {
	SessionId string
	Query     string
}

// Search delegates the catalog query to the host's adapter. Any
// authenticated adapter could serve catalog reads identically; the host is
// an arbitrary but consistent choice.
func (s *service) Search(ctx context.Context, params *SearchParams) ([]domain.Track, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	host := sess.host()
	if host == nil {
		return nil, ErrNoParticipants
	}

	tracks, err := host.adapter.Search(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	return tracks, nil
}

type EnqueueParams struct {
	SessionId string
	TrackId   string
}

type EnqueueResponse struct {
	AddedTrack domain.QueuedTrack
	Queue      []domain.QueuedTrack
	Snapshot   domain.Snapshot
}

// Enqueue fetches the track's metadata through the host adapter and appends
// it to the queue under a fresh queue-entry id.
func (s *service) Enqueue(ctx context.Context, params *EnqueueParams) (EnqueueResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return EnqueueResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	host := sess.host()
	if host == nil {
		return EnqueueResponse{}, ErrNoParticipants
	}

	if len(sess.queue) >= s.queueLimit {
		return EnqueueResponse{}, ErrQueueLimitReached
	}

	track, err := host.adapter.FetchTrack(ctx, params.TrackId)
	if err != nil {
		return EnqueueResponse{}, fmt.Errorf("failed to fetch track: %w", err)
	}

	entry := domain.QueuedTrack{
		QueueId: s.generator.GenerateRandomString(queueIdLength),
		Track:   track,
	}
	sess.enqueue(entry)

	s.logger.InfoContext(ctx, "track enqueued",
		"session_id", sess.id,
		"track_id", track.Id,
		"queue_id", entry.QueueId,
		"queue_length", len(sess.queue),
	)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return EnqueueResponse{
		AddedTrack: entry,
		Queue:      snapshot.Queue,
		Snapshot:   snapshot,
	}, nil
}

type DequeueParams struct {
	SessionId string
	QueueId   string
}

type DequeueResponse struct {
	Queue    []domain.QueuedTrack
	Snapshot domain.Snapshot
}

// Dequeue removes the queue entry by its queue-entry id. No-op if absent.
func (s *service) Dequeue(ctx context.Context, params *DequeueParams) (DequeueResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return DequeueResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.dequeue(params.QueueId) {
		s.logger.InfoContext(ctx, "track dequeued",
			"session_id", sess.id,
			"queue_id", params.QueueId,
			"queue_length", len(sess.queue),
		)
	}

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return DequeueResponse{
		Queue:    snapshot.Queue,
		Snapshot: snapshot,
	}, nil
}
