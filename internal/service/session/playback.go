package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tunespace/server/internal/domain"
)

type SkipParams struct {
	SessionId string
}

type SkipResponse struct {
	NowPlaying *domain.Track
	Queue      []domain.QueuedTrack
	Snapshot   domain.Snapshot
}

// Skip pops the front queue entry, makes it the now-playing track and starts
// it on every participant's device. Skipping with an empty queue leaves the
// session state untouched.
func (s *service) Skip(ctx context.Context, params *SkipParams) (SkipResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return SkipResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	entry, ok := sess.popFront()
	if !ok {
		return SkipResponse{
			Queue:    []domain.QueuedTrack{},
			Snapshot: sess.snapshot(),
		}, nil
	}

	track := entry.Track
	sess.nowPlaying = &track
	sess.isPlaying = true

	s.fanOut(ctx, sess.participants, func(p *participant) error {
		return p.adapter.PlayTrack(ctx, track.Id, 0)
	})

	s.logger.InfoContext(ctx, "skipped to next track",
		"session_id", sess.id,
		"track_id", track.Id,
		"queue_length", len(sess.queue),
	)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return SkipResponse{
		NowPlaying: sess.nowPlaying,
		Queue:      snapshot.Queue,
		Snapshot:   snapshot,
	}, nil
}

type TogglePlayParams struct {
	SessionId string
}

type TogglePlayResponse struct {
	IsPlaying bool
	Snapshot  domain.Snapshot
}

// TogglePlay flips the session's transport state on every participant's
// device. A participant found on the wrong track is first corrected to the
// now-playing track at the host's offset.
func (s *service) TogglePlay(ctx context.Context, params *TogglePlayParams) (TogglePlayResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return TogglePlayResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	target := !sess.isPlaying

	if sess.nowPlaying != nil && len(sess.participants) > 0 {
		hostOffset := 0
		hostState, err := sess.host().adapter.CurrentState(ctx)
		if err != nil {
			s.logger.InfoContext(ctx, "failed to get host state", "session_id", sess.id, "error", err)
		} else if hostState != nil {
			hostOffset = hostState.ProgressMs
		}

		trackId := sess.nowPlaying.Id
		s.fanOut(ctx, sess.participants, func(p *participant) error {
			state, err := p.adapter.CurrentState(ctx)
			if err != nil {
				return err
			}

			if state == nil || state.TrackId != trackId {
				if err := p.adapter.PlayTrack(ctx, trackId, hostOffset); err != nil {
					return err
				}
			}

			if target {
				return p.adapter.Resume(ctx)
			}
			return p.adapter.Pause(ctx)
		})
	}

	sess.isPlaying = target

	s.logger.InfoContext(ctx, "toggled playback", "session_id", sess.id, "is_playing", target)

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return TogglePlayResponse{
		IsPlaying: target,
		Snapshot:  snapshot,
	}, nil
}

type PlayTrackNowParams struct {
	SessionId string
	TrackId   string
}

type PlayTrackNowResponse struct {
	NowPlaying *domain.Track
	Snapshot   domain.Snapshot
}

// PlayTrackNow starts the track on every participant's device immediately,
// bypassing the queue.
func (s *service) PlayTrackNow(ctx context.Context, params *PlayTrackNowParams) (PlayTrackNowResponse, error) {
	sess, err := s.getSession(params.SessionId)
	if err != nil {
		return PlayTrackNowResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	host := sess.host()
	if host == nil {
		return PlayTrackNowResponse{}, ErrNoParticipants
	}

	track, err := host.adapter.FetchTrack(ctx, params.TrackId)
	if err != nil {
		return PlayTrackNowResponse{}, fmt.Errorf("failed to fetch track: %w", err)
	}

	sess.nowPlaying = &track
	sess.isPlaying = true

	s.fanOut(ctx, sess.participants, func(p *participant) error {
		return p.adapter.PlayTrack(ctx, track.Id, 0)
	})

	snapshot := sess.snapshot()
	s.storeSnapshot(ctx, sess.id, snapshot)

	return PlayTrackNowResponse{
		NowPlaying: sess.nowPlaying,
		Snapshot:   snapshot,
	}, nil
}

// Synchronize converges every non-host participant onto the host's track,
// offset and transport state.
func (s *service) Synchronize(ctx context.Context, sessionId string) error {
	sess, err := s.getSession(sessionId)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.synchronize(ctx, sess)
	return nil
}

// synchronize reads the host's remote state as ground truth and corrects
// each non-host participant: wrong track and offset are fixed with a single
// play call, then the transport state is matched. Position is not compared
// exactly; the correction is one-shot and drift of a few hundred
// milliseconds is accepted. Caller must hold sess.mu.
func (s *service) synchronize(ctx context.Context, sess *state) {
	if len(sess.participants) < 2 {
		return
	}
	nonHosts := sess.participants[1:]

	if sess.nowPlaying == nil {
		s.fanOut(ctx, nonHosts, func(p *participant) error {
			return p.adapter.Pause(ctx)
		})
		return
	}

	hostState, err := sess.host().adapter.CurrentState(ctx)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get host state", "session_id", sess.id, "error", err)
		return
	}
	if hostState == nil {
		return
	}

	s.fanOut(ctx, nonHosts, func(p *participant) error {
		state, err := p.adapter.CurrentState(ctx)
		if err != nil {
			return err
		}

		if state == nil || state.TrackId != hostState.TrackId {
			if err := p.adapter.PlayTrack(ctx, hostState.TrackId, hostState.ProgressMs); err != nil {
				return err
			}
		}

		if hostState.IsPlaying {
			return p.adapter.Resume(ctx)
		}
		return p.adapter.Pause(ctx)
	})
}

// fanOut applies op to every participant concurrently and waits for all of
// them. Failures are captured per participant and logged; one participant's
// broken device never blocks the others.
func (s *service) fanOut(ctx context.Context, participants []*participant, op func(p *participant) error) {
	var wg sync.WaitGroup
	errs := make([]error, len(participants))

	for i, p := range participants {
		wg.Add(1)
		go func(i int, p *participant) {
			defer wg.Done()
			errs[i] = op(p)
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			s.logger.InfoContext(ctx, "participant operation failed",
				"account_id", participants[i].accountId,
				"error", err,
			)
		}
	}
}
