package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunespace/server/internal/domain"
	sessionRedis "github.com/tunespace/server/internal/repository/session/redis"
)

type playCall struct {
	trackId  string
	offsetMs int
}

type fakeAdapter struct {
	mu          sync.Mutex
	credential  domain.Credential
	authErr     error
	bindErr     error
	state       *domain.PlaybackState
	boundDevice string
	playCalls   []playCall
	pauseCalls  int
	resumeCalls int
	tracks      map[string]domain.Track
}

func (f *fakeAdapter) Authenticate(ctx context.Context) (domain.Credential, error) {
	if f.authErr != nil {
		return domain.Credential{}, f.authErr
	}
	return f.credential, nil
}

func (f *fakeAdapter) BindDevice(ctx context.Context, deviceId string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.boundDevice = deviceId
	return nil
}

func (f *fakeAdapter) PlayTrack(ctx context.Context, trackId string, offsetMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls = append(f.playCalls, playCall{trackId: trackId, offsetMs: offsetMs})
	f.state = &domain.PlaybackState{TrackId: trackId, ProgressMs: offsetMs, IsPlaying: true}
	return nil
}

func (f *fakeAdapter) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	if f.state != nil {
		f.state.IsPlaying = false
	}
	return nil
}

func (f *fakeAdapter) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	if f.state != nil {
		f.state.IsPlaying = true
	}
	return nil
}

func (f *fakeAdapter) Seek(ctx context.Context, offsetMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != nil {
		f.state.ProgressMs = offsetMs
	}
	return nil
}

func (f *fakeAdapter) CurrentState(ctx context.Context) (*domain.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == nil {
		return nil, nil
	}
	state := *f.state
	return &state, nil
}

func (f *fakeAdapter) Search(ctx context.Context, query string) ([]domain.Track, error) {
	tracks := make([]domain.Track, 0, len(f.tracks))
	for _, track := range f.tracks {
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (f *fakeAdapter) FetchTrack(ctx context.Context, trackId string) (domain.Track, error) {
	if track, ok := f.tracks[trackId]; ok {
		return track, nil
	}
	return domain.Track{Id: trackId, Title: "track " + trackId}, nil
}

func (f *fakeAdapter) setState(state *domain.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeAdapter) getPlayCalls() []playCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]playCall, len(f.playCalls))
	copy(calls, f.playCalls)
	return calls
}

func (f *fakeAdapter) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls = nil
	f.pauseCalls = 0
	f.resumeCalls = 0
}

// fakeFactory hands out one adapter per access token so tests can inspect
// the adapter a join created.
type fakeFactory struct {
	mu       sync.Mutex
	adapters map[string]*fakeAdapter
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{adapters: make(map[string]*fakeAdapter)}
}

func (f *fakeFactory) adapter(accessToken, accountId string) *fakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.adapters[accessToken]
	if !ok {
		a = &fakeAdapter{
			credential: domain.Credential{AccessToken: accessToken, AccountId: accountId},
			tracks:     make(map[string]domain.Track),
		}
		f.adapters[accessToken] = a
	}
	return a
}

func (f *fakeFactory) factory(credential domain.Credential) PlaybackAdapter {
	return f.adapter(credential.AccessToken, credential.AccountId)
}

func newTestService(t *testing.T) (*service, *fakeFactory) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionRepo := sessionRedis.NewRepo(rc, 5*time.Minute, time.Hour)

	factory := newFakeFactory()
	s := NewService(sessionRepo, factory.factory, slog.Default(), &Config{
		Secret:            "test-secret",
		ParticipantsLimit: 9,
		QueueLimit:        25,
	})

	return s, factory
}

func createTestSession(t *testing.T, s *service) string {
	t.Helper()

	resp, err := s.CreateSession(context.Background(), &CreateSessionParams{Topic: "listening party"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionId)

	return resp.SessionId
}

func join(t *testing.T, s *service, sessionId, accessToken, accountId, deviceId string) JoinResponse {
	t.Helper()

	resp, err := s.Join(context.Background(), &JoinParams{
		SessionId: sessionId,
		DeviceId:  deviceId,
		Credential: domain.Credential{
			AccessToken: accessToken,
			AccountId:   accountId,
		},
	})
	require.NoError(t, err)

	return resp
}

func TestJoinIsIdempotentByAccount(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)

	f.adapter("token-1", "alice")
	resp := join(t, s, sessionId, "token-1", "alice", "device-1")
	assert.Equal(t, "alice", resp.AccountId)
	assert.NotEmpty(t, resp.AuthToken)
	assert.Equal(t, 1, resp.Snapshot.ParticipantCount)

	resp = join(t, s, sessionId, "token-1", "alice", "device-2")
	assert.Equal(t, 1, resp.Snapshot.ParticipantCount, "rejoin must not duplicate the participant")
	assert.Equal(t, "device-2", f.adapter("token-1", "alice").boundDevice, "rejoin must rebind the device")
}

func TestRejoinSwapsRefreshedCredential(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	stale := f.adapter("token-1", "alice")
	fresh := f.adapter("token-2", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	resp := join(t, s, sessionId, "token-2", "alice", "device-2")
	assert.Equal(t, 1, resp.Snapshot.ParticipantCount)
	assert.Equal(t, "device-2", fresh.boundDevice, "rebind must go through the new adapter")
	assert.Equal(t, "device-1", stale.boundDevice)

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	assert.Empty(t, stale.getPlayCalls(), "stale adapter must no longer drive playback")
	require.Len(t, fresh.getPlayCalls(), 1)
	assert.Equal(t, playCall{trackId: "a1"}, fresh.getPlayCalls()[0])
}

func TestJoinRejectsUnconfirmedCredential(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)

	adapter := f.adapter("token-1", "alice")
	adapter.credential.AccessToken = "some-other-token"

	_, err := s.Join(context.Background(), &JoinParams{
		SessionId:  sessionId,
		DeviceId:   "device-1",
		Credential: domain.Credential{AccessToken: "token-1", AccountId: "alice"},
	})
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	snapshot, err := s.GetSnapshot(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.ParticipantCount, "failed join must not touch the roster")
}

func TestJoinRemovesParticipantOnBindFailure(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)

	adapter := f.adapter("token-1", "alice")
	adapter.bindErr = context.DeadlineExceeded

	_, err := s.Join(context.Background(), &JoinParams{
		SessionId:  sessionId,
		DeviceId:   "device-1",
		Credential: domain.Credential{AccessToken: "token-1", AccountId: "alice"},
	})
	require.Error(t, err)

	snapshot, err := s.GetSnapshot(context.Background(), sessionId)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.ParticipantCount)
}

func TestQueueFIFO(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	enqueueA, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	assert.Len(t, enqueueA.Queue, 1)

	enqueueB, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "b1"})
	require.NoError(t, err)
	assert.Len(t, enqueueB.Queue, 2)

	skipResp, err := s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	require.NotNil(t, skipResp.NowPlaying)
	assert.Equal(t, "a1", skipResp.NowPlaying.Id)
	require.Len(t, skipResp.Queue, 1)
	assert.Equal(t, "b1", skipResp.Queue[0].Track.Id)
	assert.True(t, skipResp.Snapshot.IsPlaying)

	skipResp, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	require.NotNil(t, skipResp.NowPlaying)
	assert.Equal(t, "b1", skipResp.NowPlaying.Id)
	assert.Empty(t, skipResp.Queue)
}

func TestSkipOnEmptyQueueLeavesStateUntouched(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	skipResp, err := s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	assert.Nil(t, skipResp.NowPlaying)
	assert.Empty(t, skipResp.Queue)
	require.NotNil(t, skipResp.Snapshot.NowPlaying, "empty-queue skip must not clear the playing track")
	assert.Equal(t, "a1", skipResp.Snapshot.NowPlaying.Id)
	assert.True(t, skipResp.Snapshot.IsPlaying)
}

func TestQueueEntryIdsAreUnique(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	first, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.AddedTrack.QueueId, second.AddedTrack.QueueId)

	dequeueResp, err := s.Dequeue(ctx, &DequeueParams{SessionId: sessionId, QueueId: first.AddedTrack.QueueId})
	require.NoError(t, err)
	require.Len(t, dequeueResp.Queue, 1)
	assert.Equal(t, second.AddedTrack.QueueId, dequeueResp.Queue[0].QueueId)
}

func TestDequeueUnknownIdIsNoop(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)

	dequeueResp, err := s.Dequeue(ctx, &DequeueParams{SessionId: sessionId, QueueId: "no-such-entry"})
	require.NoError(t, err)
	assert.Len(t, dequeueResp.Queue, 1)
}

func TestSkipFansOutToAllParticipants(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")
	join(t, s, sessionId, "token-2", "bob", "device-2")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	require.Len(t, alice.getPlayCalls(), 1)
	assert.Equal(t, playCall{trackId: "a1"}, alice.getPlayCalls()[0])
	require.NotEmpty(t, bob.getPlayCalls())
	assert.Equal(t, playCall{trackId: "a1"}, bob.getPlayCalls()[len(bob.getPlayCalls())-1])
}

func TestTogglePlayWithoutTrackOnlyFlipsFlag(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	toggleResp, err := s.TogglePlay(ctx, &TogglePlayParams{SessionId: sessionId})
	require.NoError(t, err)
	assert.True(t, toggleResp.IsPlaying)
	assert.Empty(t, alice.getPlayCalls(), "nothing to play, no play call expected")

	toggleResp, err = s.TogglePlay(ctx, &TogglePlayParams{SessionId: sessionId})
	require.NoError(t, err)
	assert.False(t, toggleResp.IsPlaying)
}

func TestTogglePlayPausesAndResumes(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	alice.resetCalls()

	toggleResp, err := s.TogglePlay(ctx, &TogglePlayParams{SessionId: sessionId})
	require.NoError(t, err)
	assert.False(t, toggleResp.IsPlaying)
	assert.Equal(t, 1, alice.pauseCalls)
	assert.Empty(t, alice.getPlayCalls(), "participant already on the right track")

	toggleResp, err = s.TogglePlay(ctx, &TogglePlayParams{SessionId: sessionId})
	require.NoError(t, err)
	assert.True(t, toggleResp.IsPlaying)
	assert.Equal(t, 1, alice.resumeCalls)
}

func TestSynchronizeConvergesStrayParticipant(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")
	join(t, s, sessionId, "token-2", "bob", "device-2")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "t1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	// host has progressed, bob wandered off to another track
	alice.setState(&domain.PlaybackState{TrackId: "t1", ProgressMs: 5000, IsPlaying: true})
	bob.setState(&domain.PlaybackState{TrackId: "t9", ProgressMs: 0, IsPlaying: true})
	bob.resetCalls()

	require.NoError(t, s.Synchronize(ctx, sessionId))

	calls := bob.getPlayCalls()
	require.Len(t, calls, 1, "exactly one correction expected")
	assert.Equal(t, playCall{trackId: "t1", offsetMs: 5000}, calls[0])
}

func TestSynchronizeMatchesHostPausedState(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")
	join(t, s, sessionId, "token-2", "bob", "device-2")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "t1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	alice.setState(&domain.PlaybackState{TrackId: "t1", ProgressMs: 3000, IsPlaying: false})
	bob.setState(&domain.PlaybackState{TrackId: "t1", ProgressMs: 2500, IsPlaying: true})
	bob.resetCalls()

	require.NoError(t, s.Synchronize(ctx, sessionId))

	assert.Empty(t, bob.getPlayCalls(), "same track needs no correction")
	assert.Equal(t, 1, bob.pauseCalls)
}

func TestJoinPrimesOntoLiveTrack(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	alice := f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "t1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	alice.setState(&domain.PlaybackState{TrackId: "t1", ProgressMs: 5000, IsPlaying: true})

	join(t, s, sessionId, "token-2", "bob", "device-2")

	calls := bob.getPlayCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, playCall{trackId: "t1", offsetMs: 5000}, calls[0])
}

func TestHostLeaveResetsSession(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")
	join(t, s, sessionId, "token-2", "bob", "device-2")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "b1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)
	bob.resetCalls()

	leaveResp, err := s.Leave(ctx, &LeaveParams{SessionId: sessionId, AccountId: "alice"})
	require.NoError(t, err)
	assert.True(t, leaveResp.IsSessionReset)
	assert.Nil(t, leaveResp.Snapshot.NowPlaying)
	assert.False(t, leaveResp.Snapshot.IsPlaying)
	assert.Empty(t, leaveResp.Snapshot.Queue)
	assert.Equal(t, 0, leaveResp.Snapshot.ParticipantCount)
	assert.Equal(t, 1, bob.pauseCalls, "remaining device must stop playing on teardown")
}

func TestNonHostLeaveKeepsSession(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	bob := f.adapter("token-2", "bob")
	join(t, s, sessionId, "token-1", "alice", "device-1")
	join(t, s, sessionId, "token-2", "bob", "device-2")

	_, err := s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	require.NoError(t, err)
	_, err = s.Skip(ctx, &SkipParams{SessionId: sessionId})
	require.NoError(t, err)

	leaveResp, err := s.Leave(ctx, &LeaveParams{SessionId: sessionId, AccountId: "bob"})
	require.NoError(t, err)
	assert.False(t, leaveResp.IsSessionReset)
	assert.Equal(t, 1, leaveResp.Snapshot.ParticipantCount)
	require.NotNil(t, leaveResp.Snapshot.NowPlaying)
	assert.Equal(t, "a1", leaveResp.Snapshot.NowPlaying.Id)
	assert.Equal(t, 1, bob.pauseCalls, "departing device must stop playing")
}

func TestOperationsRequireParticipants(t *testing.T) {
	s, _ := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	_, err := s.Search(ctx, &SearchParams{SessionId: sessionId, Query: "query"})
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = s.Enqueue(ctx, &EnqueueParams{SessionId: sessionId, TrackId: "a1"})
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = s.PlayTrackNow(ctx, &PlayTrackNowParams{SessionId: sessionId, TrackId: "a1"})
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestUnknownSession(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.GetSnapshot(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.Skip(context.Background(), &SkipParams{SessionId: "no-such-session"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinTicketIsConsumedOnce(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	ticketId, err := s.CreateJoinTicket(ctx, &CreateJoinTicketParams{
		SessionId:  sessionId,
		DeviceId:   "device-1",
		Credential: domain.Credential{AccessToken: "token-1", AccountId: "alice"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, ticketId)

	joinResp, err := s.JoinWithTicket(ctx, ticketId)
	require.NoError(t, err)
	assert.Equal(t, "alice", joinResp.AccountId)

	_, err = s.JoinWithTicket(ctx, ticketId)
	require.Error(t, err, "a ticket must not be usable twice")
}

func TestAuthTokenRoundTrip(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)

	f.adapter("token-1", "alice")
	resp := join(t, s, sessionId, "token-1", "alice", "device-1")

	claims, err := s.ParseAuthToken(resp.AuthToken)
	require.NoError(t, err)
	assert.Equal(t, sessionId, claims.SessionId)
	assert.Equal(t, "alice", claims.AccountId)

	_, err = s.ParseAuthToken("not-a-token")
	assert.Error(t, err)
}

func TestCloseSessionRemovesIt(t *testing.T) {
	s, f := newTestService(t)
	sessionId := createTestSession(t, s)
	ctx := context.Background()

	f.adapter("token-1", "alice")
	join(t, s, sessionId, "token-1", "alice", "device-1")

	require.NoError(t, s.CloseSession(ctx, sessionId))

	_, err := s.GetSnapshot(ctx, sessionId)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
