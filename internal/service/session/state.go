package session

import (
	"sync"

	"github.com/tunespace/server/internal/domain"
)

type participant struct {
	accountId   string
	accessToken string
	deviceId    string
	adapter     PlaybackAdapter
}

// state is one session's aggregate: the shared queue, the now-playing track,
// the aggregate transport flag and the participant roster. The participant
// at index 0 is the host. All fields behind mu are mutated only by the
// service; adapters never touch them.
type state struct {
	id        string
	topic     string
	isPrivate bool

	mu           sync.Mutex
	queue        []domain.QueuedTrack
	nowPlaying   *domain.Track
	isPlaying    bool
	participants []*participant
}

func newState(id, topic string, isPrivate bool) *state {
	return &state{
		id:        id,
		topic:     topic,
		isPrivate: isPrivate,
		queue:     []domain.QueuedTrack{},
	}
}

func (st *state) host() *participant {
	if len(st.participants) == 0 {
		return nil
	}

	return st.participants[0]
}

func (st *state) findParticipant(accountId string) *participant {
	for _, p := range st.participants {
		if p.accountId == accountId {
			return p
		}
	}

	return nil
}

// removeParticipant removes the participant by account id and reports
// whether it was found and whether it was the host.
func (st *state) removeParticipant(accountId string) (found, wasHost bool) {
	for i, p := range st.participants {
		if p.accountId == accountId {
			st.participants = append(st.participants[:i], st.participants[i+1:]...)
			return true, i == 0
		}
	}

	return false, false
}

func (st *state) enqueue(entry domain.QueuedTrack) {
	st.queue = append(st.queue, entry)
}

// dequeue removes the entry with the given queue-entry id. No-op if absent.
func (st *state) dequeue(queueId string) bool {
	for i, entry := range st.queue {
		if entry.QueueId == queueId {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return true
		}
	}

	return false
}

// popFront removes and returns the front queue entry.
func (st *state) popFront() (domain.QueuedTrack, bool) {
	if len(st.queue) == 0 {
		return domain.QueuedTrack{}, false
	}

	entry := st.queue[0]
	st.queue = st.queue[1:]

	return entry, true
}

// reset clears all playback state and the roster. Used for the full
// teardown when the host leaves or the roster becomes empty.
func (st *state) reset() {
	st.queue = []domain.QueuedTrack{}
	st.nowPlaying = nil
	st.isPlaying = false
	st.participants = nil
}

func (st *state) snapshot() domain.Snapshot {
	queue := make([]domain.QueuedTrack, len(st.queue))
	copy(queue, st.queue)

	var nowPlaying *domain.Track
	if st.nowPlaying != nil {
		track := *st.nowPlaying
		nowPlaying = &track
	}

	return domain.Snapshot{
		SessionId:        st.id,
		Topic:            st.topic,
		IsPrivate:        st.isPrivate,
		NowPlaying:       nowPlaying,
		IsPlaying:        st.isPlaying,
		Queue:            queue,
		ParticipantCount: len(st.participants),
	}
}
