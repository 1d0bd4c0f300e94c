package domain

// Snapshot is the read-only session model rebroadcast to every client after
// a command. IsPlaying is only meaningful when NowPlaying is set.
type Snapshot struct {
	SessionId        string        `json:"session_id"`
	Topic            string        `json:"topic"`
	IsPrivate        bool          `json:"is_private"`
	NowPlaying       *Track        `json:"now_playing"`
	IsPlaying        bool          `json:"is_playing"`
	Queue            []QueuedTrack `json:"queue"`
	ParticipantCount int           `json:"participant_count"`
}
