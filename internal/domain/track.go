package domain

// Track is an immutable catalog value. It is sourced from the streaming
// service and never mutated locally.
type Track struct {
	Id         string   `json:"id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	DurationMs int      `json:"duration_ms"`
}

// QueuedTrack is a Track plus a locally generated queue-entry id. The entry
// id is distinct from the track id because the same track may be queued more
// than once; entry ids are unique for the lifetime of a session's queue.
type QueuedTrack struct {
	QueueId string `json:"queue_id"`
	Track   Track  `json:"track"`
}
