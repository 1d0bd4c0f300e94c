package domain

// Credential is an opaque bearer token plus the account that owns it.
type Credential struct {
	AccessToken string `json:"access_token"`
	AccountId   string `json:"account_id"`
}

// PlaybackState is the transport state one participant's remote device
// reports. A nil *PlaybackState means nothing is playing.
type PlaybackState struct {
	TrackId    string `json:"track_id"`
	ProgressMs int    `json:"progress_ms"`
	IsPlaying  bool   `json:"is_playing"`
}
