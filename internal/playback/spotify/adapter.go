package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/tunespace/server/internal/domain"
)

var (
	ErrDeviceNotBound        = errors.New("device not bound")
	ErrDeviceTransferTimeout = errors.New("device transfer timed out")
)

const (
	defaultPollInterval = time.Second
	defaultBindTimeout  = 30 * time.Second
)

type Config struct {
	PollInterval time.Duration
	BindTimeout  time.Duration
}

// iPlayerClient is the slice of the Spotify Web API client the adapter uses.
// *spotify.Client satisfies it.
type iPlayerClient interface {
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
	PlayerDevices(ctx context.Context) ([]spotify.PlayerDevice, error)
	TransferPlayback(ctx context.Context, deviceId spotify.ID, play bool) error
	PlayOpt(ctx context.Context, opt *spotify.PlayOptions) error
	PauseOpt(ctx context.Context, opt *spotify.PlayOptions) error
	PlayerState(ctx context.Context, opts ...spotify.RequestOption) (*spotify.PlayerState, error)
	Seek(ctx context.Context, position int) error
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	GetTrack(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullTrack, error)
}

// Adapter issues remote playback commands against one participant's account
// and bound output device. It owns no session-level state; every operation
// is independent of other participants' adapters.
type Adapter struct {
	client       iPlayerClient
	logger       *slog.Logger
	credential   domain.Credential
	deviceId     string
	pollInterval time.Duration
	bindTimeout  time.Duration
}

func NewAdapter(credential domain.Credential, logger *slog.Logger, cfg *Config) *Adapter {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential.AccessToken,
		TokenType:   "Bearer",
	}))

	return newAdapter(spotify.New(httpClient), credential, logger, cfg)
}

func newAdapter(client iPlayerClient, credential domain.Credential, logger *slog.Logger, cfg *Config) *Adapter {
	a := Adapter{
		client:       client,
		logger:       logger,
		credential:   credential,
		pollInterval: defaultPollInterval,
		bindTimeout:  defaultBindTimeout,
	}
	if cfg != nil {
		if cfg.PollInterval > 0 {
			a.pollInterval = cfg.PollInterval
		}
		if cfg.BindTimeout > 0 {
			a.bindTimeout = cfg.BindTimeout
		}
	}

	return &a
}

// Authenticate confirms the supplied bearer token against the service and
// returns the credential as the service sees it.
func (a *Adapter) Authenticate(ctx context.Context) (domain.Credential, error) {
	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to confirm credential: %w", err)
	}

	return domain.Credential{
		AccessToken: a.credential.AccessToken,
		AccountId:   user.ID,
	}, nil
}

// BindDevice transfers playback to the device and waits until the device
// shows up in the active list. The transfer request is acknowledged before
// the device actually becomes active, so completion must be confirmed by
// polling; the wait is bounded and cancellable.
func (a *Adapter) BindDevice(ctx context.Context, deviceId string) error {
	if err := a.client.TransferPlayback(ctx, spotify.ID(deviceId), false); err != nil {
		return fmt.Errorf("failed to transfer playback: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.bindTimeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		devices, err := a.client.PlayerDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to get devices: %w", err)
		}

		for _, device := range devices {
			if device.ID == spotify.ID(deviceId) && device.Active {
				a.deviceId = deviceId
				return nil
			}
		}

		a.logger.DebugContext(ctx, "device not active yet", "device_id", deviceId)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrDeviceTransferTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PlayTrack starts the track on the bound device at the given offset.
func (a *Adapter) PlayTrack(ctx context.Context, trackId string, offsetMs int) error {
	if a.deviceId == "" {
		return ErrDeviceNotBound
	}

	deviceId := spotify.ID(a.deviceId)
	if err := a.client.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID:   &deviceId,
		URIs:       []spotify.URI{trackURI(trackId)},
		PositionMs: spotify.Numeric(offsetMs),
	}); err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	return nil
}

func (a *Adapter) Pause(ctx context.Context) error {
	return a.setPlaying(ctx, false)
}

func (a *Adapter) Resume(ctx context.Context) error {
	return a.setPlaying(ctx, true)
}

// setPlaying reads the remote transport state first and issues the mutation
// only on disagreement: the remote API errors when asked to enter the state
// it is already in.
func (a *Adapter) setPlaying(ctx context.Context, playing bool) error {
	state, err := a.client.PlayerState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get player state: %w", err)
	}

	if state == nil || !state.Device.Active {
		a.logger.DebugContext(ctx, "no active device", "account_id", a.credential.AccountId)
		return nil
	}

	if state.Playing == playing {
		return nil
	}

	opt := spotify.PlayOptions{DeviceID: &state.Device.ID}
	if playing {
		err = a.client.PlayOpt(ctx, &opt)
	} else {
		err = a.client.PauseOpt(ctx, &opt)
	}
	if err != nil {
		return fmt.Errorf("failed to update playing state: %w", err)
	}

	return nil
}

func (a *Adapter) Seek(ctx context.Context, offsetMs int) error {
	if err := a.client.Seek(ctx, offsetMs); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	return nil
}

// CurrentState returns the remote transport state, or nil if nothing is
// playing.
func (a *Adapter) CurrentState(ctx context.Context) (*domain.PlaybackState, error) {
	state, err := a.client.PlayerState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get player state: %w", err)
	}

	if state == nil || state.Item == nil {
		return nil, nil
	}

	return &domain.PlaybackState{
		TrackId:    string(state.Item.ID),
		ProgressMs: int(state.Progress),
		IsPlaying:  state.Playing,
	}, nil
}

func (a *Adapter) Search(ctx context.Context, query string) ([]domain.Track, error) {
	result, err := a.client.Search(ctx, query, spotify.SearchTypeTrack)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if result.Tracks == nil {
		return []domain.Track{}, nil
	}

	tracks := make([]domain.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, trackFromFull(&result.Tracks.Tracks[i]))
	}

	return tracks, nil
}

func (a *Adapter) FetchTrack(ctx context.Context, trackId string) (domain.Track, error) {
	track, err := a.client.GetTrack(ctx, spotify.ID(trackId))
	if err != nil {
		return domain.Track{}, fmt.Errorf("failed to get track: %w", err)
	}

	return trackFromFull(track), nil
}

func trackFromFull(t *spotify.FullTrack) domain.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}

	return domain.Track{
		Id:         string(t.ID),
		Title:      t.Name,
		Artists:    artists,
		DurationMs: int(t.TimeDuration() / time.Millisecond),
	}
}

func trackURI(trackId string) spotify.URI {
	return spotify.URI("spotify:track:" + trackId)
}
