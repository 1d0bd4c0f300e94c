package controller

import (
	"github.com/tunespace/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Handle("ALIVE", c.handleAlive)

	// catalog
	mux.Handle("SEARCH", c.handleSearch)

	// queue
	mux.Handle("ADD_QUEUE", c.handleAddQueue)
	mux.Handle("REMOVE_QUEUE", c.handleRemoveQueue)

	// playback
	mux.Handle("SKIP", c.handleSkip)
	mux.Handle("TOGGLE_PLAY", c.handleTogglePlay)
	mux.Handle("PLAY_NOW", c.handlePlayNow)
	mux.Handle("SYNC", c.handleSync)
	mux.Handle("GET_PLAYBACK", c.handleGetPlayback)

	// roster
	mux.Handle("LEAVE_SESSION", c.handleLeave)

	return mux
}
