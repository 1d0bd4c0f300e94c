package inmemory

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tunespace/server/internal/repository/connection"
)

type connInfo struct {
	sessionId string
	accountId string
}

type repo struct {
	mu       sync.RWMutex
	conns    map[*websocket.Conn]connInfo
	accounts map[string]*websocket.Conn
	sessions map[string]map[*websocket.Conn]struct{}
}

func NewRepo() *repo {
	return &repo{
		conns:    make(map[*websocket.Conn]connInfo),
		accounts: make(map[string]*websocket.Conn),
		sessions: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (r *repo) accountKey(sessionId, accountId string) string {
	return sessionId + ":" + accountId
}

func (r *repo) Add(conn *websocket.Conn, sessionId, accountId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return connection.ErrAlreadyExists
	}

	key := r.accountKey(sessionId, accountId)
	if old, ok := r.accounts[key]; ok {
		// reconnect: the newest connection wins
		r.removeLocked(old)
	}

	r.conns[conn] = connInfo{sessionId: sessionId, accountId: accountId}
	r.accounts[key] = conn

	sessionConns, ok := r.sessions[sessionId]
	if !ok {
		sessionConns = make(map[*websocket.Conn]struct{})
		r.sessions[sessionId] = sessionConns
	}
	sessionConns[conn] = struct{}{}

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		return connection.ErrNotFound
	}

	r.removeLocked(conn)
	return nil
}

func (r *repo) removeLocked(conn *websocket.Conn) {
	info, ok := r.conns[conn]
	if !ok {
		return
	}

	delete(r.conns, conn)
	delete(r.accounts, r.accountKey(info.sessionId, info.accountId))

	if sessionConns, ok := r.sessions[info.sessionId]; ok {
		delete(sessionConns, conn)
		if len(sessionConns) == 0 {
			delete(r.sessions, info.sessionId)
		}
	}
}

func (r *repo) GetParticipant(conn *websocket.Conn) (sessionId, accountId string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.conns[conn]
	if !ok {
		return "", "", connection.ErrNotFound
	}

	return info.sessionId, info.accountId, nil
}

func (r *repo) GetSessionConns(sessionId string) []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionConns := r.sessions[sessionId]
	conns := make([]*websocket.Conn, 0, len(sessionConns))
	for conn := range sessionConns {
		conns = append(conns, conn)
	}

	return conns
}
