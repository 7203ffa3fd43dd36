package chat

import "sync"

// Session is the per-connection state. A session is Bound while RoomId is set.
type Session struct {
	ConnId           string
	RoomId           string
	Nickname         string
	IsWebpageVisitor bool

	// serializes the events of one connection
	mu sync.Mutex
}

func (s *Session) bound() bool {
	return s.RoomId != ""
}

func (s *Session) bind(roomId, nickname string, visitor bool) {
	s.RoomId = roomId
	s.Nickname = nickname
	s.IsWebpageVisitor = visitor
}

func (s *Session) unbind() {
	s.RoomId = ""
	s.Nickname = ""
	s.IsWebpageVisitor = false
}

type sessionTable struct {
	sessions map[string]*Session
	sync.RWMutex
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*Session)}
}

// getOrCreate returns the session of connId, creating an unbound one on first use.
func (t *sessionTable) getOrCreate(connId string) *Session {
	t.RLock()
	s, ok := t.sessions[connId]
	t.RUnlock()
	if ok {
		return s
	}
	t.Lock()
	defer t.Unlock()
	if s, ok := t.sessions[connId]; ok {
		return s
	}
	s = &Session{ConnId: connId}
	t.sessions[connId] = s
	return s
}

func (t *sessionTable) get(connId string) (*Session, bool) {
	t.RLock()
	defer t.RUnlock()
	s, ok := t.sessions[connId]
	return s, ok
}

func (t *sessionTable) remove(connId string) {
	t.Lock()
	defer t.Unlock()
	delete(t.sessions, connId)
}
