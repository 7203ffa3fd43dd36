package chat

import (
	"sort"
	"sync"

	"github.com/tcriess/lightspeed-pagechat/rooms"
)

// PrivateChats records, per connection, the peers whose private thread is currently open in that
// connection's UI. It only gates notification events.
type PrivateChats struct {
	open map[string]map[string]struct{}
	sync.RWMutex
}

func NewPrivateChats() *PrivateChats {
	return &PrivateChats{open: make(map[string]map[string]struct{})}
}

func (p *PrivateChats) Open(connId, peer string) {
	p.Lock()
	defer p.Unlock()
	peers, ok := p.open[connId]
	if !ok {
		peers = make(map[string]struct{})
		p.open[connId] = peers
	}
	peers[rooms.CanonicalNickname(peer)] = struct{}{}
}

func (p *PrivateChats) Close(connId, peer string) {
	p.Lock()
	defer p.Unlock()
	peers, ok := p.open[connId]
	if !ok {
		return
	}
	delete(peers, rooms.CanonicalNickname(peer))
	if len(peers) == 0 {
		delete(p.open, connId)
	}
}

func (p *PrivateChats) IsOpen(connId, peer string) bool {
	p.RLock()
	defer p.RUnlock()
	_, ok := p.open[connId][rooms.CanonicalNickname(peer)]
	return ok
}

// Clear drops every open thread of the connection.
func (p *PrivateChats) Clear(connId string) {
	p.Lock()
	defer p.Unlock()
	delete(p.open, connId)
}

func (p *PrivateChats) Peers(connId string) []string {
	p.RLock()
	defer p.RUnlock()
	peers := make([]string, 0, len(p.open[connId]))
	for peer := range p.open[connId] {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}
