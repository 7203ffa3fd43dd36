package rooms

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tcriess/lightspeed-pagechat/types"
)

// CanonicalNickname is the form used for uniqueness checks and lookups. The display nickname is kept as chosen.
func CanonicalNickname(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

type Member struct {
	ConnId   string
	Nickname string
	JoinedAt time.Time
}

type presence struct {
	status       string
	lastActivity time.Time
	// swept is set when the status was demoted by the idle sweep rather than by the client
	swept bool
}

// Room holds the membership table and presence side information of one room. All access goes through the
// room's own lock, so mutations of different rooms never contend.
type Room struct {
	Id        string
	Url       string
	CreatedAt time.Time

	title    string
	members  map[string]*Member   // connId -> member
	byNick   map[string]string    // canonical nickname -> connId
	presence map[string]*presence // connId -> presence

	// closed is set once the directory removed the room; a closed room accepts no members
	closed bool

	sync.RWMutex
}

func newRoom(id, url, title string) *Room {
	return &Room{
		Id:        id,
		Url:       url,
		CreatedAt: time.Now(),
		title:     title,
		members:   make(map[string]*Member),
		byNick:    make(map[string]string),
		presence:  make(map[string]*presence),
	}
}

func (r *Room) Title() string {
	r.RLock()
	defer r.RUnlock()
	return r.title
}

func (r *Room) SetTitle(title string) {
	r.Lock()
	defer r.Unlock()
	r.title = title
}

// IsWebpage reports whether the room was derived from a page URL.
func (r *Room) IsWebpage() bool {
	return r.Url != ""
}

func (r *Room) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.members)
}

// addMember checks nickname uniqueness and inserts the member in one critical section.
func (r *Room) addMember(connId, nickname string) error {
	r.Lock()
	defer r.Unlock()
	if r.closed {
		return types.ErrRoomClosed
	}
	canonical := CanonicalNickname(nickname)
	if holder, ok := r.byNick[canonical]; ok && holder != connId {
		return types.ErrNicknameInUse
	}
	if prev, ok := r.members[connId]; ok {
		delete(r.byNick, CanonicalNickname(prev.Nickname))
	}
	now := time.Now()
	r.members[connId] = &Member{ConnId: connId, Nickname: nickname, JoinedAt: now}
	r.byNick[canonical] = connId
	r.presence[connId] = &presence{lastActivity: now}
	return nil
}

// removeMember returns the removed member (nil if connId was not a member) and the remaining member count.
func (r *Room) removeMember(connId string) (*Member, int) {
	r.Lock()
	defer r.Unlock()
	m, ok := r.members[connId]
	if !ok {
		return nil, len(r.members)
	}
	delete(r.members, connId)
	delete(r.presence, connId)
	if r.byNick[CanonicalNickname(m.Nickname)] == connId {
		delete(r.byNick, CanonicalNickname(m.Nickname))
	}
	return m, len(r.members)
}

func (r *Room) IsNicknameInUse(nickname string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.byNick[CanonicalNickname(nickname)]
	return ok
}

// ResolveConnection returns the connection id of the member with the given nickname (case-insensitive).
func (r *Room) ResolveConnection(nickname string) (string, bool) {
	r.RLock()
	defer r.RUnlock()
	connId, ok := r.byNick[CanonicalNickname(nickname)]
	return connId, ok
}

func (r *Room) Member(connId string) (Member, bool) {
	r.RLock()
	defer r.RUnlock()
	m, ok := r.members[connId]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// sortedMembers must be called with the lock held.
func (r *Room) sortedMembers() []*Member {
	members := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].Nickname < members[j].Nickname
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

// Nicknames returns the display nicknames in join order.
func (r *Room) Nicknames() []string {
	r.RLock()
	defer r.RUnlock()
	nicknames := make([]string, 0, len(r.members))
	for _, m := range r.sortedMembers() {
		nicknames = append(nicknames, m.Nickname)
	}
	return nicknames
}

// ConnIds returns the broadcast group of the room.
func (r *Room) ConnIds() []string {
	r.RLock()
	defer r.RUnlock()
	connIds := make([]string, 0, len(r.members))
	for connId := range r.members {
		connIds = append(connIds, connId)
	}
	return connIds
}

// Snapshot derives one presence record per current member.
func (r *Room) Snapshot() []types.PresenceRecord {
	r.RLock()
	defer r.RUnlock()
	records := make([]types.PresenceRecord, 0, len(r.members))
	for _, m := range r.sortedMembers() {
		rec := types.PresenceRecord{
			Nickname:     m.Nickname,
			ConnectionId: m.ConnId,
			Status:       types.StatusOnline,
			LastActivity: m.JoinedAt,
			JoinedAt:     m.JoinedAt,
		}
		if p, ok := r.presence[m.ConnId]; ok {
			if p.status != "" {
				rec.Status = p.status
			}
			rec.LastActivity = p.lastActivity
		}
		records = append(records, rec)
	}
	return records
}

func (r *Room) touchActivity(connId string, now time.Time) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.members[connId]; !ok {
		return types.ErrNotMember
	}
	p := r.presence[connId]
	p.lastActivity = now
	if p.swept {
		p.status = types.StatusActive
		p.swept = false
	}
	return nil
}

func (r *Room) setStatus(connId, status string, now time.Time) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.members[connId]; !ok {
		return types.ErrNotMember
	}
	p := r.presence[connId]
	p.status = status
	p.swept = false
	p.lastActivity = now
	return nil
}

// sweep demotes inactive members and reports whether any status changed. Statuses set explicitly by the
// client to idle or away are left alone.
func (r *Room) sweep(now time.Time, idleAfter, awayAfter time.Duration) bool {
	r.Lock()
	defer r.Unlock()
	changed := false
	for _, p := range r.presence {
		inactive := now.Sub(p.lastActivity)
		demotable := p.status == "" || p.status == types.StatusOnline || p.status == types.StatusActive || (p.swept && p.status == types.StatusIdle)
		if !demotable {
			continue
		}
		switch {
		case awayAfter > 0 && inactive >= awayAfter && p.status != types.StatusAway:
			p.status = types.StatusAway
		case idleAfter > 0 && inactive >= idleAfter && p.status != types.StatusIdle:
			p.status = types.StatusIdle
		default:
			continue
		}
		p.swept = true
		changed = true
	}
	return changed
}
