// Package chat implements the session coordinator: it binds connections to rooms, interprets inbound events
// and fans outbound events out to single connections or whole rooms.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/folkengine/goname"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/tcriess/lightspeed-pagechat/rooms"
	"github.com/tcriess/lightspeed-pagechat/types"
)

// Emitter delivers one outbound event to one connection. Delivery is best-effort: implementations must not
// block and may drop events for slow or gone connections.
type Emitter interface {
	Emit(connId, event string, payload interface{})
}

// Options tune the coordinator. The zero value is usable.
type Options struct {
	// DisablePrivateFallback turns off the room-wide broadcast of private messages whose recipient cannot be
	// resolved. The sender is notified either way.
	DisablePrivateFallback bool
}

type Coordinator struct {
	directory    *rooms.Directory
	emitter      Emitter
	sessions     *sessionTable
	privateChats *PrivateChats
	options      Options
	logger       hclog.Logger

	cronRunner *cron.Cron
}

func NewCoordinator(directory *rooms.Directory, emitter Emitter, options Options, logger hclog.Logger) *Coordinator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Coordinator{
		directory:    directory,
		emitter:      emitter,
		sessions:     newSessionTable(),
		privateChats: NewPrivateChats(),
		options:      options,
		logger:       logger,
	}
}

// Connect registers an unbound session for a new connection.
func (c *Coordinator) Connect(connId string) {
	c.sessions.getOrCreate(connId)
	c.logger.Debug("connection registered", "conn", connId)
}

// Session returns a copy of the connection's session state.
func (c *Coordinator) Session(connId string) (Session, bool) {
	s, ok := c.sessions.get(connId)
	if !ok {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{ConnId: s.ConnId, RoomId: s.RoomId, Nickname: s.Nickname, IsWebpageVisitor: s.IsWebpageVisitor}, true
}

func (c *Coordinator) PrivateChats() *PrivateChats {
	return c.privateChats
}

// HandleMessage decodes a raw websocket frame and dispatches it.
func (c *Coordinator) HandleMessage(connId string, raw []byte) {
	name, data, err := unmarshalEnvelope(raw)
	if err != nil {
		c.logger.Warn("could not unmarshal ws message", "conn", connId, "error", err)
		return
	}
	c.HandleEvent(connId, name, data)
}

// HandleEvent validates one inbound event and applies it. Malformed events are dropped with a log entry.
func (c *Coordinator) HandleEvent(connId, name string, data map[string]interface{}) {
	event, err := decodeEvent(name, data)
	if err != nil {
		c.logger.Warn("dropping invalid event", "conn", connId, "event", name, "error", err)
		return
	}
	s := c.sessions.getOrCreate(connId)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered from panic while handling event", "conn", connId, "event", name, "panic", r)
			c.emitError(connId, "internal error")
		}
	}()

	switch ev := event.(type) {
	case *types.JoinEvent:
		c.join(s, ev)
	case *types.JoinWebpageEvent:
		c.joinWebpage(s, ev)
	case *types.SendMessageEvent:
		c.sendMessage(s, ev)
	case *types.SendPrivateEvent:
		c.sendPrivate(s, ev)
	case *types.SetTypingEvent:
		c.setTyping(s, ev)
	case *types.SetPrivateChatOpenEvent:
		c.setPrivateChatOpen(s, ev)
	case *types.SetStatusEvent:
		c.setStatus(s, ev)
	case *types.RoomEvent:
		if name == types.EventRequestVisitors {
			c.requestVisitors(s, ev)
		} else {
			c.heartbeat(s, ev)
		}
	}
}

// Disconnect clears the private chat state and leaves the bound room.
func (c *Coordinator) Disconnect(connId string) {
	s, ok := c.sessions.get(connId)
	c.privateChats.Clear(connId)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.bound() {
		c.leave(s)
	}
	s.mu.Unlock()
	c.sessions.remove(connId)
	c.logger.Debug("connection removed", "conn", connId)
}

func (c *Coordinator) join(s *Session, ev *types.JoinEvent) {
	if s.bound() {
		c.leave(s)
	}
	room, err := c.directory.Join(ev.RoomId, "", "", s.ConnId, ev.Nickname)
	if err != nil {
		c.joinFailed(s, ev.RoomId, ev.Nickname, err)
		return
	}
	s.bind(room.Id, ev.Nickname, false)
	c.logger.Info("user joined room", "room", room.Id, "nickname", ev.Nickname, "conn", s.ConnId)

	msg := types.NewSystemMessage(room.Id, ev.Nickname, fmt.Sprintf("%s joined the room", ev.Nickname), types.MessageTypeJoined)
	c.broadcast(room, types.EventUserJoined, msg)
	count := room.Count()
	c.broadcast(room, types.EventMemberCount, types.CountPayload{RoomId: room.Id, Count: count})
	c.emit(s.ConnId, types.EventMemberList, types.MemberListPayload{RoomId: room.Id, Nicknames: room.Nicknames()})
	c.emit(s.ConnId, types.EventJoined, types.JoinedPayload{RoomId: room.Id, Nickname: ev.Nickname, Count: count})
}

func (c *Coordinator) joinWebpage(s *Session, ev *types.JoinWebpageEvent) {
	roomId, err := c.directory.Normalize(ev.Url)
	if err != nil {
		c.logger.Warn("could not normalize page url", "conn", s.ConnId, "url", ev.Url, "error", err)
		c.emitError(s.ConnId, "invalid page url")
		return
	}
	if s.bound() {
		c.leave(s)
	}
	if existing, ok := c.directory.GetRoomByUrl(ev.Url); ok {
		roomId = existing.Id
	}
	room, err := c.directory.Join(roomId, ev.Url, ev.PageTitle, s.ConnId, ev.Nickname)
	if err != nil {
		c.joinFailed(s, roomId, ev.Nickname, err)
		return
	}
	if ev.PageTitle != "" {
		room.SetTitle(ev.PageTitle)
	}
	s.bind(room.Id, ev.Nickname, true)
	c.logger.Info("visitor joined page", "room", room.Id, "nickname", ev.Nickname, "conn", s.ConnId)

	msg := types.NewSystemMessage(room.Id, ev.Nickname, fmt.Sprintf("%s is now browsing this page", ev.Nickname), types.MessageTypeJoined)
	c.broadcast(room, types.EventVisitorJoined, msg)
	count := room.Count()
	c.broadcast(room, types.EventVisitorCount, types.CountPayload{RoomId: room.Id, Count: count})
	c.emit(s.ConnId, types.EventVisitorList, types.VisitorListPayload{RoomId: room.Id, Visitors: room.Snapshot()})
	c.emit(s.ConnId, types.EventRoomInfo, types.RoomInfo{
		RoomId:       room.Id,
		Url:          room.Url,
		Title:        room.Title(),
		VisitorCount: count,
	})
	c.emit(s.ConnId, types.EventJoined, types.JoinedPayload{RoomId: room.Id, Nickname: ev.Nickname, Count: count})
}

// joinFailed reports a failed join. The session stays unbound.
func (c *Coordinator) joinFailed(s *Session, roomId, nickname string, err error) {
	if errors.Is(err, types.ErrNicknameInUse) {
		c.logger.Info("nickname already in use", "room", roomId, "nickname", nickname, "conn", s.ConnId)
		c.emit(s.ConnId, types.EventNicknameError, types.NicknameErrorPayload{
			Message:    fmt.Sprintf("nickname %q is already in use in this room", nickname),
			Nickname:   nickname,
			Suggestion: c.suggestNickname(roomId, nickname),
		})
		return
	}
	c.logger.Error("could not join room", "room", roomId, "nickname", nickname, "conn", s.ConnId, "error", err)
	c.emitError(s.ConnId, "could not join room")
}

// nameGenerator produces candidate nicknames for suggestions.
var nameGenerator = func() string {
	return goname.New(goname.FantasyMap).FirstLast()
}

func (c *Coordinator) suggestNickname(roomId, nickname string) string {
	for i := 0; i < 5; i++ {
		candidate := nameGenerator()
		if candidate != "" && !c.directory.IsNicknameInUse(roomId, candidate) {
			return candidate
		}
	}
	return ""
}

// leave removes the session from its room and notifies the remaining members. Must be called with the
// session lock held.
func (c *Coordinator) leave(s *Session) {
	roomId, nickname, visitor := s.RoomId, s.Nickname, s.IsWebpageVisitor
	member, _ := c.directory.RemoveMember(roomId, s.ConnId)
	c.privateChats.Clear(s.ConnId)
	s.unbind()
	if member == nil {
		c.logger.Warn("leaving room without membership", "room", roomId, "conn", s.ConnId)
		return
	}
	c.logger.Info("user left room", "room", roomId, "nickname", nickname, "conn", s.ConnId)
	room, ok := c.directory.GetRoom(roomId)
	if !ok {
		// the room was removed, nobody is left to notify
		return
	}
	if visitor {
		msg := types.NewSystemMessage(roomId, nickname, fmt.Sprintf("%s is no longer browsing this page", nickname), types.MessageTypeLeft)
		c.broadcast(room, types.EventVisitorLeft, msg)
		c.broadcast(room, types.EventVisitorCount, types.CountPayload{RoomId: roomId, Count: room.Count()})
		return
	}
	msg := types.NewSystemMessage(roomId, nickname, fmt.Sprintf("%s left the room", nickname), types.MessageTypeLeft)
	c.broadcast(room, types.EventUserLeft, msg)
	c.broadcast(room, types.EventMemberCount, types.CountPayload{RoomId: roomId, Count: room.Count()})
}

// boundRoom returns the room the session is bound to if it matches roomId.
func (c *Coordinator) boundRoom(s *Session, roomId string) (*rooms.Room, error) {
	if !s.bound() || s.RoomId != roomId {
		return nil, types.ErrNotBound
	}
	room, ok := c.directory.GetRoom(roomId)
	if !ok {
		return nil, types.ErrRoomNotFound
	}
	return room, nil
}

func (c *Coordinator) newUserMessage(s *Session, roomId, text, messageType string) *types.Message {
	msg := &types.Message{
		RoomId:             roomId,
		Nickname:           s.Nickname,
		Text:               text,
		Timestamp:          time.Now(),
		Type:               messageType,
		SenderConnectionId: s.ConnId,
	}
	if err := msg.CreateId(); err != nil {
		c.logger.Error("could not hash message", "error", err)
	}
	return msg
}

func (c *Coordinator) sendMessage(s *Session, ev *types.SendMessageEvent) {
	room, err := c.boundRoom(s, ev.RoomId)
	if err != nil {
		c.logger.Warn("dropping message", "room", ev.RoomId, "conn", s.ConnId, "error", err)
		return
	}
	if ev.Type != "" && ev.Type != types.MessageTypeUser {
		c.logger.Debug("public message type downgraded", "type", ev.Type, "conn", s.ConnId)
	}
	msg := c.newUserMessage(s, room.Id, ev.Text, types.MessageTypeUser)
	if s.IsWebpageVisitor {
		_ = c.directory.TouchActivity(room.Id, s.ConnId)
	}
	c.broadcast(room, types.EventChatMessage, msg)
}

func (c *Coordinator) sendPrivate(s *Session, ev *types.SendPrivateEvent) {
	room, err := c.boundRoom(s, ev.RoomId)
	if err != nil {
		c.logger.Warn("dropping private message", "room", ev.RoomId, "conn", s.ConnId, "error", err)
		return
	}
	msg := c.newUserMessage(s, room.Id, ev.Text, types.MessageTypePrivate)
	msg.Recipient = ev.Recipient
	if s.IsWebpageVisitor {
		_ = c.directory.TouchActivity(room.Id, s.ConnId)
	}

	recipientConn, ok := room.ResolveConnection(ev.Recipient)
	if ok {
		if recipientConn != s.ConnId {
			notify := !c.privateChats.IsOpen(recipientConn, s.Nickname)
			c.emit(recipientConn, types.EventPrivateMessage, types.PrivateMessagePayload{Message: msg, IsNotification: notify})
			if notify {
				c.emit(recipientConn, types.EventPrivateNotification, msg)
			}
		}
		c.emit(s.ConnId, types.EventPrivateMessage, types.PrivateMessagePayload{Message: msg})
		return
	}

	c.logger.Warn("private message recipient not found", "room", room.Id, "recipient", ev.Recipient, "conn", s.ConnId)
	fallback := *msg
	reason := "recipient not found, message was not delivered"
	if !c.options.DisablePrivateFallback {
		fallback.IsBroadcast = true
		fallback.BroadcastPrivate = true
		c.broadcast(room, types.EventPrivateMessage, types.PrivateMessagePayload{Message: &fallback})
		reason = "recipient not found, message was broadcast to the room"
	}
	c.emit(s.ConnId, types.EventPrivateFallback, types.PrivateFallbackPayload{
		Recipient: ev.Recipient,
		Reason:    reason,
		Message:   &fallback,
	})
}

func (c *Coordinator) setTyping(s *Session, ev *types.SetTypingEvent) {
	room, err := c.boundRoom(s, ev.RoomId)
	if err != nil {
		c.logger.Debug("dropping typing status", "room", ev.RoomId, "conn", s.ConnId, "error", err)
		return
	}
	if s.IsWebpageVisitor {
		_ = c.directory.TouchActivity(room.Id, s.ConnId)
	}
	payload := types.TypingStatusPayload{RoomId: room.Id, Nickname: s.Nickname, IsTyping: ev.IsTyping}
	for _, connId := range room.ConnIds() {
		if connId == s.ConnId {
			continue
		}
		c.emit(connId, types.EventTypingStatus, payload)
	}
}

func (c *Coordinator) setPrivateChatOpen(s *Session, ev *types.SetPrivateChatOpenEvent) {
	if ev.IsOpen {
		c.privateChats.Open(s.ConnId, ev.Recipient)
	} else {
		c.privateChats.Close(s.ConnId, ev.Recipient)
	}
}

func (c *Coordinator) setStatus(s *Session, ev *types.SetStatusEvent) {
	room, err := c.boundRoom(s, ev.RoomId)
	if err != nil || !s.IsWebpageVisitor {
		c.logger.Debug("dropping status update", "room", ev.RoomId, "conn", s.ConnId, "error", err)
		return
	}
	if err := c.directory.SetStatus(room.Id, s.ConnId, ev.Status); err != nil {
		return
	}
	c.broadcast(room, types.EventVisitorList, types.VisitorListPayload{RoomId: room.Id, Visitors: room.Snapshot()})
}

func (c *Coordinator) heartbeat(s *Session, ev *types.RoomEvent) {
	room, err := c.boundRoom(s, ev.RoomId)
	if err != nil || !s.IsWebpageVisitor {
		c.logger.Debug("dropping heartbeat", "room", ev.RoomId, "conn", s.ConnId, "error", err)
		return
	}
	_ = c.directory.TouchActivity(room.Id, s.ConnId)
}

func (c *Coordinator) requestVisitors(s *Session, ev *types.RoomEvent) {
	room, ok := c.directory.GetRoom(ev.RoomId)
	if !ok {
		c.logger.Debug("visitor list requested for unknown room", "room", ev.RoomId, "conn", s.ConnId)
		return
	}
	c.emit(s.ConnId, types.EventVisitorList, types.VisitorListPayload{RoomId: room.Id, Visitors: room.Snapshot()})
}

// SweepPresence demotes inactive visitors and re-broadcasts the presence list of every changed room.
func (c *Coordinator) SweepPresence(now time.Time, idleAfter, awayAfter time.Duration) {
	for _, roomId := range c.directory.SweepIdle(now, idleAfter, awayAfter) {
		room, ok := c.directory.GetRoom(roomId)
		if !ok {
			continue
		}
		c.broadcast(room, types.EventVisitorList, types.VisitorListPayload{RoomId: room.Id, Visitors: room.Snapshot()})
	}
}

// StartPresenceSweep runs SweepPresence according to the cron spec until Stop is called.
func (c *Coordinator) StartPresenceSweep(spec string, idleAfter, awayAfter time.Duration) error {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := cronRunner.AddFunc(spec, func() {
		c.SweepPresence(time.Now(), idleAfter, awayAfter)
	})
	if err != nil {
		return fmt.Errorf("invalid presence sweep spec %q: %w", spec, err)
	}
	c.cronRunner = cronRunner
	cronRunner.Start()
	c.logger.Debug("presence sweep started", "spec", spec)
	return nil
}

// Stop halts the presence sweep and waits for a running sweep to finish.
func (c *Coordinator) Stop() {
	if c.cronRunner == nil {
		return
	}
	<-c.cronRunner.Stop().Done()
	c.cronRunner = nil
}

func (c *Coordinator) emit(connId, event string, payload interface{}) {
	c.emitter.Emit(connId, event, payload)
}

func (c *Coordinator) emitError(connId, message string) {
	c.emit(connId, types.EventGenericError, types.GenericErrorPayload{Message: message})
}

// broadcast sends the event to every current member of the room.
func (c *Coordinator) broadcast(room *rooms.Room, event string, payload interface{}) {
	for _, connId := range room.ConnIds() {
		c.emit(connId, event, payload)
	}
}
