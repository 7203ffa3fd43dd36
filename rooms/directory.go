package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-pagechat/types"
	"github.com/tcriess/lightspeed-pagechat/urlnorm"
	"github.com/tidwall/buntdb"
)

const (
	catalogPrefix   = "room:"
	catalogUrlIndex = "url"
)

// catalogEntry is the JSON document kept per room in the in-memory catalog. The "key" field holds the
// normalized url and is indexed for url lookups.
type catalogEntry struct {
	Id        string    `json:"id"`
	Url       string    `json:"url,omitempty"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory owns all rooms of the process. Live room state is kept in the rooms map, the buntdb catalog
// indexes room metadata by normalized url and keeps a stable listing order.
//
// Lock order: the directory lock is always taken before a room lock.
type Directory struct {
	defaultRoomId string
	rooms         map[string]*Room
	catalog       *buntdb.DB
	normalizer    *urlnorm.Normalizer
	logger        hclog.Logger

	sync.RWMutex
}

// NewDirectory creates a directory and its default room. The default room is never deleted.
func NewDirectory(defaultRoomId string, normalizer *urlnorm.Normalizer, logger hclog.Logger) (*Directory, error) {
	if defaultRoomId == "" {
		return nil, types.ErrEmptyRoomId
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if normalizer == nil {
		var err error
		normalizer, err = urlnorm.NewNormalizer(urlnorm.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
	}
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(catalogUrlIndex, catalogPrefix+"*", buntdb.IndexJSON("key"))
	if err != nil {
		db.Close()
		return nil, err
	}
	d := &Directory{
		defaultRoomId: defaultRoomId,
		rooms:         make(map[string]*Room),
		catalog:       db,
		normalizer:    normalizer,
		logger:        logger,
	}
	if _, err := d.CreateRoom(defaultRoomId, "", ""); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Directory) DefaultRoomId() string {
	return d.defaultRoomId
}

// Normalize exposes the directory's url normalizer so callers derive the same room keys.
func (d *Directory) Normalize(url string) (string, error) {
	return d.normalizer.Normalize(url)
}

// CreateRoom inserts an empty room. If the id already exists the existing room is returned and a warning logged.
func (d *Directory) CreateRoom(id, url, title string) (*Room, error) {
	room, created, err := d.ensureRoom(id, url, title)
	if err != nil {
		return nil, err
	}
	if !created {
		d.logger.Warn("room already exists", "room", id)
	}
	return room, nil
}

// EnsureRoom returns the room with the given id, creating it if necessary.
func (d *Directory) EnsureRoom(id, url, title string) (*Room, error) {
	room, _, err := d.ensureRoom(id, url, title)
	return room, err
}

func (d *Directory) ensureRoom(id, url, title string) (*Room, bool, error) {
	if id == "" {
		d.logger.Error("cannot create room without id")
		return nil, false, types.ErrEmptyRoomId
	}
	d.Lock()
	defer d.Unlock()
	if room, ok := d.rooms[id]; ok {
		return room, false, nil
	}
	entry := catalogEntry{Id: id, Url: url}
	if url != "" {
		key, err := d.normalizer.Normalize(url)
		if err != nil {
			d.logger.Warn("could not normalize room url", "room", id, "url", url, "error", err)
		} else {
			entry.Key = key
		}
	}
	room := newRoom(id, url, title)
	entry.CreatedAt = room.CreatedAt
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, false, err
	}
	err = d.catalog.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(catalogPrefix+id, string(raw), nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("could not store room %s in catalog: %w", id, err)
	}
	d.rooms[id] = room
	d.logger.Debug("room created", "room", id, "url", url)
	return room, true, nil
}

func (d *Directory) GetRoom(id string) (*Room, bool) {
	d.RLock()
	defer d.RUnlock()
	room, ok := d.rooms[id]
	return room, ok
}

// GetRoomByUrl finds the room whose stored url normalizes to the same key as url.
func (d *Directory) GetRoomByUrl(url string) (*Room, bool) {
	key, err := d.normalizer.Normalize(url)
	if err != nil {
		d.logger.Debug("could not normalize lookup url", "url", url, "error", err)
		return nil, false
	}
	pivot, err := json.Marshal(catalogEntry{Key: key})
	if err != nil {
		return nil, false
	}
	d.RLock()
	defer d.RUnlock()
	var id string
	err = d.catalog.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual(catalogUrlIndex, string(pivot), func(k, v string) bool {
			entry := catalogEntry{}
			if err := json.Unmarshal([]byte(v), &entry); err != nil {
				return true
			}
			if entry.Key == key {
				id = entry.Id
				return false
			}
			return true
		})
	})
	if err != nil || id == "" {
		return nil, false
	}
	room, ok := d.rooms[id]
	return room, ok
}

// DeleteIfEmpty removes the room if it has no members and is not the default room.
func (d *Directory) DeleteIfEmpty(id string) bool {
	if id == d.defaultRoomId {
		return false
	}
	d.Lock()
	defer d.Unlock()
	room, ok := d.rooms[id]
	if !ok {
		return false
	}
	room.Lock()
	if len(room.members) > 0 {
		room.Unlock()
		return false
	}
	room.closed = true
	room.Unlock()
	delete(d.rooms, id)
	err := d.catalog.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(catalogPrefix + id)
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		d.logger.Error("could not remove room from catalog", "room", id, "error", err)
	}
	d.logger.Debug("room deleted", "room", id)
	return true
}

// AddMember inserts connId under nickname into an existing room.
func (d *Directory) AddMember(roomId, connId, nickname string) error {
	room, ok := d.GetRoom(roomId)
	if !ok {
		return types.ErrRoomNotFound
	}
	return room.addMember(connId, nickname)
}

// Join creates the room if needed and adds the member. A room that is deleted between lookup and insertion
// is recreated once.
func (d *Directory) Join(roomId, url, title, connId, nickname string) (*Room, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var room *Room
		room, err = d.EnsureRoom(roomId, url, title)
		if err != nil {
			return nil, err
		}
		err = room.addMember(connId, nickname)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, types.ErrRoomClosed) {
			return nil, err
		}
		d.logger.Debug("room closed during join, retrying", "room", roomId)
	}
	return nil, err
}

// RemoveMember deletes the membership of connId and removes the room if it is now empty. It returns the
// removed member (nil if there was none) and the number of remaining members.
func (d *Directory) RemoveMember(roomId, connId string) (*Member, int) {
	room, ok := d.GetRoom(roomId)
	if !ok {
		return nil, 0
	}
	member, remaining := room.removeMember(connId)
	if member != nil && remaining == 0 {
		d.DeleteIfEmpty(roomId)
	}
	return member, remaining
}

func (d *Directory) IsNicknameInUse(roomId, nickname string) bool {
	room, ok := d.GetRoom(roomId)
	if !ok {
		return false
	}
	return room.IsNicknameInUse(nickname)
}

func (d *Directory) ResolveConnectionByNickname(roomId, nickname string) (string, bool) {
	room, ok := d.GetRoom(roomId)
	if !ok {
		return "", false
	}
	return room.ResolveConnection(nickname)
}

func (d *Directory) Snapshot(roomId string) ([]types.PresenceRecord, error) {
	room, ok := d.GetRoom(roomId)
	if !ok {
		return nil, types.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// TouchActivity records activity for a current member. Stale updates for non-members are ignored.
func (d *Directory) TouchActivity(roomId, connId string) error {
	room, ok := d.GetRoom(roomId)
	if !ok {
		d.logger.Warn("activity for unknown room", "room", roomId, "conn", connId)
		return types.ErrRoomNotFound
	}
	err := room.touchActivity(connId, time.Now())
	if err != nil {
		d.logger.Warn("activity for non-member ignored", "room", roomId, "conn", connId)
	}
	return err
}

// SetStatus records a status update for a current member. Stale updates for non-members are ignored.
func (d *Directory) SetStatus(roomId, connId, status string) error {
	room, ok := d.GetRoom(roomId)
	if !ok {
		d.logger.Warn("status for unknown room", "room", roomId, "conn", connId)
		return types.ErrRoomNotFound
	}
	err := room.setStatus(connId, status, time.Now())
	if err != nil {
		d.logger.Warn("status for non-member ignored", "room", roomId, "conn", connId)
	}
	return err
}

// SweepIdle demotes inactive visitors of webpage rooms and returns the ids of rooms whose presence changed.
func (d *Directory) SweepIdle(now time.Time, idleAfter, awayAfter time.Duration) []string {
	d.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		if room.IsWebpage() {
			rooms = append(rooms, room)
		}
	}
	d.RUnlock()
	changed := make([]string, 0)
	for _, room := range rooms {
		if room.sweep(now, idleAfter, awayAfter) {
			changed = append(changed, room.Id)
		}
	}
	return changed
}

// List returns a summary of all rooms ordered by id.
func (d *Directory) List() []types.RoomSummary {
	d.RLock()
	defer d.RUnlock()
	summaries := make([]types.RoomSummary, 0, len(d.rooms))
	err := d.catalog.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, v string) bool {
			entry := catalogEntry{}
			if err := json.Unmarshal([]byte(v), &entry); err != nil {
				d.logger.Error("could not decode catalog entry", "key", k, "error", err)
				return true
			}
			room, ok := d.rooms[entry.Id]
			if !ok {
				return true
			}
			summaries = append(summaries, summarize(room))
			return true
		})
	})
	if err != nil {
		d.logger.Error("could not list rooms", "error", err)
	}
	return summaries
}

// Detail returns the summary and presence snapshot of one room.
func (d *Directory) Detail(id string) (types.RoomDetail, error) {
	room, ok := d.GetRoom(id)
	if !ok {
		return types.RoomDetail{}, types.ErrRoomNotFound
	}
	return types.RoomDetail{
		RoomSummary: summarize(room),
		Members:     room.Snapshot(),
	}, nil
}

func summarize(room *Room) types.RoomSummary {
	return types.RoomSummary{
		Id:          room.Id,
		Url:         room.Url,
		Title:       room.Title(),
		MemberCount: room.Count(),
		CreatedAt:   room.CreatedAt,
	}
}

func (d *Directory) Len() int {
	d.RLock()
	defer d.RUnlock()
	return len(d.rooms)
}

func (d *Directory) Close() error {
	return d.catalog.Close()
}
