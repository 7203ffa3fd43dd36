package types

import "time"

const (
	StatusOnline = "online"
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusAway   = "away"
)

// IsValidStatus reports whether status may be set by a client.
func IsValidStatus(status string) bool {
	switch status {
	case StatusOnline, StatusActive, StatusIdle, StatusAway:
		return true
	}
	return false
}

// PresenceRecord is the derived view of one room member. It is rebuilt from the membership table on demand.
type PresenceRecord struct {
	Nickname     string    `json:"nickname"`
	ConnectionId string    `json:"connectionId"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// RoomSummary is the admin view of a room.
type RoomSummary struct {
	Id          string    `json:"id"`
	Url         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoomDetail is RoomSummary plus the presence snapshot.
type RoomDetail struct {
	RoomSummary
	Members []PresenceRecord `json:"members"`
}
