package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceBusy    = "busy"
	PresenceOffline = "offline"
)

// UserPresence is a singleton row per user, latest-write-wins. Rows are
// never deleted; status degrades to offline instead.
type UserPresence struct {
	UserID   uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	Status   string    `gorm:"size:20;not null;default:'offline'" json:"status"`
	LastSeen time.Time `gorm:"not null" json:"last_seen"`
}

func ValidPresenceStatus(status string) bool {
	switch status {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}
