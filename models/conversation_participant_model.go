package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationParticipant is the join row between users and conversations.
// LastReadAt is the read watermark: every peer message created after it
// counts as unread for this user.
type ConversationParticipant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`

	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
}
