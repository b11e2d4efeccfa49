package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatorID uuid.UUID `gorm:"type:uuid;not null" json:"creator_id"`

	// Sorted "a:b" of the two participant ids. The unique index is what
	// guarantees at most one direct conversation per unordered pair even
	// when both sides create concurrently.
	PairKey string `gorm:"size:80;not null;uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []*User   `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`
	Messages     []Message `json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DirectPairKey builds the canonical pair key for two user ids,
// independent of argument order.
func DirectPairKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	if ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return strings.Join(ids, ":")
}
