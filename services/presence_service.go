package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"workhub/models"
)

var ErrInvalidStatus = errors.New("invalid presence status")

// offlineUserLimit bounds the offline tail of the online-users listing.
// The list is a sidebar convenience, not a complete directory.
const offlineUserLimit = 10

// OnlineUser is a user profile joined with their presence. Users without
// a presence row yet read as offline.
type OnlineUser struct {
	User     models.User `json:"user"`
	Status   string      `json:"status"`
	LastSeen time.Time   `json:"last_seen"`
}

// UpdatePresence upserts the user's presence row, latest write wins.
func UpdatePresence(ctx context.Context, db *gorm.DB, userID uuid.UUID, status string) (*models.UserPresence, error) {
	if !models.ValidPresenceStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	presence := models.UserPresence{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen"}),
		}).
		Create(&presence).Error
	if err != nil {
		return nil, err
	}
	return &presence, nil
}

// ListOnlineUsers returns every other active user with their presence,
// available statuses (online/away/busy) first, then a truncated tail of
// offline users.
func ListOnlineUsers(ctx context.Context, db *gorm.DB, callerID uuid.UUID) ([]OnlineUser, error) {
	var users []models.User
	err := db.WithContext(ctx).
		Where("id != ? AND is_active = ?", callerID, true).
		Order("full_name asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	var presences []models.UserPresence
	if err := db.WithContext(ctx).Find(&presences).Error; err != nil {
		return nil, err
	}
	byUser := make(map[uuid.UUID]models.UserPresence, len(presences))
	for _, p := range presences {
		byUser[p.UserID] = p
	}

	now := time.Now()
	var available, offline []OnlineUser
	for _, user := range users {
		entry := OnlineUser{User: user, Status: models.PresenceOffline, LastSeen: now}
		if p, ok := byUser[user.ID]; ok {
			entry.Status = p.Status
			entry.LastSeen = p.LastSeen
		}
		if entry.Status == models.PresenceOffline {
			offline = append(offline, entry)
		} else {
			available = append(available, entry)
		}
	}

	if len(offline) > offlineUserLimit {
		offline = offline[:offlineUserLimit]
	}
	return append(available, offline...), nil
}

// MarkStalePresenceOffline degrades every non-offline row whose last_seen
// is older than the threshold. Covers clients that vanished without an
// unregister (killed tab, lost network).
func MarkStalePresenceOffline(ctx context.Context, db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.WithContext(ctx).
		Model(&models.UserPresence{}).
		Where("status != ? AND last_seen < ?", models.PresenceOffline, cutoff).
		Update("status", models.PresenceOffline)
	return result.RowsAffected, result.Error
}
