package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"workhub/models"
)

var (
	ErrAccessDenied = errors.New("not a participant of this conversation")
	ErrSameUser     = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound = errors.New("user not found")
)

// ConversationSummary is one entry of a user's conversation directory:
// the conversation, the other participant, the newest message and the
// caller's unread count, recomputed from the read watermark on each load.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	Peer         *models.User        `json:"peer"`
	LastMessage  *models.Message     `json:"last_message"`
	UnreadCount  int64               `json:"unread_count"`
}

// FindOrCreateDirectConversation returns the direct conversation between
// the caller and otherID, creating it if none exists. The unique index on
// the sorted pair key makes concurrent creation from both sides converge
// on a single row: the loser of the race re-reads the winner's.
func FindOrCreateDirectConversation(ctx context.Context, db *gorm.DB, callerID, otherID uuid.UUID) (*models.Conversation, bool, error) {
	if callerID == otherID {
		return nil, false, ErrSameUser
	}

	pairKey := models.DirectPairKey(callerID, otherID)

	var existing models.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Where("pair_key = ?", pairKey).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var caller, other models.User
	if err := db.WithContext(ctx).First(&caller, "id = ?", callerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}
	if err := db.WithContext(ctx).First(&other, "id = ?", otherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	now := time.Now()
	conversation := models.Conversation{CreatorID: callerID, PairKey: pairKey}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conversation.ID, UserID: callerID, JoinedAt: now, LastReadAt: now},
			{ConversationID: conversation.ID, UserID: otherID, JoinedAt: now, LastReadAt: now},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		// Most likely the pair-key unique index rejected a concurrent
		// create; whoever won holds the canonical row.
		var winner models.Conversation
		if ferr := db.WithContext(ctx).
			Preload("Participants").
			Where("pair_key = ?", pairKey).
			First(&winner).Error; ferr == nil {
			return &winner, false, nil
		}
		return nil, false, err
	}

	conversation.Participants = []*models.User{&caller, &other}
	return &conversation, true, nil
}

// IsParticipant reports whether the user has a participant row for the
// conversation. This mirrors the row-level checks the database enforces
// on every message query; handlers use it to fail fast with a clear error.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// LoadMessages returns the conversation history oldest-first with sender
// profiles attached. It does not touch the caller's read watermark;
// marking a conversation read is a separate explicit operation.
func LoadMessages(ctx context.Context, db *gorm.DB, conversationID, callerID uuid.UUID, page, pageSize int) ([]models.Message, error) {
	ok, err := IsParticipant(ctx, db, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}

	query := db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at asc")
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage appends a text message and bumps the conversation's
// updated_at so the directory sorts it to the top. Blank or
// whitespace-only content is silently dropped: (nil, nil).
func SendMessage(ctx context.Context, db *gorm.DB, conversationID, senderID uuid.UUID, content string) (*models.Message, error) {
	if isBlank(content) {
		return nil, nil
	}

	ok, err := IsParticipant(ctx, db, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           models.MessageTypeText,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", message.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).First(&message.Sender, "id = ?", senderID).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// MarkConversationRead advances the caller's read watermark to now.
// Idempotent; calling it twice in a row is harmless.
func MarkConversationRead(ctx context.Context, db *gorm.DB, conversationID, callerID uuid.UUID) error {
	result := db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, callerID).
		Update("last_read_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccessDenied
	}
	return nil
}

// UnreadCount counts peer messages newer than the caller's watermark.
// The caller's own messages never count toward their own unread total.
func UnreadCount(ctx context.Context, db *gorm.DB, conversationID, callerID uuid.UUID) (int64, error) {
	var participant models.ConversationParticipant
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, callerID).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccessDenied
		}
		return 0, err
	}

	var count int64
	err = db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND created_at > ?",
			conversationID, callerID, participant.LastReadAt).
		Count(&count).Error
	return count, err
}

// ListConversations builds the caller's directory ordered by recent
// activity. Unread counts and last messages are recomputed per
// conversation; fine at direct-messaging scale.
func ListConversations(ctx context.Context, db *gorm.DB, callerID uuid.UUID) ([]ConversationSummary, error) {
	var conversations []models.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", callerID).
		Order("conversations.updated_at desc").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summary := ConversationSummary{Conversation: conversation}

		for _, participant := range conversation.Participants {
			if participant.ID != callerID {
				summary.Peer = participant
				break
			}
		}

		var last models.Message
		err := db.WithContext(ctx).
			Preload("Sender").
			Where("conversation_id = ?", conversation.ID).
			Order("created_at desc").
			First(&last).Error
		if err == nil {
			summary.LastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		unread, err := UnreadCount(ctx, db, conversation.ID, callerID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ParticipantIDs returns the user ids attached to a conversation; the
// realtime hub uses it to pick message recipients.
func ParticipantIDs(ctx context.Context, db *gorm.DB, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
