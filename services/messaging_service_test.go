package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"workhub/database"
	"workhub/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.MigrateModels(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{
		FullName: name,
		Email:    fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Password: "hashed",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestFindOrCreateDirectConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a conversation with both participant rows", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")

		conversation, created, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, alice.ID, conversation.CreatorID)

		var participants []models.ConversationParticipant
		require.NoError(t, db.Where("conversation_id = ?", conversation.ID).Find(&participants).Error)
		require.Len(t, participants, 2)
		for _, p := range participants {
			assert.False(t, p.JoinedAt.IsZero())
			assert.False(t, p.LastReadAt.IsZero())
		}
	})

	t.Run("sequential calls return the same conversation", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")

		first, created, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("pair is order independent", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")

		fromAlice, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		fromBob, created, err := FindOrCreateDirectConversation(ctx, db, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, fromAlice.ID, fromBob.ID)
	})

	t.Run("rejects a conversation with yourself", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")

		_, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, alice.ID)
		assert.ErrorIs(t, err, ErrSameUser)
	})

	t.Run("rejects an unknown recipient", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")

		_, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("distinct pairs get distinct conversations", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		carol := createTestUser(t, db, "carol")

		withBob, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)
		withCarol, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, carol.ID)
		require.NoError(t, err)

		assert.NotEqual(t, withBob.ID, withCarol.ID)
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("appends a text message and bumps the conversation", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		message, err := SendMessage(ctx, db, conversation.ID, alice.ID, "hello")
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, models.MessageTypeText, message.Type)
		assert.Equal(t, alice.ID, message.SenderID)
		assert.Equal(t, alice.FullName, message.Sender.FullName)

		var refreshed models.Conversation
		require.NoError(t, db.First(&refreshed, "id = ?", conversation.ID).Error)
		assert.True(t, refreshed.UpdatedAt.After(conversation.UpdatedAt))
	})

	t.Run("whitespace-only content is a silent no-op", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		for _, content := range []string{"", "   ", "\n\t  "} {
			message, err := SendMessage(ctx, db, conversation.ID, alice.ID, content)
			require.NoError(t, err)
			assert.Nil(t, message)
		}

		var count int64
		require.NoError(t, db.Model(&models.Message{}).Where("conversation_id = ?", conversation.ID).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("non-participants are denied and nothing is written", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		mallory := createTestUser(t, db, "mallory")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		_, err = SendMessage(ctx, db, conversation.ID, mallory.ID, "let me in")
		assert.ErrorIs(t, err, ErrAccessDenied)

		var count int64
		require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestLoadMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("returns history oldest first regardless of insert order", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		base := time.Now().Add(-time.Hour)
		// Insert newest first to prove ordering comes from created_at.
		for _, offset := range []time.Duration{3 * time.Minute, time.Minute, 2 * time.Minute} {
			message := models.Message{
				ConversationID: conversation.ID,
				SenderID:       alice.ID,
				Content:        fmt.Sprintf("m%d", offset/time.Minute),
				Type:           models.MessageTypeText,
				CreatedAt:      base.Add(offset),
			}
			require.NoError(t, db.Create(&message).Error)
		}

		messages, err := LoadMessages(ctx, db, conversation.ID, bob.ID, 1, 50)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "m1", messages[0].Content)
		assert.Equal(t, "m2", messages[1].Content)
		assert.Equal(t, "m3", messages[2].Content)
		for i := 1; i < len(messages); i++ {
			assert.True(t, messages[i].CreatedAt.After(messages[i-1].CreatedAt))
		}
		assert.Equal(t, alice.FullName, messages[0].Sender.FullName)
	})

	t.Run("does not move the read watermark", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, conversation.ID, alice.ID, "hello")
		require.NoError(t, err)

		_, err = LoadMessages(ctx, db, conversation.ID, bob.ID, 1, 50)
		require.NoError(t, err)

		unread, err := UnreadCount(ctx, db, conversation.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	})

	t.Run("non-participants are denied", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		mallory := createTestUser(t, db, "mallory")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		_, err = LoadMessages(ctx, db, conversation.ID, mallory.ID, 1, 50)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("pagination respects page size", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		base := time.Now().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			message := models.Message{
				ConversationID: conversation.ID,
				SenderID:       alice.ID,
				Content:        fmt.Sprintf("m%d", i),
				Type:           models.MessageTypeText,
				CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, db.Create(&message).Error)
		}

		first, err := LoadMessages(ctx, db, conversation.ID, alice.ID, 1, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, "m0", first[0].Content)

		third, err := LoadMessages(ctx, db, conversation.ID, alice.ID, 3, 2)
		require.NoError(t, err)
		require.Len(t, third, 1)
		assert.Equal(t, "m4", third[0].Content)
	})
}

func TestUnreadAccounting(t *testing.T) {
	ctx := context.Background()

	t.Run("mark read zeroes the count and peer messages increment it", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		for i := 0; i < 3; i++ {
			_, err := SendMessage(ctx, db, conversation.ID, alice.ID, fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
		}

		unread, err := UnreadCount(ctx, db, conversation.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), unread)

		require.NoError(t, MarkConversationRead(ctx, db, conversation.ID, bob.ID))
		unread, err = UnreadCount(ctx, db, conversation.ID, bob.ID)
		require.NoError(t, err)
		assert.Zero(t, unread)

		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, conversation.ID, alice.ID, "one more")
		require.NoError(t, err)

		unread, err = UnreadCount(ctx, db, conversation.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	})

	t.Run("own messages never count as unread for the sender", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, conversation.ID, alice.ID, "from alice")
		require.NoError(t, err)

		unread, err := UnreadCount(ctx, db, conversation.ID, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, unread)
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		require.NoError(t, MarkConversationRead(ctx, db, conversation.ID, bob.ID))
		require.NoError(t, MarkConversationRead(ctx, db, conversation.ID, bob.ID))
	})

	t.Run("mark read denies non-participants", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		mallory := createTestUser(t, db, "mallory")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		err = MarkConversationRead(ctx, db, conversation.ID, mallory.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()

	t.Run("directory carries peer, last message and unread count", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		conversation, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, conversation.ID, alice.ID, "first")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, conversation.ID, alice.ID, "latest")
		require.NoError(t, err)

		summaries, err := ListConversations(ctx, db, bob.ID)
		require.NoError(t, err)
		require.Len(t, summaries, 1)

		summary := summaries[0]
		require.NotNil(t, summary.Peer)
		assert.Equal(t, alice.ID, summary.Peer.ID)
		require.NotNil(t, summary.LastMessage)
		assert.Equal(t, "latest", summary.LastMessage.Content)
		assert.Equal(t, int64(2), summary.UnreadCount)
	})

	t.Run("most recently active conversation comes first", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")
		bob := createTestUser(t, db, "bob")
		carol := createTestUser(t, db, "carol")

		withBob, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, bob.ID)
		require.NoError(t, err)
		withCarol, _, err := FindOrCreateDirectConversation(ctx, db, alice.ID, carol.ID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = SendMessage(ctx, db, withBob.ID, bob.ID, "bump")
		require.NoError(t, err)

		summaries, err := ListConversations(ctx, db, alice.ID)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, withBob.ID, summaries[0].Conversation.ID)
		assert.Equal(t, withCarol.ID, summaries[1].Conversation.ID)
	})

	t.Run("empty directory for a user with no conversations", func(t *testing.T) {
		db := newTestDB(t)
		alice := createTestUser(t, db, "alice")

		summaries, err := ListConversations(ctx, db, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, summaries)
	})
}

// Mirrors the two-user end-to-end flow: create, hello, load and read,
// reply, unread becomes one.
func TestDirectMessagingScenario(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	userA := createTestUser(t, db, "user-a")
	userB := createTestUser(t, db, "user-b")

	conversation, created, err := FindOrCreateDirectConversation(ctx, db, userA.ID, userB.ID)
	require.NoError(t, err)
	require.True(t, created)

	time.Sleep(5 * time.Millisecond)
	_, err = SendMessage(ctx, db, conversation.ID, userA.ID, "hello")
	require.NoError(t, err)

	messages, err := LoadMessages(ctx, db, conversation.ID, userB.ID, 1, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, userA.ID, messages[0].SenderID)

	require.NoError(t, MarkConversationRead(ctx, db, conversation.ID, userB.ID))
	unread, err := UnreadCount(ctx, db, conversation.ID, userB.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	time.Sleep(5 * time.Millisecond)
	_, err = SendMessage(ctx, db, conversation.ID, userB.ID, "hi")
	require.NoError(t, err)

	unread, err = UnreadCount(ctx, db, conversation.ID, userA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}
