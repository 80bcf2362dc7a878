package implementation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/model"
	"edu-chatbot-be/internal/repository/specification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ChatSession{}, &model.ChatMessage{}))
	return db
}

func TestChatSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChatSessionRepository(openTestDB(t))

	found, err := repo.FindOne(ctx, specification.BySessionID{SessionID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, found)

	s := &entity.ChatSession{SessionId: "s1", UserId: "u1"}
	require.NoError(t, repo.Create(ctx, s))

	t.Run("summary lock is exclusive", func(t *testing.T) {
		ok, err := repo.TryLockSummary(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.TryLockSummary(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.SaveSummary(ctx, "s1", "talked about cells"))

		ok, err = repo.TryLockSummary(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, repo.UnlockSummary(ctx, "s1"))
	})

	t.Run("record append", func(t *testing.T) {
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, repo.RecordAppend(ctx, "s1", 7, at))

		got, err := repo.FindOne(ctx, specification.BySessionID{SessionID: "s1"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 7, got.MessageCount)
		assert.Equal(t, "talked about cells", got.Summary)
		assert.False(t, got.IsSummarizing)
		assert.True(t, got.UpdatedAt.Equal(at))
	})
}

func TestChatMessageRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChatMessageRepository(openTestDB(t))

	last, err := repo.FindLast(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Create(ctx, &entity.ChatMessage{
			SessionId:  "s1",
			Seq:        i,
			MessageKey: fmt.Sprintf("turn-%d:user", i),
			Role:       "user",
			Text:       fmt.Sprintf("msg %d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	t.Run("last", func(t *testing.T) {
		last, err := repo.FindLast(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 5, last.Seq)
	})

	t.Run("recent is chronological", func(t *testing.T) {
		recent, err := repo.FindRecent(ctx, "s1", 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, []string{"msg 3", "msg 4", "msg 5"}, []string{recent[0].Text, recent[1].Text, recent[2].Text})
	})

	t.Run("count and key lookup", func(t *testing.T) {
		n, err := repo.Count(ctx, specification.BySessionID{SessionID: "s1"})
		require.NoError(t, err)
		assert.EqualValues(t, 5, n)

		m, err := repo.FindOne(ctx, specification.ByMessageKey{Key: "turn-2:user"})
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, 2, m.Seq)
	})

	t.Run("duplicate seq is rejected", func(t *testing.T) {
		err := repo.Create(ctx, &entity.ChatMessage{
			SessionId: "s1", Seq: 5, MessageKey: "other", Role: "user", Text: "x", Timestamp: base,
		})
		assert.Error(t, err)
	})
}
