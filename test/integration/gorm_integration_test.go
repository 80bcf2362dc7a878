package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/model"
	"edu-chatbot-be/internal/repository/sessionstore"
	"edu-chatbot-be/internal/repository/unitofwork"
	"edu-chatbot-be/internal/repository/vectorindex"
	"edu-chatbot-be/pkg/database"
	"edu-chatbot-be/pkg/rag/memory"
	"edu-chatbot-be/pkg/rag/retrieval"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const dims = 1536

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error)
	require.NoError(t, db.AutoMigrate(&model.ChatSession{}, &model.ChatMessage{}, &model.CurriculumChunk{}))
	return db
}

func TestGormConnection(t *testing.T) {
	db := openDB(t)
	assert.NoError(t, database.Ping(context.Background(), db))
}

func TestSessionStore(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	store := sessionstore.New(unitofwork.NewRepositoryFactory(db))

	sessionID := "it-" + uuid.NewString()
	t.Cleanup(func() {
		db.Where("session_id = ?", sessionID).Delete(&model.ChatMessage{})
		db.Where("session_id = ?", sessionID).Delete(&model.ChatSession{})
	})

	turn := []memory.PersistedMessage{
		{Role: "user", Text: "what is osmosis?", MessageKey: memory.MessageKey("t1", "user")},
		{Role: "assistant", Text: "Osmosis is...", MessageKey: memory.MessageKey("t1", "assistant")},
	}

	t.Run("append is idempotent per message key", func(t *testing.T) {
		res, err := store.AppendMessages(ctx, "u1", sessionID, turn)
		require.NoError(t, err)
		assert.Equal(t, memory.AppendResult{Appended: 2, Total: 2}, res)

		res, err = store.AppendMessages(ctx, "u1", sessionID, turn)
		require.NoError(t, err)
		assert.Equal(t, memory.AppendResult{Appended: 0, Total: 2}, res)

		msgs, err := store.RecentMessages(ctx, sessionID, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0].Role)
	})

	t.Run("summary flag is exclusive", func(t *testing.T) {
		ok, err := store.TryLockSummary(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.TryLockSummary(ctx, sessionID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SaveSummary(ctx, sessionID, "Student asked about osmosis."))
		sess, err := store.FindSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "Student asked about osmosis.", sess.Summary)
		assert.Equal(t, 2, sess.MessageCount)
	})
}

func unitVector(i int) []float32 {
	v := make([]float32, dims)
	v[i] = 1
	return v
}

func TestPgvectorIndex(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	factory := unitofwork.NewRepositoryFactory(db)
	repo := factory.NewUnitOfWork(ctx).CurriculumChunkRepository()

	prefix := "it-" + uuid.NewString()
	chunks := []*entity.CurriculumChunk{
		{Id: prefix + "-a", Text: "Osmosis moves water across a membrane", Embedding: unitVector(0),
			Metadata: map[string]interface{}{"class_id": 10, "subject": "biology"}},
		{Id: prefix + "-b", Text: "Newton's second law", Embedding: unitVector(1),
			Metadata: map[string]interface{}{"class_id": 10, "subject": "physics"}},
		{Id: prefix + "-c", Text: "Osmosis for another class", Embedding: unitVector(0),
			Metadata: map[string]interface{}{"class_id": 11, "subject": "biology"}},
	}
	for _, c := range chunks {
		require.NoError(t, repo.Create(ctx, c))
	}
	t.Cleanup(func() { db.Where("id LIKE ?", prefix+"%").Delete(&model.CurriculumChunk{}) })

	index := vectorindex.NewPgvectorIndex(factory)
	matches, err := index.Query(ctx, retrieval.VectorQuery{
		Dense:  unitVector(0),
		Alpha:  1,
		TopK:   5,
		Filter: retrieval.NormalizeFilters(map[string]interface{}{"class_id": "10"}),
	})
	require.NoError(t, err)

	var ids []string
	for _, m := range matches {
		if len(m.ID) > len(prefix) && m.ID[:len(prefix)] == prefix {
			ids = append(ids, m.ID)
		}
	}
	require.Equal(t, []string{prefix + "-a", prefix + "-b"}, ids)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}
