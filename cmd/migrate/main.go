package main

import (
	"log"
	"os"

	"edu-chatbot-be/internal/model"
	"edu-chatbot-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}
	defer database.Close(db)

	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		log.Fatalf("Error: pgvector extension unavailable: %v", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.CurriculumChunk{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Step 3: Creating indexes...")
	postMigrationSQL := []string{
		`CREATE INDEX IF NOT EXISTS idx_curriculum_chunks_embedding
		 ON curriculum_chunks USING hnsw (embedding vector_cosine_ops);`,
		`CREATE INDEX IF NOT EXISTS idx_curriculum_chunks_metadata
		 ON curriculum_chunks USING gin (metadata jsonb_path_ops);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
