package main

import (
	"context"
	"log"

	"edu-chatbot-be/internal/bootstrap"
	"edu-chatbot-be/internal/config"
	"edu-chatbot-be/pkg/database"
	"edu-chatbot-be/pkg/rag/tools"

	"github.com/mark3labs/mcp-go/server"
)

const version = "1.0.0"

// Serves the curriculum tools over stdio. The standard logger writes to
// stderr, so stdout carries only protocol frames.
func main() {
	cfg := config.Load()

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatalf("Unable to connect to GORM DB: %v", err)
	}
	defer database.Close(gormDB)

	registry, container, err := bootstrap.NewToolRegistry(context.Background(), gormDB, cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap tools: %v", err)
	}
	defer container.Close()

	s, err := tools.NewMCPServer("edu-chatbot-tools", version, registry)
	if err != nil {
		log.Fatalf("Unable to build MCP server: %v", err)
	}
	if err := server.ServeStdio(s); err != nil {
		log.Printf("MCP server stopped: %v", err)
	}
}
