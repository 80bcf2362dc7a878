package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edu-chatbot-be/internal/bootstrap"
	"edu-chatbot-be/internal/config"
	"edu-chatbot-be/internal/server"
	"edu-chatbot-be/internal/tracer"
	"edu-chatbot-be/pkg/database"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment != "production")
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}
	defer database.Close(gormDB)

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	// 4. Start Background Services
	log.Println("Background: Starting Consumer Service...")
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Panicf("Background Consumer Error: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server until a shutdown signal arrives
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
