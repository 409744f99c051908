package main

import (
	"log"

	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/database"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// Applies the embedded SQL migrations for DB_DRIVER. Use this instead of
// DB_AUTO_MIGRATE in production.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database using GORM
	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	n, err := database.Migrate(db, cfg.Database.Driver)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Printf("✅ Successfully applied %d migration(s)!\n", n)
}
