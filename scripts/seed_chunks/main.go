package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/app"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// Registers a run of completed chunks so batch formation and the HTTP
// surface can be exercised without a capture client. Media files are not
// created; point file refs at real recordings with -prefix to analyze them.
func main() {
	start := flag.String("start", time.Now().Add(-time.Hour).UTC().Format(time.RFC3339), "first chunk start, RFC3339")
	count := flag.Int("count", 30, "number of chunks")
	length := flag.Duration("length", time.Minute, "duration of each chunk")
	gap := flag.Duration("gap", 0, "pause between chunks")
	prefix := flag.String("prefix", "chunks/seed", "file ref prefix")
	flag.Parse()

	log.Println("🚀 Seeding recording chunks...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	first, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		log.Fatalf("Invalid -start: %v", err)
	}

	container, err := app.New(cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer container.Close()

	ctx := context.Background()
	at := first.UTC()
	for i := 0; i < *count; i++ {
		ref := fmt.Sprintf("%s/%s.mp4", *prefix, at.Format("20060102T150405"))
		chunk, err := container.Chunks.RecordCompleted(ctx, ref, at, at.Add(*length))
		if err != nil {
			log.Printf("❌ Failed to record chunk %s: %v", ref, err)
			continue
		}
		fmt.Printf("🟢 %s  %s → %s  %s\n", chunk.ID, chunk.StartTs.Format(time.Kitchen), chunk.EndTs.Format(time.Kitchen), ref)
		at = at.Add(*length + *gap)
	}

	log.Println("✅ Chunks recorded")
	log.Println("\n💡 Usage:")
	log.Println("   1. Start the API server, or POST /v1/analysis/trigger if it is running")
	log.Println("   2. Watch GET /v1/batches for the formed batches")
	log.Println("\n🧹 To clean up, run: DELETE FROM recording_chunks WHERE file_ref LIKE '" + *prefix + "/%'")
}
