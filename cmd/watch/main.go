// Command watch follows one video job from the terminal, using the same
// dual-channel synchronization client the dashboard uses: store change
// notifications plus a recurring poll, converging on one final view.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/vidinsight/api/internal/config"
	"github.com/vidinsight/api/internal/store"
	"github.com/vidinsight/api/internal/watch"
)

func main() {
	videoID := flag.String("video", "", "video job id to watch")
	flag.Parse()

	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "usage: watch -video <id>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	notifier := store.NewNotifier(redisClient)

	recordStore, err := store.Open(cfg.Postgres.DSN, nil)
	if err != nil {
		log.Fatalf("Failed to open job record store: %v", err)
	}
	defer recordStore.Close()

	watcher := watch.New(recordStore, notifier, watch.Options{
		PollInterval:     cfg.Watch.PollInterval,
		ProgressInterval: cfg.Watch.ProgressInterval,
		Timeout:          cfg.Watch.Timeout,
	})

	session := watcher.Watch(*videoID)
	defer session.Stop()

	for snap := range session.Updates() {
		switch snap.State {
		case watch.StatePending:
			fmt.Printf("pending (phase %d)\n", snap.Phase)
		case watch.StateReady:
			if snap.Fallback {
				fmt.Printf("ready (fallback from job %s)\n", snap.FallbackVideoID)
			} else {
				fmt.Println("ready")
			}
			fmt.Printf("summary: %s\n", snap.Analysis.Summary)
			fmt.Printf("chapters: %d, insights: %d\n", len(snap.Analysis.Chapters), len(snap.Analysis.KeyInsights))
			return
		case watch.StateFailed:
			fmt.Printf("failed: %s\n", snap.Reason)
			os.Exit(1)
		case watch.StateError:
			fmt.Printf("error: %s\n", snap.Reason)
			os.Exit(1)
		}
	}
}
