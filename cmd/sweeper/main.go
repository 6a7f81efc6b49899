package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/app"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/config"
)

func main() {
	once := flag.Bool("once", false, "run a single purge and replay pass and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job, err := app.NewSweeperJob(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init sweeper: %v", err)
	}
	defer job.Close()

	if !*once {
		job.Run(ctx)
		return
	}

	result, err := job.RunOnce(ctx)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		return
	}
	log.Printf("sweep finished: deleted=%d replayed=%d versions_replayed=%d skipped=%v", result.Deleted, result.Replayed, result.VersionsReplayed, result.Skipped)
}
