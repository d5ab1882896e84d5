// Command worker drains the failed-event store through the relay once
// and exits. Embedded emitters run the same drain on a timer; this
// binary exists for replaying a backlog out of band, for example after
// a long relay outage.
package main

import (
	"context"
	"log"

	"conversion-relay/config"
	"conversion-relay/internal/emitter"
	"conversion-relay/internal/pixel"
	"conversion-relay/internal/store"
	"conversion-relay/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.NewLogger(cfg.LogLevel)

	var failedStore store.FailedEventStore
	switch cfg.Store.Backend {
	case "mongo":
		mongoStore, err := store.NewMongoStore(cfg.Store.MongoURI, cfg.Store.Database, cfg.Store.Collection, logger.Desugar())
		if err != nil {
			logger.Fatalf("Failed to connect to MongoDB store: %v", err)
		}
		defer mongoStore.Close(context.Background())
		failedStore = mongoStore
	default:
		failedStore = store.NewFileStore(cfg.Store.FilePath)
	}

	beacon := pixel.NewBeacon(cfg.Emitter.PixelEndpoint, cfg.Upstream.PixelID, logger.Desugar())

	em := emitter.New(emitter.Config{
		RelayURL:  cfg.Emitter.RelayURL,
		SourceURL: cfg.Emitter.SourceURL,
	}, beacon, failedStore, logger.Desugar())

	resent, dropped, err := em.Drain(context.Background())
	if err != nil {
		logger.Fatalf("Drain failed: %v", err)
	}

	logger.Infof("Drain complete: %d resent, %d dropped", resent, dropped)
}
