package main

import (
	"context"
	"fmt"
	"os"

	"github.com/specterchat/specter/internal/config"
	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/engine"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/internal/tui"
	"github.com/specterchat/specter/pkg/database"
	"github.com/specterchat/specter/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "specter"})
	logger := log.L()

	st, fd, cleanup, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build backend")
	}
	defer cleanup()

	eng := engine.New(st, fd, logger)
	if cfg.Client.BacklogLimit > 0 {
		eng.SetBacklogLimit(cfg.Client.BacklogLimit)
	}
	defer eng.Close(context.Background())

	codename := ""
	if len(os.Args) > 1 {
		codename = os.Args[1]
	}

	if err := tui.Run(tui.Options{Engine: eng, Codename: codename}); err != nil {
		logger.Fatal().Err(err).Msg("ui error")
	}
}

// buildBackend wires the store and feed for the configured drivers. The
// memory driver runs a self-contained demo: in-process broker, in-memory
// store, a few seeded channels.
func buildBackend(cfg *config.Config) (store.Store, feed.Feed, func(), error) {
	if cfg.Database.Driver == "memory" {
		broker := feed.NewBroker()
		st := store.NewMemoryStore(broker)
		seedChannels(st)
		return st, broker, func() { broker.Close() }, nil
	}

	bus, err := feed.NewBus(cfg.Feed)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.New(cfg.Database.ToDatabase())
	if err != nil {
		bus.Close()
		return nil, nil, nil, err
	}

	st := store.NewGormStore(db, bus)
	if err := st.Migrate(); err != nil {
		bus.Close()
		return nil, nil, nil, err
	}

	return st, bus, func() { bus.Close() }, nil
}

func seedChannels(st store.Store) {
	ctx := context.Background()
	for _, name := range []string{"ops", "intel", "lounge"} {
		if _, err := st.InsertChannel(ctx, name, domain.ChannelPublic); err != nil {
			l := log.L()
			l.Warn().Err(err).Str("channel", name).Msg("seed channel failed")
		}
	}
}
