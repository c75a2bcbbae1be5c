// Package cli implements the specterctl admin commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/specterchat/specter/internal/config"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/pkg/database"
	"github.com/specterchat/specter/pkg/log"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "specterctl",
	Short: "Administer a specter deployment",
	Long:  "Out-of-band administration for specter: channel management, retention sweeps, and demo data.",
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load configuration", err)
	}
	log.Init(log.Config{Level: "warn", ServiceName: "specterctl"})
	return cfg
}

// openStore connects the configured database and feed bus. The returned
// cleanup closes the bus; writes made through the store are published so
// running clients pick them up.
func openStore(cfg *config.Config) (store.Store, func()) {
	bus, err := feed.NewBus(cfg.Feed)
	if err != nil {
		exitErr("connect feed bus", err)
	}

	db, err := database.New(cfg.Database.ToDatabase())
	if err != nil {
		bus.Close()
		exitErr("connect database", err)
	}

	st := store.NewGormStore(db, bus)
	if err := st.Migrate(); err != nil {
		bus.Close()
		exitErr("migrate database", err)
	}

	return st, func() { bus.Close() }
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
