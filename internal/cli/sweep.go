package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete messages older than the retention window",
		Run:   runSweep,
	}
	cmd.Flags().Duration("ttl", 0, "Retention window (default: client.retention_ttl from config)")

	RootCmd.AddCommand(cmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	st, cleanup := openStore(cfg)
	defer cleanup()

	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl == 0 {
		ttl = cfg.Client.RetentionTTL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	cutoff := time.Now().Add(-ttl)
	deleted, err := st.DeleteMessagesBefore(cmd.Context(), cutoff)
	if err != nil {
		exitErr("sweep messages", err)
	}

	fmt.Printf("deleted %d messages older than %s\n", deleted, cutoff.Format(time.RFC3339))
}
