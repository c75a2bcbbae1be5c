package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/specterchat/specter/internal/domain"
)

var seedChannels = []string{"ops", "intel", "lounge"}

var seedMessages = map[string][]domain.MessageDraft{
	"ops": {
		{Author: "Condor", Content: "checkpoint alpha is clear"},
		{Author: "Nightjar", Content: "copy that, moving to bravo"},
	},
	"intel": {
		{Author: "Magpie", Content: "new intercept posted to the drop"},
	},
}

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo channels and messages",
		Run:   runSeed,
	}

	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	st, cleanup := openStore(cfg)
	defer cleanup()

	ctx := cmd.Context()

	existing, err := st.Channels(ctx)
	if err != nil {
		exitErr("list channels", err)
	}

	for _, name := range seedChannels {
		if lo.ContainsBy(existing, func(ch domain.Channel) bool { return ch.Name == name }) {
			continue
		}
		ch, err := st.InsertChannel(ctx, name, domain.ChannelPublic)
		if err != nil {
			exitErr("create channel", err)
		}
		for _, draft := range seedMessages[name] {
			draft.ChannelID = ch.ID
			if _, err := st.InsertMessage(ctx, draft); err != nil {
				exitErr("seed message", err)
			}
		}
		fmt.Printf("seeded channel %s\n", name)
	}
}
