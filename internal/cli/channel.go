package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specterchat/specter/internal/domain"
)

func init() {
	channelCmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage channels",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(1),
		Run:   runChannelCreate,
	}
	createCmd.Flags().Bool("private", false, "Create the channel as private")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List channels",
		Run:   runChannelList,
	}

	channelCmd.AddCommand(createCmd, listCmd)
	RootCmd.AddCommand(channelCmd)
}

func runChannelCreate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	st, cleanup := openStore(cfg)
	defer cleanup()

	visibility := domain.ChannelPublic
	if private, _ := cmd.Flags().GetBool("private"); private {
		visibility = domain.ChannelPrivate
	}

	ch, err := st.InsertChannel(cmd.Context(), args[0], visibility)
	if err != nil {
		exitErr("create channel", err)
	}

	fmt.Printf("created channel %s (%s, %s)\n", ch.Name, ch.ID, ch.Visibility)
}

func runChannelList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	st, cleanup := openStore(cfg)
	defer cleanup()

	channels, err := st.Channels(cmd.Context())
	if err != nil {
		exitErr("list channels", err)
	}

	for _, ch := range channels {
		fmt.Printf("%s  %-20s %s\n", ch.ID, ch.Name, ch.Visibility)
	}
}
