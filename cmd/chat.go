package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/landrop/landrop/internal/protocol"
	"github.com/landrop/landrop/internal/ui"
)

var flagChatTo string

var chatCmd = &cobra.Command{
	Use:   "chat <message>...",
	Short: "Send a chat message to connected sessions",
	Long: `Send a short text message through the daemon. Without --to the
message goes to every connected session.

Examples:
  landrop chat lunch in five
  landrop chat --to alices-laptop heads up, sending the video now`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendChat(flagChatTo, strings.Join(args, " "))
	},
}

func sendChat(to, text string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	msg := &protocol.ClientMessage{Type: protocol.TypeSendChat, Message: text}
	if to != "" {
		target, err := resolvePeer(client, to)
		if err != nil {
			return err
		}
		msg.PeerID = &target.ID
	}

	client.Send(msg)
	echo, err := client.Await(replyTimeout, protocol.TypeChatMessage)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s %s\n", ui.IconChat, ui.BoldStyle.Render(echo.FromHostname+":"), echo.Message)
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	addClientFlags(chatCmd)
	chatCmd.Flags().StringVarP(&flagChatTo, "to", "t", "", "Address the message to one peer")
}
