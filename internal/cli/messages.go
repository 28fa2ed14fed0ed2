package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/chatsync"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/identity"
)

func newMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Load and send messages",
	}

	cmd.AddCommand(newMessagesLoadCmd())
	cmd.AddCommand(newMessagesSendCmd())
	return cmd
}

func newMessagesLoadCmd() *cobra.Command {
	var (
		peerName string
		byName   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "load <peer-did>",
		Short: "Load and print the conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				header, err := s.open(args[0], peerName)
				if err != nil {
					return err
				}
				// the id-only key also returns the messages the peer wrote
				// under their own conversation name
				name := ""
				if byName {
					name = header.Name
				}
				if err := s.sync.LoadMessages(ctx, header.ID, name); err != nil {
					return err
				}
				msgs, err := s.sync.Messages(header.ID)
				if err != nil {
					return err
				}
				if err := s.sync.MarkRead(header.ID); err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), msgs)
				}
				printMessages(cmd.OutOrStdout(), msgs, s.sync.Self().DID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&peerName, "name", "", "peer display name")
	cmd.Flags().BoolVar(&byName, "by-name", false, "only load messages filed under your conversation name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMessagesSendCmd() *cobra.Command {
	var peerName string

	cmd := &cobra.Command{
		Use:   "send <peer-did> <text...>",
		Short: "Send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				header, err := s.open(args[0], peerName)
				if err != nil {
					return err
				}
				msg, err := s.sync.SendMessage(ctx, header.ID, strings.Join(args[1:], " "), s.sender())
				if err != nil {
					return err
				}
				return reportDelivery(cmd.OutOrStdout(), s, header.ID, msg.ID)
			})
		},
	}

	cmd.Flags().StringVar(&peerName, "name", "", "peer display name")
	return cmd
}

// withSession runs fn against a session opened from the config file.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// reportDelivery waits for the background write of msgID and prints its
// final status.
func reportDelivery(w io.Writer, s *session, conversationID, msgID string) error {
	s.sync.Wait()

	msgs, err := s.sync.Messages(conversationID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.ID != msgID {
			continue
		}
		if m.Status == domain.StatusFailed {
			return fmt.Errorf("message %s: %s", m.ID, chatsync.NotificationText(domain.CategorySend))
		}
		fmt.Fprintf(w, "%s %s\n", m.Status, m.ID)
		return nil
	}
	return fmt.Errorf("message %s disappeared from the conversation", msgID)
}

func printMessages(w io.Writer, msgs []domain.Message, self string) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range msgs {
		who := m.SenderName
		if m.SenderDID == self {
			who = "you"
		} else if who == "" {
			who = identity.ShortDID(m.SenderDID)
		}
		if m.IsAIGenerated {
			who += " (twin)"
		}
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("Jan 2 15:04"), who, m.Content)
		if m.Status != domain.StatusConfirmed {
			line += "  <" + string(m.Status) + ">"
		}
		fmt.Fprintln(w, line)
	}
}
