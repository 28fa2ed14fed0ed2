package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/identity"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List and inspect conversations",
	}

	cmd.AddCommand(newConversationsListCmd())
	cmd.AddCommand(newConversationsSyncCmd())
	return cmd
}

func newConversationsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reload every conversation from the document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				headers, err := s.sync.ListConversations(ctx)
				if err != nil {
					return err
				}
				if err := s.sync.RefreshAll(ctx); err != nil {
					return err
				}
				if err := s.prefs.MarkSynced(ctx, time.Now()); err != nil {
					log.Warn().Err(err).Msg("failed to record sync time")
				}

				total := 0
				for _, h := range headers {
					msgs, err := s.sync.Messages(h.ID)
					if err != nil {
						return err
					}
					total += len(msgs)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d conversation(s), %d message(s).\n", len(headers), total)
				return nil
			})
		},
	}
}

func newConversationsListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				headers, err := s.sync.ListConversations(ctx)
				if err != nil {
					return err
				}
				if err := s.prefs.MarkSynced(ctx, time.Now()); err != nil {
					log.Warn().Err(err).Msg("failed to record sync time")
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), headers)
				}
				printConversations(cmd.OutOrStdout(), headers, s.sync.Self().DID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printConversations(w io.Writer, headers []domain.ConversationHeader, self string) {
	if len(headers) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PEER\tUNREAD\tUPDATED\tLAST MESSAGE")
	for _, h := range headers {
		conv := domain.Conversation{Participants: h.Participants}
		peer, _ := conv.Peer(self)
		name := peer.DisplayName
		if name == "" {
			name = identity.ShortDID(peer.DID)
		}
		updated := "-"
		if !h.UpdatedAt.IsZero() {
			updated = humanize.Time(h.UpdatedAt)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, h.UnreadCount, updated, truncate(h.LastMessage, 48))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
