package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newTwinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Let your AI twin reply for you",
	}

	cmd.AddCommand(newTwinReplyCmd())
	return cmd
}

func newTwinReplyCmd() *cobra.Command {
	var (
		peerName string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "reply <peer-did>",
		Short: "Draft a reply to the latest messages and send it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				if s.twin == nil {
					return errors.New("twin is disabled; run: duet config set twin.enabled true")
				}
				header, err := s.open(args[0], peerName)
				if err != nil {
					return err
				}
				if err := s.sync.LoadMessages(ctx, header.ID, ""); err != nil {
					return err
				}

				if dryRun {
					d, err := s.twin.Draft(ctx, header.ID)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), d.Content)
					return nil
				}

				msg, err := s.twin.Reply(ctx, header.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
				return reportDelivery(cmd.OutOrStdout(), s, header.ID, msg.ID)
			})
		},
	}

	cmd.Flags().StringVar(&peerName, "name", "", "peer display name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the draft without sending it")
	return cmd
}
