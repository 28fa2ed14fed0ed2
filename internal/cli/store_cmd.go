package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/docstore"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the document store",
	}

	cmd.AddCommand(newStorePingCmd())
	return cmd
}

func newStorePingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the document store answers queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				cfg := s.cfg.Store
				start := time.Now()

				for _, schema := range []string{cfg.MessageSchema, cfg.GroupSchema} {
					records, err := s.docs.Query(ctx, schema, docstore.Filter{}, docstore.QueryOptions{Limit: 1, Descending: true})
					if err != nil {
						var remote *docstore.RemoteError
						if errors.As(err, &remote) {
							fmt.Fprintf(out, "store answered %d: %s\n", remote.StatusCode, remote.Body)
						}
						return fmt.Errorf("probing %s: %w", schema, err)
					}
					latest := "empty"
					if len(records) > 0 {
						latest = "latest " + records[0].InsertedAt.Local().Format(time.RFC3339)
					}
					fmt.Fprintf(out, "ok  %s (%s)\n", schema, latest)
				}
				fmt.Fprintf(out, "%s store reachable in %s\n", cfg.Backend, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}
