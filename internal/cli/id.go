package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/identity"
)

func newIDCmd() *cobra.Command {
	var (
		peerName string
		selfDID  string
		selfName string
	)

	cmd := &cobra.Command{
		Use:   "id <peer-did>",
		Short: "Print the conversation id and name shared with a peer",
		Long: "Prints the conversation id both participants derive independently, and the\n" +
			"conversation name as seen from your side.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if selfDID == "" {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				selfDID = cfg.Identity.DID
				if selfName == "" {
					selfName = cfg.Identity.DisplayName
				}
			}
			if selfDID == "" {
				return errors.New("no local DID: pass --as or set identity.did")
			}

			id, err := identity.DeriveConversationID(selfDID, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:   %s\n", id)
			fmt.Fprintf(out, "name: %s\n", identity.DeriveConversationName(selfDID, selfName, args[0], peerName))
			return nil
		},
	}

	cmd.Flags().StringVar(&peerName, "name", "", "peer display name")
	cmd.Flags().StringVar(&selfDID, "as", "", "local DID (default identity.did)")
	cmd.Flags().StringVar(&selfName, "as-name", "", "local display name (default identity.displayName)")
	return cmd
}
