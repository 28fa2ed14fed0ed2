package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show and edit dating profiles",
	}

	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfilePhotosCmd())
	cmd.AddCommand(newProfileUpdateCmd())
	return cmd
}

// profileClient returns the profile client and the DID to act on: the
// first argument, or the local identity.
func profileClient(args []string) (*profile.Client, string, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, "", err
	}
	if cfg.Profile.BaseURL == "" {
		return nil, "", errors.New("profile.baseUrl is not set")
	}
	did := cfg.Identity.DID
	if len(args) > 0 {
		did = args[0]
	}
	if did == "" {
		return nil, "", errors.New("no DID given and identity.did is not set")
	}
	return profile.NewClient(cfg.Profile.BaseURL, cfg.Profile.APIKey, log), did, nil
}

func newProfileShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [did]",
		Short: "Show a profile (default: yours)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, did, err := profileClient(args)
			if err != nil {
				return err
			}
			p, err := client.GetProfile(cmd.Context(), did)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newProfilePhotosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "photos [did]",
		Short: "List profile photo URLs, primary first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, did, err := profileClient(args)
			if err != nil {
				return err
			}
			photos, err := client.GetProfilePhotos(cmd.Context(), did)
			if err != nil {
				return err
			}
			for _, ph := range photos {
				fmt.Fprintln(cmd.OutOrStdout(), ph.URL)
			}
			return nil
		},
	}
}

func newProfileUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <field=value>...",
		Short: "Update fields of your profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args)
			if err != nil {
				return err
			}
			client, did, err := profileClient(nil)
			if err != nil {
				return err
			}
			p, err := client.UpdateProfile(cmd.Context(), did, fields)
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

// parseFields turns field=value arguments into a patch body. A
// comma-separated interests value becomes a list.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		if key == "interests" {
			var list []string
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					list = append(list, v)
				}
			}
			fields[key] = list
			continue
		}
		fields[key] = parseValue(value)
	}
	return fields, nil
}

func printProfile(w io.Writer, p *profile.Profile) {
	fmt.Fprintf(w, "%s (%s)\n", p.DisplayName, p.DID)
	if p.Age > 0 || p.Location != "" {
		fmt.Fprintf(w, "%d, %s\n", p.Age, p.Location)
	}
	if p.Bio != "" {
		fmt.Fprintf(w, "\n%s\n", p.Bio)
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(w, "\nInterests: %s\n", strings.Join(p.Interests, ", "))
	}
	for _, pr := range p.Prompts {
		fmt.Fprintf(w, "\n%s\n  %s\n", pr.Question, pr.Answer)
	}
}
