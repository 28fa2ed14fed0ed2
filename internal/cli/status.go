package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/llm"
	"github.com/soyeahso/duet/internal/store"
	"github.com/soyeahso/duet/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show duet status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "duet %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}

			self := cfg.Identity.DID
			if self == "" {
				self = "(not set)"
			}
			fmt.Fprintf(out, "Identity: did=%s name=%s\n", self, cfg.Identity.DisplayName)

			switch cfg.Store.Backend {
			case "redis":
				fmt.Fprintf(out, "Store:    backend=redis addr=%s prefix=%s\n", cfg.Store.Redis.Addr, cfg.Store.Redis.KeyPrefix)
			case "sqlite":
				fmt.Fprintf(out, "Store:    backend=sqlite\n")
			default:
				fmt.Fprintf(out, "Store:    backend=%s endpoint=%s context=%q\n", cfg.Store.Backend, cfg.Store.Endpoint, cfg.Store.Context)
			}
			fmt.Fprintf(out, "Sync:     dedupe=%s reconcile=%s loads=%d\n",
				cfg.Sync.DedupeBy, cfg.Sync.ReconcileDelay(), cfg.Sync.MaxConcurrentLoads)

			if cfg.Profile.BaseURL != "" {
				fmt.Fprintf(out, "Profile:  %s\n", cfg.Profile.BaseURL)
			} else {
				fmt.Fprintln(out, "Profile:  (not configured)")
			}

			if cfg.Twin.Enabled {
				registry, err := llm.NewRegistryFromConfig(cfg.Twin, log)
				if err != nil {
					fmt.Fprintf(out, "Twin:     error: %v\n", err)
				} else {
					providers := registry.List()
					sort.Strings(providers)
					fmt.Fprintf(out, "Twin:     model=%s providers=%s\n", cfg.Twin.Model, strings.Join(providers, ", "))
				}
			} else {
				fmt.Fprintln(out, "Twin:     (disabled)")
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			if _, err := os.Stat(paths.DatabasePath()); err == nil {
				printLastSync(cmd)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}

func printLastSync(cmd *cobra.Command) {
	db, err := store.Open(paths.DatabasePath(), log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open database")
		return
	}
	defer db.Close()

	last, err := store.NewPreferences(db).LastSync(cmd.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to read last sync time")
		return
	}
	if last.IsZero() {
		fmt.Fprintln(cmd.OutOrStdout(), "Synced:   never")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced:   %s (%s ago)\n",
		last.Local().Format(time.RFC3339), time.Since(last).Round(time.Second))
}
