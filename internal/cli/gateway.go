package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/duet/internal/gateway"
	"github.com/soyeahso/duet/internal/hooks"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the duet gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	cmd.AddCommand(newGatewayTokenCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			s.hooks.On(hooks.EventNotify, "cli", func(_ context.Context, p hooks.Payload) error {
				log.Warn().Interface("notification", p.Data).Msg("sync failure")
				return nil
			})

			opts := []gateway.ServerOption{gateway.WithHooks(s.hooks)}
			if s.twin != nil {
				opts = append(opts, gateway.WithTwin(s.twin))
			}
			srv := gateway.New(cfg.Gateway, s.sync, log, opts...)

			// Warm the conversation list so the first client sees it.
			go func() {
				if _, err := s.sync.ListConversations(ctx); err != nil {
					log.Warn().Err(err).Msg("initial conversation sync failed")
					return
				}
				if err := s.prefs.MarkSynced(ctx, time.Now()); err != nil {
					log.Warn().Err(err).Msg("failed to record sync time")
				}
			}()

			log.Info().Int("port", cfg.Gateway.Port).Str("bind", cfg.Gateway.Bind).Msg("starting gateway")
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	return cmd
}

func newGatewayTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for gateway jwt auth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Identity.DID == "" {
				return errors.New("identity.did is not set")
			}
			auth := gateway.ResolveAuth(cfg.Gateway.Auth, cfg.Identity.DID)
			if auth.Mode != gateway.AuthModeJWT {
				log.Warn().Str("mode", auth.Mode).Msg("gateway is not in jwt auth mode; the token will be rejected")
			}
			token, err := gateway.IssueToken(auth.JWTSecret, auth.Subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
