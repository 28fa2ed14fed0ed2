package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/duet/internal/chatsync"
	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/docstore"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/hooks"
	"github.com/soyeahso/duet/internal/identity"
	"github.com/soyeahso/duet/internal/llm"
	"github.com/soyeahso/duet/internal/profile"
	"github.com/soyeahso/duet/internal/store"
	"github.com/soyeahso/duet/internal/twin"
)

// session is everything a command needs to talk to the document store:
// local state, the synchronizer and, when configured, the profile service
// and the AI twin.
type session struct {
	cfg      config.Config
	db       *store.DB
	prefs    *store.Preferences
	docs     docstore.Store
	hooks    *hooks.Manager
	sync     *chatsync.Synchronizer
	profiles *profile.Client // nil when profile.baseUrl is unset
	twin     *twin.Twin      // nil when twin.enabled is false

	closers []func() error
}

// loadConfig loads and validates the config file, logging every issue.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openSession wires a session from the config file.
func openSession(ctx context.Context, cfg config.Config) (_ *session, err error) {
	if cfg.Identity.DID == "" {
		return nil, errors.New("identity.did is not set; run: duet config set identity.did <your-did>")
	}

	s := &session{cfg: cfg, hooks: hooks.NewManager(log)}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	s.db, err = store.Open(paths.DatabasePath(), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.closers = append(s.closers, s.db.Close)
	s.prefs = store.NewPreferences(s.db)

	self, err := s.selfParticipant(ctx)
	if err != nil {
		return nil, err
	}

	s.docs, err = s.openDocStore(ctx)
	if err != nil {
		return nil, err
	}

	dedupe, err := chatsync.ParseDedupeMode(cfg.Sync.DedupeBy)
	if err != nil {
		return nil, err
	}
	remote := chatsync.NewAdapter(s.docs, chatsync.AdapterConfig{
		MessageSchema: cfg.Store.MessageSchema,
		GroupSchema:   cfg.Store.GroupSchema,
		SelfDID:       self.DID,
		DedupeBy:      dedupe,
	}, log)

	s.sync, err = chatsync.New(remote, s.hooks, log, chatsync.Options{
		Self:               self,
		ReconcileDelay:     cfg.Sync.ReconcileDelay(),
		MaxConcurrentLoads: cfg.Sync.MaxConcurrentLoads,
		Validator:          identity.NewValidator(cfg.Identity.DIDMethods...),
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { s.sync.Close(); return nil })

	if cfg.Profile.BaseURL != "" {
		s.profiles = profile.NewClient(cfg.Profile.BaseURL, cfg.Profile.APIKey, log)
	}

	if cfg.Twin.Enabled {
		if err := s.openTwin(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// selfParticipant resolves the local user. A display name in the config
// is remembered so later runs without one still show it.
func (s *session) selfParticipant(ctx context.Context) (domain.Participant, error) {
	self := domain.Participant{DID: s.cfg.Identity.DID, DisplayName: s.cfg.Identity.DisplayName}
	if self.DisplayName != "" {
		if err := s.prefs.Set(ctx, store.PrefDisplayName, self.DisplayName); err != nil {
			log.Warn().Err(err).Msg("failed to remember display name")
		}
		return self, nil
	}
	name, ok, err := s.prefs.Get(ctx, store.PrefDisplayName)
	if err != nil {
		return self, fmt.Errorf("reading display name: %w", err)
	}
	if ok {
		self.DisplayName = name
	}
	return self, nil
}

func (s *session) openDocStore(ctx context.Context) (docstore.Store, error) {
	cfg := s.cfg.Store
	var backend docstore.Store

	switch cfg.Backend {
	case "sqlite":
		db := s.db
		if cfg.SQLitePath != "" {
			shared, err := store.Open(cfg.SQLitePath, log)
			if err != nil {
				return nil, fmt.Errorf("opening document database: %w", err)
			}
			s.closers = append(s.closers, shared.Close)
			db = shared
		}
		backend = store.NewDocumentStore(db)
	case "redis":
		rdb, err := docstore.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		backend = docstore.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	default:
		backend = docstore.NewHTTPStore(cfg.Endpoint,
			docstore.WithToken(cfg.AuthToken),
			docstore.WithContextName(cfg.Context),
			docstore.WithTimeout(cfg.Timeout()),
		)
	}

	log.Debug().Str("backend", cfg.Backend).Msg("document store ready")
	return docstore.Instrument(backend, cfg.Backend), nil
}

func (s *session) openTwin() error {
	registry, err := llm.NewRegistryFromConfig(s.cfg.Twin, log)
	if err != nil {
		return fmt.Errorf("configuring twin: %w", err)
	}
	client := twin.NewFailoverClient(registry, s.cfg.Twin.Provider, s.cfg.Twin.Fallbacks, log)

	var profiles twin.Profiles
	if s.profiles != nil {
		profiles = s.profiles
	}
	s.twin = twin.New(s.sync, client, profiles, s.hooks, log, twin.Options{
		Persona:   s.cfg.Twin.Persona,
		History:   s.cfg.Twin.History,
		MaxTokens: s.cfg.Twin.MaxTokens,
	})
	return nil
}

// open starts (or resumes) the conversation with peerDID.
func (s *session) open(peerDID, peerName string) (domain.ConversationHeader, error) {
	return s.sync.Open(domain.Participant{DID: peerDID, DisplayName: peerName})
}

// sender is the local user as a message sender.
func (s *session) sender() domain.SenderContext {
	self := s.sync.Self()
	return domain.SenderContext{DID: self.DID, DisplayName: self.DisplayName}
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
