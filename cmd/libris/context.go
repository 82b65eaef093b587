package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"libris/internal/activity"
	"libris/internal/approvals"
	"libris/internal/config"
	"libris/internal/deliverysync"
	"libris/internal/downloads"
	"libris/internal/notifications"
	"libris/internal/policy"
	"libris/internal/requests"
	"libris/internal/storage"
	"libris/internal/users"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// stores bundles everything a subcommand needs against one open database.
type stores struct {
	cfg      *config.Config
	db       *storage.DB
	users    *users.Store
	requests *requests.Store
	ledger   *activity.Store
	spool    *downloads.Spool
	service  *approvals.Service
	sync     *deliverysync.Synchronizer
	notifier notifications.Service
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStores opens the database for the duration of one command.
func (c *commandContext) withStores(fn func(*stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	spool, err := downloads.NewSpool(filepath.Join(cfg.Paths.StateDir, "queue"))
	if err != nil {
		return err
	}

	userStore := users.NewStore(db)
	requestStore := requests.NewStore(db)
	ledger := activity.NewStore(db, requestStore)
	s := &stores{
		cfg:      cfg,
		db:       db,
		users:    userStore,
		requests: requestStore,
		ledger:   ledger,
		spool:    spool,
		service:  approvals.NewService(cfg.Requests, requestStore, userStore, ledger, spool, nil),
		sync:     deliverysync.New(requestStore, ledger, nil),
		notifier: notifications.NewService(cfg),
	}
	return fn(s)
}

// policySettings converts the configured policy section into resolver inputs.
func policySettings(cfg *config.Config) (policy.Settings, []policy.Source) {
	settings := policy.Settings{Defaults: make(map[string]policy.Mode, len(cfg.Policy.Defaults))}
	for contentType, mode := range cfg.Policy.Defaults {
		if parsed, ok := policy.ParseMode(mode); ok {
			settings.Defaults[contentType] = parsed
		}
	}
	for _, rule := range cfg.Policy.Rules {
		if parsed, ok := policy.ParseMode(rule.Mode); ok {
			settings.Rules = append(settings.Rules, policy.Rule{
				Source:      rule.Source,
				ContentType: rule.ContentType,
				Mode:        parsed,
			})
		}
	}
	sources := make([]policy.Source, 0, len(cfg.Policy.Sources))
	for _, src := range cfg.Policy.Sources {
		sources = append(sources, policy.Source{ID: src.ID, ContentTypes: src.ContentTypes})
	}
	return settings, sources
}

// resolveUser maps a --as username to its store row.
func resolveUser(ctx context.Context, s *stores, cmdName, username string) (*users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%s requires --as <username>", cmdName)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q (create one with `libris user add`)", username)
	}
	return user, nil
}
