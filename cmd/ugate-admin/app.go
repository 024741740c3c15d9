package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/ugate-admin/apiclient"
	"github.com/jrsteele09/ugate-admin/auth"
	"github.com/jrsteele09/ugate-admin/identity"
	"github.com/jrsteele09/ugate-admin/internal/config"
	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/superadmin"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/token/refresh"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the wired session lifecycle for one process
type app struct {
	cfg         config.Config
	store       *sessions.Store
	identity    *identity.Client
	coordinator *refresh.Coordinator
	api         *apiclient.Client
	session     *auth.Service
	admin       *superadmin.Service
	closers     []func() error
}

func newApp(cfg config.Config, version string) (*app, error) {
	a := &app{cfg: cfg}

	repo, err := a.newRepo()
	if err != nil {
		return nil, err
	}

	a.store, err = sessions.NewStore(repo, sessions.WithDefaultLifetime(cfg.GetDefaultTokenLifetime()))
	if err != nil {
		return nil, fmt.Errorf("[newApp] credential store: %w", err)
	}

	a.identity, err = identity.New(cfg.GetAuthBaseURL(), identity.WithTimeout(cfg.GetHTTPTimeout()))
	if err != nil {
		return nil, fmt.Errorf("[newApp] identity client: %w", err)
	}

	a.coordinator, err = refresh.NewCoordinator(a.store, a.identity, refresh.WithOracleOptions(token.WithMargin(cfg.GetExpiryMargin())))
	if err != nil {
		return nil, fmt.Errorf("[newApp] refresh coordinator: %w", err)
	}

	a.api, err = apiclient.New(cfg.GetAPIBaseURL(), a.store, a.coordinator.Oracle(), a.coordinator, apiclient.WithTimeout(cfg.GetHTTPTimeout()))
	if err != nil {
		return nil, fmt.Errorf("[newApp] api client: %w", err)
	}

	a.session, err = auth.NewService(auth.Deps{
		Store:     a.store,
		Identity:  a.identity,
		API:       a.api.WithBaseURL(cfg.GetAuthBaseURL()),
		Refresher: a.coordinator,
	},
		auth.WithRefreshInterval(cfg.GetRefreshInterval()),
		auth.WithDirectLoginLifetime(cfg.GetDirectLoginLifetime()),
		auth.WithRequiredRoles(users.ToRoleTypes(cfg.GetRequiredRoles())...),
	)
	if err != nil {
		return nil, fmt.Errorf("[newApp] session context: %w", err)
	}

	// every unrecoverable token failure ends in the session context
	a.coordinator.SetTerminateHook(a.session.TerminateSession)
	a.api.SetHooks(a.session.TerminateSession, func() {
		log.Debug().Msg("session expired, returning to the application root")
	})

	a.admin, err = superadmin.NewService(a.api, a.session.User, superadmin.WithUserAgent(fmt.Sprintf("%s/%s", appName, version)))
	if err != nil {
		return nil, fmt.Errorf("[newApp] super admin service: %w", err)
	}
	return a, nil
}

func (a *app) newRepo() (sessions.Repo, error) {
	switch a.cfg.GetStoreBackend() {
	case config.StoreMemory:
		log.Info().Msg("session store: memory, sessions end with the process")
		return sessions.NewInMemoryRepo(), nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.GetRedisAddr()})
		a.closers = append(a.closers, rdb.Close)
		repo, err := sessions.NewRedisRepo(rdb, a.cfg.GetRedisPrefix())
		if err != nil {
			return nil, fmt.Errorf("[newApp] redis store: %w", err)
		}
		log.Info().Str("addr", a.cfg.GetRedisAddr()).Str("key", repo.Key()).Msg("session store: redis")
		return repo, nil

	default:
		key, err := a.cfg.GetStoreKey()
		if err != nil {
			return nil, fmt.Errorf("[newApp] %w", err)
		}
		var opts []sessions.FileRepoOption
		if key != nil {
			opts = append(opts, sessions.WithEncryptionKey(key))
		}
		repo, err := sessions.NewFileRepo(a.cfg.GetStorePath(), opts...)
		if err != nil {
			return nil, fmt.Errorf("[newApp] file store: %w", err)
		}
		log.Info().Str("path", repo.Path()).Bool("encrypted", key != nil).Msg("session store: file")
		return repo, nil
	}
}

// init restores a persisted session, if any
func (a *app) init(ctx context.Context) error {
	return a.session.Init(ctx)
}

func (a *app) Close() {
	a.session.Close()
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Err(err).Msg("closing resource failed")
		}
	}
}
