package main

import (
	"github.com/robfig/cron/v3"

	"github.com/amaumene/godebrid/internal/catalog"
	"github.com/amaumene/godebrid/internal/config"
	"github.com/amaumene/godebrid/internal/handlers"
	"github.com/amaumene/godebrid/internal/scheduler"
	"github.com/amaumene/godebrid/internal/services"
	"github.com/amaumene/godebrid/internal/store"
	"github.com/amaumene/godebrid/pkg/debrid/realdebrid"
	"github.com/amaumene/godebrid/pkg/logger"
)

// app wires every singleton once at startup; nothing here is a package-level
// global reachable from request handling.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   store.Store
	sched   *scheduler.Scheduler
	cron    *cron.Cron
	handler *handlers.Handler
}

func newApp() (*app, error) {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	provider := realdebrid.NewClient()
	sched := scheduler.New(cfg.MaxConcurrent, cfg.QueueSize, log)

	container := &services.Container{
		Provider:     provider,
		Store:        st,
		Catalog:      catalog.NewStoreRepository(st),
		Resolver:     services.NewResolver(provider, log),
		Availability: services.NewAvailability(provider, st, log, cfg.AvailTTL, cfg.CacheDisabled),
		Responses:    services.NewResponseCache(st, log, cfg.ListTTL, cfg.EmptyListTTL, cfg.CacheDisabled),
		Scheduler:    sched,
		Logger:       log,
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		sched:   sched,
		cron:    cron.New(),
		handler: handlers.New(container, cfg),
	}
	a.scheduleSweep()

	log.Infof("[App] services initialized (provider: %s, cache: %s)", provider.Name(), cfg.CacheBackend)
	return a, nil
}

func openStore(cfg *config.Config, log logger.Logger) (store.Store, error) {
	if cfg.CacheBackend == "memory" {
		return store.NewMemory(cfg.CacheSize), nil
	}

	st, err := store.NewBolt(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	log.Infof("[App] bolt cache store opened at %s", cfg.DatabasePath)
	return st, nil
}

func (a *app) scheduleSweep() {
	a.cron.AddFunc("@hourly", func() {
		a.log.Debugf("[App] sweeping expired cache entries")
		a.store.CleanExpired()
	})
	a.cron.Start()
}

func (a *app) shutdown() {
	a.cron.Stop()
	a.sched.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Errorf("[App] failed to close store: %v", err)
	}
}
