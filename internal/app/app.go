// Package app wires configuration, storage, the adapter registry and the
// services into one process with start/stop and live config reload.
package app

import (
	"context"
	"fmt"
	"sync"

	"crosspub/internal/config"
	"crosspub/internal/dispatch"
	"crosspub/internal/eventbus"
	"crosspub/internal/httpapi"
	"crosspub/internal/platform"
	"crosspub/internal/publish"
	"crosspub/internal/scheduler"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	st   store.Store
	reg  *platform.Registry

	disp  *dispatch.Dispatcher
	sched *scheduler.Service
	pub   *publish.Service
	http  *httpapi.Server

	mu        sync.Mutex
	watchDone context.CancelFunc
	cfgSub    chan *config.Config
	httpErr   chan error
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	storeCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	reg := platform.NewRegistry(log.With(logx.String("comp", "registry")))
	if err := registerAdapters(reg, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	disp := dispatch.New(dispCfg, log.With(logx.String("comp", "dispatch")), reg, st, bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, st, disp, log.With(logx.String("comp", "scheduler")), bus)

	pub := publish.New(st, reg, disp, sched, log.With(logx.String("comp", "publish")))

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	srv := httpapi.NewServer(httpCfg, pub, bus, log.With(logx.String("comp", "http")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		st:      st,
		reg:     reg,
		disp:    disp,
		sched:   sched,
		pub:     pub,
		http:    srv,
	}, nil
}

// Publisher exposes the publish service (one-shot CLI commands).
func (a *App) Publisher() *publish.Service { return a.pub }

func (a *App) Start(ctx context.Context) error {
	a.log.Info("starting")

	a.sched.Start(ctx)

	a.httpErr = make(chan error, 1)
	go func() { a.httpErr <- a.http.Start() }()

	// Config watch plus reload loop.
	wctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.watchDone = cancel
	a.cfgSub = a.cfgm.Subscribe(1)
	sub := a.cfgSub
	a.mu.Unlock()

	go func() {
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()
	go func() {
		for cfg := range sub {
			a.applyConfig(cfg)
		}
	}()

	notifyReady(a.log)
	a.log.Info("started")
	return nil
}

// Wait blocks until ctx is cancelled or the HTTP listener fails.
func (a *App) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-a.httpErr:
		if err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	notifyStopping(a.log)

	a.mu.Lock()
	if a.watchDone != nil {
		a.watchDone()
		a.watchDone = nil
	}
	sub := a.cfgSub
	a.cfgSub = nil
	a.mu.Unlock()
	if sub != nil {
		a.cfgm.Unsubscribe(sub)
	}

	if err := a.http.Stop(ctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	a.sched.Stop(ctx)

	if err := a.st.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// applyConfig pushes a validated reload into the live components.
// Storage driver and HTTP listener changes need a restart; everything else
// applies in place.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.log.Info("applying config reload")

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if schedCfg, err := mapSchedulerConfig(cfg); err == nil {
		a.sched.Apply(schedCfg)
	} else {
		a.log.Warn("scheduler config rejected on reload", logx.Err(err))
	}

	applyRateLimits(a.reg, cfg)
}
