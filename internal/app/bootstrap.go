package app

import (
	"time"

	"crosspub/internal/config"
	"crosspub/internal/dispatch"
	"crosspub/internal/httpapi"
	"crosspub/internal/platform"
	"crosspub/internal/platform/linkedin"
	"crosspub/internal/platform/medium"
	"crosspub/internal/platform/telegram"
	"crosspub/internal/platform/twitter"
	"crosspub/internal/scheduler"
	"crosspub/internal/store"
)

// Mapping helpers keep duration parsing and defaults in one place so the
// config package stays plain strings.

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.DurationFieldOr("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	bt, err := config.DurationFieldOr("dispatch.branch_timeout", cfg.Dispatch.BranchTimeout, 30*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{BranchTimeout: bt}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	si, err := config.DurationFieldOr("scheduler.sweep_interval", cfg.Scheduler.SweepInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		SweepInterval: si,
		Timezone:      cfg.Scheduler.Timezone,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	rt, err := config.DurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	wt, err := config.DurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	it, err := config.DurationField("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		JWTSecret:    cfg.HTTP.JWTSecret,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  it,
	}, nil
}

// registerAdapters builds the adapter set from the platforms section. An
// adapter absent from the map runs with defaults; enabled=false skips it.
func registerAdapters(reg *platform.Registry, cfg *config.Config) error {
	pc := func(name string) (config.PlatformConfig, bool) {
		c, ok := cfg.Platforms[name]
		if !ok {
			return config.PlatformConfig{}, true
		}
		return c, c.IsEnabled()
	}

	if c, on := pc("linkedin"); on {
		var opts []linkedin.Option
		if c.BaseURL != "" {
			opts = append(opts, linkedin.WithBaseURL(c.BaseURL))
		}
		reg.Register(linkedin.New(opts...))
	}
	if c, on := pc("medium"); on {
		var opts []medium.Option
		if c.BaseURL != "" {
			opts = append(opts, medium.WithBaseURL(c.BaseURL))
		}
		reg.Register(medium.New(opts...))
	}
	if c, on := pc("twitter"); on {
		var opts []twitter.Option
		if c.BaseURL != "" {
			opts = append(opts, twitter.WithBaseURL(c.BaseURL))
		}
		reg.Register(twitter.New(opts...))
	}
	if c, on := pc("telegram"); on {
		var opts []telegram.Option
		if c.BaseURL != "" {
			opts = append(opts, telegram.WithAPIURL(c.BaseURL))
		}
		reg.Register(telegram.New(opts...))
	}

	applyRateLimits(reg, cfg)
	return nil
}

func applyRateLimits(reg *platform.Registry, cfg *config.Config) {
	for name, c := range cfg.Platforms {
		reg.SetRateLimit(name, c.RatePerSec, c.Burst)
	}
}
