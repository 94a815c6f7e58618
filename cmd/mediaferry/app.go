package main

import (
	"context"
	"time"

	"github.com/juju/clock"

	"mediaferry/internal/auth"
	"mediaferry/internal/browser"
	"mediaferry/internal/config"
	"mediaferry/internal/session"
	"mediaferry/internal/store"
	"mediaferry/internal/transfer"
	"mediaferry/internal/usage"
)

// app wires the engine together for one CLI invocation: config -> store ->
// browser driver -> authenticator -> orchestrator.
type app struct {
	store  *store.Store
	driver *browser.Driver
	orch   *transfer.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	st, err := store.New(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	driver := browser.New(browser.Config{
		Headless:          cfg.Browser.Headless,
		Bin:               cfg.Browser.Bin,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.NavigationTimeout(),
		ElementTimeout:    browser.DefaultConfig().ElementTimeout,
		NetworkIdle:       cfg.NetworkIdle(),
	}, logger)
	if err := driver.Start(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	sessions := session.NewStore(cfg.Session.Dir, cfg.SessionFreshness(), clock.WallClock, logger)
	prompter := newStdinPrompter()
	handler := auth.NewHandler(handlerConfig(cfg), prompter, clock.WallClock, logger)
	authn := auth.NewAuthenticator(auth.Accounts{
		AppleID:        cfg.Apple.ID,
		ApplePassword:  cfg.Apple.Password,
		AppleLoginURL:  cfg.Apple.LoginURL,
		GoogleAccount:  cfg.Google.Account,
		GoogleLoginURL: cfg.Google.LoginURL,
	}, sessions, handler, prompter, logger)

	meter := usage.NewMeter(cfg.Google.StorageURL, clock.WallClock, logger)
	machine := transfer.NewMachine(transfer.NewMachineConfig(cfg), clock.WallClock, logger)

	orch := transfer.NewOrchestrator(transfer.Deps{
		Config:  cfg,
		Auth:    authn,
		Meter:   meter,
		Machine: machine,
		Store:   st,
		Clock:   clock.WallClock,
		Log:     logger,
		NewPage: func(ctx context.Context) (browser.Page, error) {
			return driver.NewPage(ctx)
		},
	})

	return &app{store: st, driver: driver, orch: orch}, nil
}

func (a *app) Close() {
	_ = a.driver.Close()
	_ = a.store.Close()
}

func handlerConfig(cfg *config.Config) auth.HandlerConfig {
	hc := auth.DefaultHandlerConfig()
	if v := cfg.Transfer.OneTimeCodeCeilingSeconds; v > 0 {
		hc.OneTimeCodeCeiling = seconds(v)
	}
	if v := cfg.Transfer.OneTimeCodePollSeconds; v > 0 {
		hc.OneTimeCodePoll = seconds(v)
	}
	if v := cfg.Transfer.PushApprovalCeilingSeconds; v > 0 {
		hc.PushApprovalCeiling = seconds(v)
	}
	if v := cfg.Transfer.PushApprovalPollSeconds; v > 0 {
		hc.PushApprovalPoll = seconds(v)
	}
	return hc
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}
