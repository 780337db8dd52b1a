//go:build !no_automation

package main

import (
	"log/slog"

	"airwatch/internal/automation"
	"airwatch/internal/tracker"
	"airwatch/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(view *tracker.View, events *tracker.EventBus, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	library, err := automation.OpenLibrary(cfg.ScriptsDir)
	if err != nil {
		logger.Error("open script library", "err", err)
		return &autoStopper{}, nil
	}

	var opts []automation.Option
	if cfg.Telegram.BotToken != "" {
		opts = append(opts, automation.WithNotifier(&automation.Telegram{
			Token:   cfg.Telegram.BotToken,
			ChatIDs: cfg.Telegram.ChatIDs,
		}))
	}
	engine := automation.NewEngine(view, library, logger, opts...)
	if err := engine.Start(events); err != nil {
		logger.Error("start automation", "err", err)
		return &autoStopper{}, nil
	}

	return &autoStopper{engine: engine}, []web.ServerOption{web.WithAutomation(engine, library)}
}
