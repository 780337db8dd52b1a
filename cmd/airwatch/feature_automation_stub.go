//go:build no_automation

package main

import (
	"log/slog"

	"airwatch/internal/tracker"
	"airwatch/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *tracker.View, _ *tracker.EventBus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
