//go:build no_mqtt

package main

import (
	"log/slog"

	"airwatch/internal/tracker"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *tracker.View, _ *tracker.EventBus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
