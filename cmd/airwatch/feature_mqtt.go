//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttbridge "airwatch/internal/mqtt"

	"airwatch/internal/tracker"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initMQTT(view *tracker.View, events *tracker.EventBus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	bridge, err := mqttbridge.NewBridge(view, events, mqttbridge.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		Discovery:       cfg.MQTT.Discovery,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	return &mqttStopper{bridge: bridge}
}
