//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"airwatch/internal/tracker"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	Discovery       bool
	DiscoveryPrefix string
}

// Bridge publishes tracked device state to MQTT, with optional Home
// Assistant discovery for each device's signal strength sensor.
type Bridge struct {
	client          pahomqtt.Client
	view            *tracker.View
	events          *tracker.EventBus
	prefix          string
	discovery       bool
	discoveryPrefix string
	logger          *slog.Logger
	unsub           func()

	mu        sync.Mutex
	announced map[string]bool // address -> discovery published
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(view *tracker.View, events *tracker.EventBus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "airwatch"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	b := &Bridge{
		view:            view,
		events:          events,
		prefix:          cfg.TopicPrefix,
		discovery:       cfg.Discovery,
		discoveryPrefix: cfg.DiscoveryPrefix,
		logger:          logger.With("component", "mqtt"),
		announced:       make(map[string]bool),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(bridgeStateTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// paho runs the connect handler on its own goroutine, possibly before
	// Connect returns, so the client must be set first.
	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to tracker events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.events.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.client, bridgeStateTopic(b.prefix), []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect announces the bridge and republishes every device, also after a
// reconnect. It publishes through c, the client paho hands the handler.
func (b *Bridge) onConnect(c pahomqtt.Client) {
	b.logger.Info("MQTT connected")
	b.publish(c, bridgeStateTopic(b.prefix), []byte("online"), true)
	for _, st := range b.view.List() {
		b.publishDevice(c, st)
	}
}

func (b *Bridge) handleEvent(event tracker.Event) {
	switch event.Type {
	case tracker.EventDeviceSeen, tracker.EventSignalChanged:
		if event.Device != nil {
			b.publishDevice(b.client, *event.Device)
		}
	case tracker.EventSourceClosed:
		b.publish(b.client, bridgeSourceTopic(b.prefix), []byte("closed"), true)
	}
}

func (b *Bridge) publishDevice(c pahomqtt.Client, st tracker.DeviceState) {
	if b.discovery {
		b.mu.Lock()
		first := !b.announced[st.Address]
		b.announced[st.Address] = true
		b.mu.Unlock()
		if first {
			msg := buildDiscovery(st, b.prefix, b.discoveryPrefix)
			b.publish(c, msg.Topic, msg.Payload, true)
			b.logger.Debug("published HA discovery", "address", st.Address)
		}
	}
	b.publish(c, deviceTopic(b.prefix, st.Address), statePayload(st), true)
}

func (b *Bridge) publish(c pahomqtt.Client, topic string, payload []byte, retained bool) {
	token := c.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func statePayload(st tracker.DeviceState) []byte {
	return mustJSON(map[string]interface{}{
		"address":      st.Address,
		"manufacturer": st.Manufacturer,
		"signal":       st.Signal,
		"first_seen":   st.FirstSeen.Format(time.RFC3339),
		"last_seen":    st.LastSeen.Format(time.RFC3339),
	})
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
