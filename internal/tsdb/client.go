package tsdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"airwatch/internal/tracker"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 * time.Second

	measurementSignal = "signal_strength"
)

// Config holds InfluxDB settings.
type Config struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval time.Duration
}

// Client writes signal points to InfluxDB.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect creates the client, pings the server and starts the batched
// non-blocking write API.
func Connect(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.handleWriteErrors(c.writeAPI.Errors())
	return c, nil
}

func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// WriteSignal queues one signal strength point.
func (c *Client) WriteSignal(addr, manufacturer string, dbm int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(signalPoint(addr, manufacturer, dbm, at))
}

// Attach writes a point for every device_seen and signal_changed event that
// carries a known signal. Returns an unsubscribe function.
func (c *Client) Attach(events *tracker.EventBus) func() {
	handler := func(e tracker.Event) {
		if e.Device == nil || !e.Device.Signal.Known {
			return
		}
		c.WriteSignal(e.Device.Address, e.Device.Manufacturer, e.Device.Signal.Value, e.At)
	}
	unsubSeen := events.On(tracker.EventDeviceSeen, handler)
	unsubChanged := events.On(tracker.EventSignalChanged, handler)
	return func() {
		unsubSeen()
		unsubChanged()
	}
}

// Close flushes pending writes and closes the client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

func signalPoint(addr, manufacturer string, dbm int, at time.Time) *write.Point {
	return write.NewPoint(
		measurementSignal,
		map[string]string{
			"address":      addr,
			"manufacturer": manufacturer,
		},
		map[string]interface{}{
			"dbm": dbm,
		},
		at,
	)
}
