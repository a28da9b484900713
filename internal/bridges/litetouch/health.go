package litetouch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// Degraded reasons.
const (
	reasonMQTTDown     = "MQTT disconnected"
	reasonPanelDown    = "panel disconnected"
	reasonPanelSilent  = "panel not answering queries"
	reasonBridgeLaunch = "bridge starting"
)

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	BridgeID     string
	Version      string
	PanelAddress string        // reported in the connection section
	Interval     time.Duration // default 30s
	Publisher    HealthPublisher
	Panel        Connector
}

// HealthReporter publishes the retained bridge health message on
// graylogic/health/litetouch every interval, and on demand.
//
// The bridge is healthy when MQTT and the panel link are both up. A query
// timeout with no frame received since the previous report marks the
// panel as not answering even though its link is open.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	mu      sync.Mutex
	devices int
	prev    Stats

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	log logSink
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Start reports every interval until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				if err := h.PublishNow(); err != nil {
					h.log.error("failed to publish health", err)
				}
			}
		}
	}()
}

// Stop ends reporting and publishes a final "stopping" status. Safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.publish(HealthStopping, "") //nolint:errcheck // Best effort during shutdown
	})
}

// SetDeviceCount updates the number of devices in the device map.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.mu.Lock()
	h.devices = count
	h.mu.Unlock()
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.log.set(logger)
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, reasonBridgeLaunch)
}

// PublishNow assesses and publishes the current status.
func (h *HealthReporter) PublishNow() error {
	stats := h.panelStats()
	status, reason := h.assess(stats)
	return h.publishStats(status, reason, stats)
}

func (h *HealthReporter) panelStats() Stats {
	if h.cfg.Panel == nil {
		return Stats{}
	}
	return h.cfg.Panel.Stats()
}

// assess compares stats with the previous report and records them.
func (h *HealthReporter) assess(stats Stats) (HealthStatus, string) {
	h.mu.Lock()
	prev := h.prev
	h.prev = stats
	h.mu.Unlock()

	switch {
	case h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected():
		return HealthDegraded, reasonMQTTDown
	case h.cfg.Panel == nil || !h.cfg.Panel.IsConnected():
		return HealthDegraded, reasonPanelDown
	case stats.QueryTimeouts > prev.QueryTimeouts && stats.FramesRx == prev.FramesRx:
		return HealthDegraded, reasonPanelSilent
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	return h.publishStats(status, reason, h.panelStats())
}

func (h *HealthReporter) publishStats(status HealthStatus, reason string, stats Stats) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	h.mu.Lock()
	devices := h.devices
	h.mu.Unlock()

	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, devices, h.started)
	msg.Reason = reason
	if msg.Connection != nil {
		msg.Connection.Address = h.cfg.PanelAddress
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	return h.cfg.Publisher.Publish(HealthTopic(), payload, 1, true)
}
