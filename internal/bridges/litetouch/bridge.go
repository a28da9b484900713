package litetouch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// commandTimeout bounds a single panel command.
	commandTimeout = 5 * time.Second

	// readAllTimeout bounds a full LED sweep.
	readAllTimeout = 60 * time.Second

	// interReadDelay spaces out LED queries during a sweep.
	interReadDelay = 100 * time.Millisecond

	// fullLevel is the level recorded for a load switched on.
	fullLevel = 100
)

// Bridge translates between Gray Logic MQTT messages and the panel.
// It handles:
//   - Commands from Core (load on/off/dim, button toggle) sent to the panel
//   - LED events from the panel published as retained state messages
//   - LED read requests answered through panel queries
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      *Config
	bridgeID string
	mqtt     MQTTClient
	panel    Connector
	health   *HealthReporter
	recorder StateRecorder
	audit    CommandAuditor

	byID      map[string]DeviceConfig
	byAddress map[string]DeviceConfig
	mappingMu sync.RWMutex

	// State cache for change detection, keyed by device ID.
	stateCache   map[string]Event
	stateCacheMu sync.Mutex

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	log logSink
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// StateRecorder stores observed panel state as time-series points.
// It is optional - if nil, nothing is recorded.
type StateRecorder interface {
	// RecordLEDState records a keypad button LED.
	RecordLEDState(deviceID string, ev Event)

	// RecordLoadLevel records a level the bridge set on a load.
	RecordLoadLevel(deviceID string, load, level int)
}

// CommandAuditor records executed commands.
// It is optional - if nil, commands are not audited.
type CommandAuditor interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// CommandRecord describes one command and its outcome.
type CommandRecord struct {
	CommandID string
	DeviceID  string
	Command   string
	Address   string
	Source    string
	UserID    string
	Success   bool
	Error     string
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the device map.
	Config *Config

	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is reported in health messages.
	Version string

	// PanelAddress is reported in health messages.
	PanelAddress string

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Panel is the panel connection.
	Panel Connector

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional time-series storage.
	Recorder StateRecorder

	// Auditor is optional command audit storage.
	Auditor CommandAuditor
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Panel == nil {
		return nil, fmt.Errorf("panel client is required")
	}
	if opts.BridgeID == "" {
		opts.BridgeID = "litetouch-bridge-01"
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	byID, byAddress := opts.Config.BuildDeviceIndex()

	b := &Bridge{
		cfg:        opts.Config,
		bridgeID:   opts.BridgeID,
		mqtt:       opts.MQTTClient,
		panel:      opts.Panel,
		recorder:   opts.Recorder,
		audit:      opts.Auditor,
		byID:       byID,
		byAddress:  byAddress,
		stateCache: make(map[string]Event),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
	}
	b.log.set(opts.Logger)

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:     opts.BridgeID,
		Version:      opts.Version,
		PanelAddress: opts.PanelAddress,
		Interval:     opts.HealthInterval,
		Publisher:    opts.MQTTClient,
		Panel:        opts.Panel,
	})
	b.health.SetDeviceCount(len(byID))
	b.health.SetLogger(opts.Logger)

	return b, nil
}

// Start subscribes to MQTT topics, installs the panel event handler and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.log.error("failed to publish starting status", err)
	}

	b.panel.SetOnEvent(b.handlePanelEvent)

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.log.info("subscribed to commands", "topic", commandTopic)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.log.info("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.log.error("failed to publish healthy status", err)
	}

	b.log.info("bridge started", "bridge_id", b.bridgeID, "devices", b.DeviceCount())
	return nil
}

// Stop gracefully shuts down the bridge.
// The panel client is owned by the caller and is not closed.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.panel.SetOnEvent(nil)
		b.health.Stop()
		b.log.info("bridge stopped")
	})
}

// DeviceCount returns the number of mapped devices.
func (b *Bridge) DeviceCount() int {
	b.mappingMu.RLock()
	defer b.mappingMu.RUnlock()
	return len(b.byID)
}

// ReloadDevices replaces the device map and prunes stale cache entries.
func (b *Bridge) ReloadDevices(cfg *Config) {
	byID, byAddress := cfg.BuildDeviceIndex()

	b.mappingMu.Lock()
	b.cfg = cfg
	b.byID = byID
	b.byAddress = byAddress
	b.mappingMu.Unlock()

	b.PruneStateCache()
	b.health.SetDeviceCount(len(byID))
	b.log.info("device map reloaded", "devices", len(byID))
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.log.error("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(payload)
	case "request":
		b.handleRequest(payload)
	default:
		b.log.error("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand processes a command message from Core.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log.error("failed to parse command", err)
		return
	}

	b.log.info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	b.mappingMu.RLock()
	dev, ok := b.byID[cmd.DeviceID]
	b.mappingMu.RUnlock()

	if !ok {
		b.publishAckError(cmd, "", ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", cmd.DeviceID))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	code, err := b.executeCommand(ctx, cmd, dev)
	b.auditCommand(cmd, dev, err)
	if err != nil {
		b.publishAckError(cmd, dev.Address(), code, err.Error())
		return
	}
	b.publishAck(cmd, dev.Address(), AckAccepted)
}

// executeCommand sends a command to the panel. On failure it returns the
// ack error code to report.
func (b *Bridge) executeCommand(ctx context.Context, cmd CommandMessage, dev DeviceConfig) (string, error) {
	switch dev.Type {
	case DeviceTypeLoad:
		return b.executeLoadCommand(ctx, cmd, dev)
	case DeviceTypeButton:
		if cmd.Command != "toggle" {
			return ErrCodeInvalidCommand, fmt.Errorf("button devices only accept toggle, got %q", cmd.Command)
		}
		if err := b.panel.ToggleSwitch(ctx, dev.Keypad, dev.Button); err != nil {
			return errorCode(err), err
		}
		return "", nil
	default:
		return ErrCodeNotConfigured, fmt.Errorf("unknown device type %q", dev.Type)
	}
}

func (b *Bridge) executeLoadCommand(ctx context.Context, cmd CommandMessage, dev DeviceConfig) (string, error) {
	var (
		level int
		err   error
	)

	switch cmd.Command {
	case "on":
		level = fullLevel
		err = b.panel.SetLoadOn(ctx, dev.Load)
	case "off":
		level = 0
		err = b.panel.SetLoadOff(ctx, dev.Load)
	case "dim":
		var perr error
		level, perr = levelParameter(cmd.Parameters)
		if perr != nil {
			return ErrCodeInvalidParameters, perr
		}
		err = b.panel.SetLoadLevel(ctx, dev.Load, level)
	default:
		return ErrCodeInvalidCommand, fmt.Errorf("unknown command: %s", cmd.Command)
	}

	if err != nil {
		return errorCode(err), err
	}
	if b.recorder != nil {
		b.recorder.RecordLoadLevel(dev.DeviceID, dev.Load, level)
	}
	return "", nil
}

// levelParameter extracts a 0-100 "level" from command parameters.
func levelParameter(params map[string]any) (int, error) {
	raw, ok := params["level"]
	if !ok {
		return 0, fmt.Errorf("missing 'level' parameter")
	}
	level, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("'level' must be a number")
	}
	if level < 0 || level > maxLevel {
		return 0, fmt.Errorf("'level' must be 0-100, got %.2f", level)
	}
	return int(level + 0.5), nil //nolint:mnd // round half up
}

// errorCode maps a client error onto an ack/response error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrQueryTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrQueryInFlight):
		return ErrCodeBusy
	default:
		return ErrCodePanelUnreachable
	}
}

func (b *Bridge) auditCommand(cmd CommandMessage, dev DeviceConfig, err error) {
	if b.audit == nil {
		return
	}
	rec := CommandRecord{
		CommandID: cmd.ID,
		DeviceID:  cmd.DeviceID,
		Command:   cmd.Command,
		Address:   dev.Address(),
		Source:    cmd.Source,
		UserID:    cmd.UserID,
		Success:   err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if aerr := b.audit.RecordCommand(b.ctx, rec); aerr != nil {
		b.log.warn("command audit failed", "command_id", cmd.ID, "error", aerr)
	}
}

func (b *Bridge) publishAck(cmd CommandMessage, address string, status AckStatus) {
	b.publishJSON(AckTopic(ackAddress(address)), NewAckMessage(cmd, status, address), false)
}

func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string) {
	b.publishJSON(AckTopic(ackAddress(address)), NewAckError(cmd, address, code, message), false)
	b.log.error("command failed", fmt.Errorf("code=%s message=%s", code, message))
}

// ackAddress names the ack topic for commands that never resolved a device.
func ackAddress(address string) string {
	if address == "" {
		return "unknown"
	}
	return address
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.error("failed to marshal message", err, "topic", topic)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.log.error("failed to publish", err, "topic", topic)
	}
}

// handleRequest processes a request message from Core.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.log.error("failed to parse request", err)
		return
	}

	b.log.info("received request", "request_id", req.RequestID, "action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case "read_led":
		resp = b.handleReadLED(req)
	case "read_all":
		resp = b.handleReadAll(req)
	default:
		resp = failedResponse(req, ErrCodeInvalidCommand, fmt.Sprintf("unknown action: %s", req.Action))
	}

	b.publishJSON(ResponseTopic(req.RequestID), resp, false)
}

// handleReadLED queries one button's LED.
//
// Parameter "single": true uses the per-button query, otherwise the
// keypad-wide mask query.
func (b *Bridge) handleReadLED(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return failedResponse(req, ErrCodeInvalidParameters, "device_id is required")
	}

	b.mappingMu.RLock()
	dev, ok := b.byID[req.DeviceID]
	b.mappingMu.RUnlock()

	if !ok || dev.Type != DeviceTypeButton {
		return failedResponse(req, ErrCodeNotConfigured,
			fmt.Sprintf("button device %s not configured", req.DeviceID))
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	single, _ := req.Parameters["single"].(bool)
	ev, err := b.queryButton(ctx, dev, single)
	if err != nil {
		return failedResponse(req, errorCode(err), err.Error())
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"device_id": dev.DeviceID,
			"address":   ev.ID(),
			"on":        ev.State,
			"value":     ev.Value,
			"source":    string(ev.Kind),
		},
	}
}

// handleReadAll queries every mapped button, one at a time.
func (b *Bridge) handleReadAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	b.mappingMu.RLock()
	buttons := make([]DeviceConfig, 0, len(b.byID))
	for _, dev := range b.byID {
		if dev.Type == DeviceTypeButton {
			buttons = append(buttons, dev)
		}
	}
	b.mappingMu.RUnlock()

	sort.Slice(buttons, func(i, j int) bool { return buttons[i].Address() < buttons[j].Address() })

	read, failed := 0, 0
	for i, dev := range buttons {
		if i > 0 {
			select {
			case <-ctx.Done():
				return failedResponse(req, ErrCodeTimeout, "read_all timed out")
			case <-time.After(interReadDelay):
			}
		}
		if _, err := b.queryButton(ctx, dev, false); err != nil {
			failed++
			b.log.warn("LED read failed", "device_id", dev.DeviceID, "error", err)
			continue
		}
		read++
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   failed == 0,
		Data: map[string]any{
			"read":   read,
			"failed": failed,
		},
	}
}

func (b *Bridge) queryButton(ctx context.Context, dev DeviceConfig, single bool) (Event, error) {
	if single {
		return b.panel.QueryButtonLED(ctx, dev.Keypad, dev.Button)
	}
	return b.panel.QueryLEDState(ctx, dev.Keypad, dev.Button)
}

func failedResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// handlePanelEvent publishes a LED event for a mapped button.
// Runs on the panel reader goroutine.
func (b *Bridge) handlePanelEvent(ev Event) {
	address := ev.ID()

	b.mappingMu.RLock()
	dev, ok := b.byAddress[address]
	b.mappingMu.RUnlock()

	if !ok || dev.Type != DeviceTypeButton {
		b.log.debug("event for unmapped button", "address", address, "on", ev.State)
		return
	}

	if b.stateUnchanged(dev.DeviceID, ev) {
		return
	}

	b.publishJSON(StateTopic(address), NewStateMessage(dev.DeviceID, ev), true)

	if b.recorder != nil {
		b.recorder.RecordLEDState(dev.DeviceID, ev)
	}
}

// stateUnchanged reports whether ev matches the cached state for the
// device, updating the cache when it does not.
func (b *Bridge) stateUnchanged(deviceID string, ev Event) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	cached, ok := b.stateCache[deviceID]
	if ok && cached.State == ev.State && cached.Value == ev.Value {
		return true
	}
	b.stateCache[deviceID] = ev
	return false
}

// ClearStateCache removes all entries from the state cache, so the next
// event for every button is published.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[string]Event)
	b.stateCacheMu.Unlock()
}

// PruneStateCache removes cache entries for devices no longer mapped.
func (b *Bridge) PruneStateCache() {
	b.mappingMu.RLock()
	valid := make(map[string]struct{}, len(b.byID))
	for id := range b.byID {
		valid[id] = struct{}{}
	}
	b.mappingMu.RUnlock()

	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()
	for id := range b.stateCache {
		if _, ok := valid[id]; !ok {
			delete(b.stateCache, id)
		}
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.log.set(logger)
	b.health.SetLogger(logger)
}

// HealthReporter returns the bridge's health reporter, for LWT setup.
func (b *Bridge) HealthReporter() *HealthReporter {
	return b.health
}
