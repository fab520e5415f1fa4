package statusbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/autopair-core/internal/pairing"
)

// eventCommandAck is the event type under which command acks are published.
const eventCommandAck = "command_ack"

// MQTTClient is the part of mqtt.Client the bridge uses.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// DeviceRegistry is the part of device.Registry the bridge uses.
type DeviceRegistry interface {
	Devices() []device.Device
	Subscribe(buffer int) (<-chan device.Event, func())
	ToggleSaved(ctx context.Context, id string) (device.Device, error)
	RemoveDevice(ctx context.Context, id string) error
}

// WorkflowRunner starts pairing workflows for a device.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, id string, wf pairing.Workflow) (pairing.Outcome, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge publishes registry state to MQTT and executes inbound commands.
type Bridge struct {
	client   MQTTClient
	registry DeviceRegistry
	runner   WorkflowRunner
	logger   Logger
	topics   mqtt.Topics
	now      func() time.Time

	mu        sync.Mutex
	ctx       context.Context //nolint:containedctx // Lifetime of background workflows started by commands
	lastState map[string][]byte

	wg sync.WaitGroup
}

// New creates a bridge. runner may be nil, in which case workflow commands
// are rejected.
func New(client MQTTClient, registry DeviceRegistry, runner WorkflowRunner) *Bridge {
	return &Bridge{
		client:    client,
		registry:  registry,
		runner:    runner,
		logger:    noopLogger{},
		now:       time.Now,
		ctx:       context.Background(),
		lastState: make(map[string][]byte),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Run subscribes to commands, publishes every device state and then
// follows registry events until ctx is done. Workflows started by commands
// are waited for before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	events, cancel := b.registry.Subscribe(64)
	defer cancel()

	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.client.Subscribe(b.topics.AllCommands(), 1, b.handleMessage); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	defer func() {
		if err := b.client.Unsubscribe(b.topics.AllCommands()); err != nil {
			b.logger.Debug("unsubscribe on shutdown", "error", err)
		}
	}()

	b.Resync()
	b.logger.Info("status bridge started", "devices", len(b.lastState))

	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return nil
		case ev, ok := <-events:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.handleEvent(ev)
		}
	}
}

// Resync forgets what was published and republishes every device state.
// Call it after a broker reconnect.
func (b *Bridge) Resync() {
	b.mu.Lock()
	b.lastState = make(map[string][]byte)
	b.mu.Unlock()

	for _, d := range b.registry.Devices() {
		b.publishState(d)
	}
}

func (b *Bridge) handleEvent(ev device.Event) {
	switch ev.Type {
	case device.EventStatusChanged, device.EventSavedToggled:
		if ev.Device != nil && b.publishState(*ev.Device) {
			b.publishEvent(string(ev.Type), ev)
		}
	case device.EventDevicesRefreshed:
		changed := false
		for _, d := range ev.Devices {
			if b.publishState(d) {
				changed = true
			}
		}
		if changed {
			b.publishEvent(string(ev.Type), ev)
		}
	case device.EventDeviceRemoved:
		b.clearState(ev.DeviceID)
		b.publishEvent(string(ev.Type), ev)
	}
}

// publishState publishes d's retained state if it changed. It reports
// whether anything was published.
func (b *Bridge) publishState(d device.Device) bool {
	payload, err := json.Marshal(stateFromDevice(d))
	if err != nil {
		b.logger.Error("encoding device state failed", "device_id", d.ID, "error", err)
		return false
	}

	b.mu.Lock()
	if bytes.Equal(b.lastState[d.ID], payload) {
		b.mu.Unlock()
		return false
	}
	b.lastState[d.ID] = payload
	b.mu.Unlock()

	if err := b.client.PublishRetained(b.topics.DeviceState(d.ID), payload); err != nil {
		b.logger.Warn("publishing device state failed", "device_id", d.ID, "error", err)
		b.mu.Lock()
		delete(b.lastState, d.ID)
		b.mu.Unlock()
		return false
	}
	return true
}

// clearState removes the retained message for id.
func (b *Bridge) clearState(id string) {
	b.mu.Lock()
	delete(b.lastState, id)
	b.mu.Unlock()

	if err := b.client.PublishRetained(b.topics.DeviceState(id), nil); err != nil {
		b.logger.Warn("clearing device state failed", "device_id", id, "error", err)
	}
}

func (b *Bridge) publishEvent(eventType string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding event failed", "type", eventType, "error", err)
		return
	}
	if err := b.client.PublishEvent(b.topics.Event(eventType), payload); err != nil {
		b.logger.Debug("publishing event failed", "type", eventType, "error", err)
	}
}

// handleMessage processes one command. Errors are logged by the MQTT
// client's dispatcher.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	id, ok := b.topics.CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	b.logger.Info("command received", "device_id", id, "action", cmd.Action, "source", cmd.Source)

	switch cmd.Action {
	case ActionPair, ActionConnect, ActionUnpair:
		return b.startWorkflow(ctx, id, cmd)
	case ActionToggleSaved:
		_, err := b.registry.ToggleSaved(ctx, id)
		b.ack(cmd, id, err)
		return err
	case ActionRemove:
		err := b.registry.RemoveDevice(ctx, id)
		b.ack(cmd, id, err)
		return err
	}

	err := fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	b.ack(cmd, id, err)
	return err
}

// startWorkflow runs the workflow in the background so the MQTT client's
// message goroutine is never blocked by retries.
func (b *Bridge) startWorkflow(ctx context.Context, id string, cmd CommandMessage) error {
	if b.runner == nil {
		err := fmt.Errorf("%w: %q (no workflow runner)", ErrUnknownAction, cmd.Action)
		b.ack(cmd, id, err)
		return err
	}

	b.publishAck(AckMessage{CommandID: cmd.ID, DeviceID: id, Action: cmd.Action, Status: AckAccepted})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		out, err := b.runner.RunWorkflow(ctx, id, pairing.Workflow(cmd.Action))
		if err == nil && !out.Success {
			err = fmt.Errorf("%s %s did not succeed", cmd.Action, id)
		}
		b.ack(cmd, id, err)
	}()
	return nil
}

func (b *Bridge) ack(cmd CommandMessage, id string, err error) {
	msg := AckMessage{CommandID: cmd.ID, DeviceID: id, Action: cmd.Action, Status: AckCompleted}
	if err != nil {
		msg.Status = AckFailed
		msg.Error = err.Error()
	}
	b.publishAck(msg)
}

func (b *Bridge) publishAck(msg AckMessage) {
	msg.Timestamp = b.now().UTC()
	b.publishEvent(eventCommandAck, msg)
}
