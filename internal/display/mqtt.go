package display

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/autopair-core/internal/infrastructure/mqtt"
)

// Subscriber is the part of mqtt.Client the MQTT source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// statePayload is the message published on the display state topic.
type statePayload struct {
	External *bool `json:"external"`
}

// MQTTSource follows {"external": bool} messages on a topic, for setups
// where another host watches the display (a dock controller, a desktop
// agent). Publishers should set the retain flag so a restart picks up the
// current state immediately.
type MQTTSource struct {
	*ManualSource
	sub    Subscriber
	topic  string
	logger Logger
}

// NewMQTTSource creates a source for topic. Call Start to subscribe.
func NewMQTTSource(sub Subscriber, topic string) *MQTTSource {
	return &MQTTSource{
		ManualSource: NewManualSource(),
		sub:          sub,
		topic:        topic,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *MQTTSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Start subscribes to the state topic.
func (s *MQTTSource) Start() error {
	if err := s.sub.Subscribe(s.topic, 1, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	s.logger.Info("following display state topic", "topic", s.topic)
	return nil
}

func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	var msg statePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if msg.External == nil {
		return fmt.Errorf("%w: missing \"external\" field", ErrInvalidPayload)
	}
	s.logger.Debug("display state received", "topic", topic, "external", *msg.External)
	s.Set(*msg.External)
	return nil
}
