package mqtt

import (
	"context"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"cropwatch/internal/realtime"
)

// Source is a realtime.Source reading device changes from a topic such as
// cropwatch/db/cw_devices/+.
type Source struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewSource(client mqtt.Client, topic string, qos byte, logger *zap.Logger) *Source {
	return &Source{client: client, topic: topic, qos: qos, logger: logger}
}

func (s *Source) Subscribe(ctx context.Context, h realtime.Handler) (func(), error) {
	token := s.client.Subscribe(s.topic, s.qos, s.onMessage(h))
	if err := waitToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to device changes", zap.String("topic", s.topic))

	return func() {
		t := s.client.Unsubscribe(s.topic)
		if err := waitToken(context.Background(), t); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.String("topic", s.topic), zap.Error(err))
		}
	}, nil
}

func (s *Source) onMessage(h realtime.Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := realtime.DecodeEvent(msg.Payload())
		if err != nil {
			if errors.Is(err, realtime.ErrUnsupportedEvent) {
				s.logger.Debug("ignoring change", zap.String("topic", msg.Topic()), zap.Error(err))
				return
			}
			s.logger.Warn("bad change payload", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		h(ev)
	}
}
