package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"iuran-data/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Roster change actions
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionImported = "imported"
)

// RosterEvent 名册变更通知（订阅方据此刷新列表/统计）
type RosterEvent struct {
	Action       string    `json:"action"`
	RosterID     string    `json:"roster_id,omitempty"`
	NIK          string    `json:"nik,omitempty"`
	SuccessCount int       `json:"success_count,omitempty"`
	FailedCount  int       `json:"failed_count,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers roster events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev RosterEvent) error
}

// NopPublisher drops every event (MQTT disabled).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RosterEvent) error { return nil }

// MQTTPublisher MQTT 实现，topic = <prefix>/<action>
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 连接 broker
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// Topic returns the topic an action is published on.
func Topic(prefix, action string) string {
	return prefix + "/" + action
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev RosterEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal roster event: %w", err)
	}
	topic := Topic(p.prefix, ev.Action)
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev RosterEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
