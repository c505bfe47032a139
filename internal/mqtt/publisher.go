// Package mqtt publishes vehicle alert events to an MQTT broker so fleet
// dashboards can react to the same alerts that are e-mailed.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/config"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/logger"
	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
)

// AlertEvent is the payload published for each dispatched vehicle.
type AlertEvent struct {
	RunID         string               `json:"run_id"`
	VehicleID     string               `json:"vehicle_id"`
	VehicleNumber string               `json:"vehicle_number"`
	Department    models.Department    `json:"department"`
	Alerts        []models.ExpiryAlert `json:"alerts"`
	Recipients    int                  `json:"recipients"`
	Delivered     int                  `json:"delivered"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// Publisher publishes alert events.
type Publisher interface {
	PublishAlert(ctx context.Context, ev AlertEvent) error
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoPublisher implements Publisher using Eclipse Paho.
type PahoPublisher struct {
	cli    pahoClient
	prefix string
	qos    byte
}

// NewPahoPublisher connects to the broker configured in cfg.
func NewPahoPublisher(cfg config.MQTTConfig) (*PahoPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	log := logger.WithComponent("mqtt")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) {
		log.Info("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.WithError(err).Error("MQTT connection lost")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PahoPublisher{cli: c, prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"), qos: cfg.QoS}, nil
}

// Topic returns the topic an event for vehicleNumber is published on.
func (p *PahoPublisher) Topic(vehicleNumber string) string {
	return p.prefix + "/" + vehicleNumber
}

// PublishAlert implements Publisher. It waits for the broker until ctx is done.
func (p *PahoPublisher) PublishAlert(ctx context.Context, ev AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	token := p.cli.Publish(p.Topic(ev.VehicleNumber), p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// MockPublisher records events in memory.
type MockPublisher struct {
	mu     sync.Mutex
	Events []AlertEvent
	Err    error
}

// PublishAlert implements Publisher.
func (m *MockPublisher) PublishAlert(_ context.Context, ev AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AlertEvent(nil), m.Events...)
}
