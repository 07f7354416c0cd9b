package imu

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tracker-agent/internal/observability"
	"tracker-agent/internal/pipeline"
)

// MQTTConfig configura la fuente IMU por MQTT (el módulo inercial del
// vehículo publica {x,y,z} en JSON sobre un broker local).
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

type MQTTProvider struct {
	cfg     MQTTConfig
	log     *slog.Logger
	client  mqtt.Client
	samples chan pipeline.AccelSample
}

func NewMQTT(cfg MQTTConfig, lg *slog.Logger) *MQTTProvider {
	if cfg.ClientID == "" {
		cfg.ClientID = "tracker-agent-imu"
	}
	return &MQTTProvider{
		cfg:     cfg,
		log:     lg.With("component", "imu"),
		samples: make(chan pipeline.AccelSample, 8),
	}
}

func (p *MQTTProvider) Name() string { return "MQTT IMU" }

func (p *MQTTProvider) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("imu: connect to broker: %w", token.Error())
	}

	token := p.client.Subscribe(p.cfg.Topic, p.cfg.QoS, p.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("imu: subscribe %s: %w", p.cfg.Topic, token.Error())
	}

	p.log.Info("imu subscribed", "broker", p.cfg.Broker, "topic", p.cfg.Topic)
	return nil
}

func (p *MQTTProvider) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var s pipeline.AccelSample
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		p.log.Warn("imu: bad payload", "topic", msg.Topic(), "err", err)
		return
	}
	observability.AccelSamples.Inc()
	// last-value-wins: si el consumidor no alcanza a leer, la muestra
	// vieja se descarta
	select {
	case p.samples <- s:
	default:
		select {
		case <-p.samples:
		default:
		}
		select {
		case p.samples <- s:
		default:
		}
	}
}

func (p *MQTTProvider) Samples() <-chan pipeline.AccelSample { return p.samples }

func (p *MQTTProvider) Close() error {
	if p.client != nil && p.client.IsConnected() {
		if token := p.client.Unsubscribe(p.cfg.Topic); token.Wait() && token.Error() != nil {
			p.log.Warn("imu: unsubscribe failed", "err", token.Error())
		}
		p.client.Disconnect(250)
	}
	return nil
}
