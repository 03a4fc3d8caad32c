package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// MQTTSink 把事件镜像到 MQTT，主题为 {Topic}/{type}
// 作为常驻订阅者，broker 不可用时丢弃消息而不是返回错误，避免被 Hub 移除
type MQTTSink struct {
	cfg       MQTTConfig
	client    mqtt.Client
	connected atomic.Bool
	published atomic.Uint64
	errors    atomic.Uint64
	log       *slog.Logger
}

var _ Observer = (*MQTTSink)(nil)

// NewMQTTSink 连接 broker，连接失败时后台自动重试
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	s := MQTTSink{cfg: cfg, log: slog.With("notify", "mqtt")}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		s.connected.Store(true)
		s.log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.connected.Store(false)
		s.log.Warn("mqtt connection lost, will auto-reconnect", "err", err, "broker", cfg.Broker)
	}
	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		s.log.Warn("mqtt connection timeout, retrying in background", "broker", cfg.Broker)
		return &s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return &s, nil
}

func (s *MQTTSink) ID() string {
	return "mqtt:" + s.cfg.ClientID
}

func (s *MQTTSink) Send(ctx context.Context, msg Message) error {
	if !s.connected.Load() {
		s.errors.Add(1)
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	timeout := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	token := s.client.Publish(s.cfg.Topic+"/"+msg.Type, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(timeout) {
		s.errors.Add(1)
		s.log.Warn("mqtt publish timeout", "type", msg.Type)
		return nil
	}
	if err := token.Error(); err != nil {
		s.errors.Add(1)
		s.log.Warn("mqtt publish failed", "type", msg.Type, "err", err)
		return nil
	}
	s.published.Add(1)
	return nil
}

// Close 断开连接，等待 250ms 发送残留消息
func (s *MQTTSink) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.connected.Store(false)
	return nil
}
