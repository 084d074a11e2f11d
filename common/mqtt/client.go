package mqtt

import (
	"fmt"
	"time"

	"medease-realtime/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Client 告警发布用的 MQTT 连接
type Client struct {
	client mqtt.Client
	logger *zap.Logger
}

// NewClient 连接 broker，断线后由 paho 自动重连
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	client := mqtt.NewClient(newClientOptions(cfg, logger))
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return &Client{client: client, logger: logger}, nil
}

func newClientOptions(cfg *config.MQTTConfig, logger *zap.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(instanceClientID(cfg.ClientID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	return opts
}

// instanceClientID <prefix>-<8 位随机>，broker 上同名 client id 会互相踢下线
func instanceClientID(prefix string) string {
	suffix := uuid.NewString()[:8]
	if prefix == "" {
		return "medease-" + suffix
	}
	return prefix + "-" + suffix
}

// Publish 等待 broker 确认，超时返回错误
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect 最多等待 250ms 发完未完成的消息
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
