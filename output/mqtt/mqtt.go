// Package mqtt publishes pressure records to an MQTT broker, one message
// per channel per record.
package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/alexkolodchuk/maxigauge/output"
)

// Config holds the connection parameters for a broker
type Config struct {
	// Broker is the server URI, e.g. tcp://localhost:1883
	Broker string `koanf:"broker" yaml:"Broker"`

	// ClientID identifies this publisher to the broker
	ClientID string `koanf:"clientid" yaml:"ClientID"`

	// Topic is the base topic; the channel number is appended to it
	Topic string `koanf:"topic" yaml:"Topic"`

	// Username is optional
	Username string `koanf:"username" yaml:"Username"`

	// Password is optional
	Password string `koanf:"password" yaml:"Password"`
}

type payload struct {
	Time     int64   `json:"time"`
	Pressure float64 `json:"pressure"`
}

// MQTT is a broker sink
type MQTT struct {
	client paho.Client
	topic  string
}

// New connects to the broker described by cfg
func New(cfg Config) (*MQTT, error) {
	if cfg.Topic == "" {
		cfg.Topic = "maxigauge"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "maxigauge"
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTT{client: client, topic: cfg.Topic}, nil
}

// Publish sends one message per channel that holds a usable value.
// JSON cannot carry NaN, so empty channels are simply not published.
func (m *MQTT) Publish(rec output.Record) error {
	for ch := 1; ch <= len(rec.Pressures); ch++ {
		if !rec.Valid(ch) {
			continue
		}
		b, err := json.Marshal(payload{Time: rec.Time.Unix(), Pressure: rec.Pressures[ch-1]})
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/channel/%d", m.topic, ch)
		token := m.client.Publish(topic, 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
