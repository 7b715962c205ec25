package notify

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openfab/fabdrive/logger"
)

const (
	mqttConnectTimeout = 5 * time.Second

	// DefaultTopicPrefix prefixes every published topic; the full topic is
	// <prefix>/<event>/<device id>.
	DefaultTopicPrefix = "fabdrive"
)

// MQTTPublisher publishes events to an MQTT broker, one topic per event kind
// and device.
//
// Publication is fire-and-forget at QoS 0: delivery failures are logged, never
// surfaced. The underlying client reconnects automatically.
type MQTTPublisher struct {
	client pahomqtt.Client
	prefix string
	logger logger.Logger
}

var _ Notifier = (*MQTTPublisher)(nil)

// NewMQTTPublisher connects to the broker and returns a publisher.
//
// An empty prefix selects DefaultTopicPrefix.
func NewMQTTPublisher(brokerURL, clientID, prefix string, l logger.Logger) (*MQTTPublisher, error) {
	if l == nil {
		l = logger.GetLogger()
	}
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		l.Info("mqtt connected", "broker", brokerURL)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("notify: mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect to %s: %w", brokerURL, err)
	}

	return &MQTTPublisher{client: client, prefix: prefix, logger: l}, nil
}

// Publish sends the event to <prefix>/<event>/<device id> at QoS 0.
func (p *MQTTPublisher) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal event failed", "event", ev.Event, "error", err)

		return
	}

	topic := fmt.Sprintf("%s/%s/%s", p.prefix, ev.Event, ev.ID)
	token := p.client.Publish(topic, 0, false, payload)

	// Fire-and-forget: collect the error asynchronously for logging only.
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects from the broker, allowing a short drain period.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
