package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Session    string // included in the LWT and RECONNECTED payloads
	BufferSize int
	Log        *zap.Logger
	Now        func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client  paho.Client
	log     *zap.Logger
	now     func() time.Time
	session string

	mu        sync.Mutex
	buffer    *outbox
	connected int // number of successful connections

	commands chan Command
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is unreachable the publisher keeps retrying in the
// background and buffers messages meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ClientID == "" {
		o.ClientID = "hydration-helper"
	}

	p := newPublisher(nil, o)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: o.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
		Session:   o.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("broker not reachable yet, buffering until connected", zap.String("broker", o.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(client paho.Client, o Options) *RealPublisher {
	return &RealPublisher{
		client:   client,
		log:      o.Log,
		now:      o.Now,
		session:  o.Session,
		buffer:   newOutbox(o.BufferSize),
		commands: make(chan Command, 16),
	}
}

// onConnect subscribes to the command topics and replays buffered messages.
func (p *RealPublisher) onConnect(c paho.Client) {
	filters := make(map[string]byte, len(CommandTopics))
	for _, t := range CommandTopics {
		filters[t] = 1
	}
	if token := c.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		p.handleMessage(m.Topic(), m.Payload())
	}); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		p.log.Error("subscribe failed", zap.Error(token.Error()))
	}

	p.mu.Lock()
	p.connected++
	reconnect := p.connected > 1
	pending := p.buffer.take()
	p.mu.Unlock()

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED", Session: p.session})
		if err == nil {
			pending = append(pending, pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: true})
		}
	}

	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.Warn("replay failed, re-buffering", zap.Int("remaining", len(pending)-i), zap.Error(err))
			p.mu.Lock()
			for _, m := range pending[i:] {
				p.buffer.hold(m)
			}
			p.mu.Unlock()
			return
		}
	}
	if len(pending) > 0 {
		p.log.Info("replayed buffered messages", zap.Int("count", len(pending)))
	}
}

// handleMessage parses a command and queues it for the control loop.
func (p *RealPublisher) handleMessage(topic string, payload []byte) {
	cmd, err := ParseCommand(topic, payload)
	if err != nil {
		p.log.Warn("ignoring command", zap.String("topic", topic), zap.Error(err))
		return
	}
	select {
	case p.commands <- cmd:
	default:
		p.log.Warn("command queue full, dropping", zap.String("kind", string(cmd.Kind)))
	}
}

// Commands returns the channel of parsed remote commands.
func (p *RealPublisher) Commands() <-chan Command {
	return p.commands
}

// PublishWeight sends a weight reading. QoS 0, not retained.
func (p *RealPublisher) PublishWeight(reading WeightReading) error {
	return p.publish(pendingMsg{topic: TopicWeight, payload: FormatWeight(reading)})
}

// Publish sends a hydration event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(pendingMsg{topic: TopicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so shutdown and status reach the broker
	return p.publish(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// publish sends msg now, or buffers it while disconnected.
func (p *RealPublisher) publish(msg pendingMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buffer.hold(msg) {
			p.log.Warn("outbox full, dropping oldest", zap.Int("limit", p.buffer.limit))
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg pendingMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
