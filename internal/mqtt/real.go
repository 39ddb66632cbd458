package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/irrigation-controller/internal/trace"
)

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int // <= 0 uses DefaultBufferSize
	Logger     *log.Logger
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client client
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher connected to the given broker.
// A retained SHUTDOWN event is registered as the last will, so subscribers
// see the controller go away even if it dies without a clean shutdown.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "irrigation-controller"
	}
	p := newPublisher(nil, opts)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	c := paho.NewClient(co)
	p.client = c
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(c client, opts Options) *RealPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := newRingBuffer(size)
	buf.logger = logger
	return &RealPublisher{
		client: c,
		logger: logger,
		now:    time.Now,
		buf:    buf,
	}
}

// onConnect runs on paho's goroutine after every successful (re)connect.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		p.logger.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		p.logger.Printf("mqtt: reconnected")
		if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err != nil {
			p.logger.Printf("mqtt: publish RECONNECTED: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Printf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// WritePoint sends a trace point to the MQTT broker.
func (p *RealPublisher) WritePoint(pt trace.Point) error {
	payload, err := FormatPointPayload(pt)
	if err != nil {
		return fmt.Errorf("format point payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: TraceTopic(pt.Trace), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		p.logger.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
