// Package kafka republishes rendered EVTX records to Kafka topics.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"evtxlink/logging"
)

// SASLMechanism names a SASL authentication mechanism.
type SASLMechanism string

const (
	SASLNone        SASLMechanism = ""
	SASLPlain       SASLMechanism = "PLAIN"
	SASLSCRAMSHA256 SASLMechanism = "SCRAM-SHA-256"
	SASLSCRAMSHA512 SASLMechanism = "SCRAM-SHA-512"
)

// Config holds configuration for a Kafka cluster connection.
type Config struct {
	Name          string
	Enabled       bool
	Brokers       []string
	Topic         string
	UseTLS        bool
	TLSSkipVerify bool
	SASLMechanism SASLMechanism
	Username      string
	Password      string
	RequiredAcks  int
}

// GetTLSConfig returns a TLS configuration if TLS is enabled.
func (c *Config) GetTLSConfig() *tls.Config {
	if !c.UseTLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: c.TLSSkipVerify}
}

// ConnectionStatus represents the state of a Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// RecordMessage is the JSON structure published to Kafka for a rendered
// EVTX record.
type RecordMessage struct {
	Source    string          `json:"source"`
	Chunk     int             `json:"chunk"`
	RecordID  uint64          `json:"record_id"`
	Timestamp string          `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

// Forwarder publishes rendered records to a single Kafka cluster.
type Forwarder struct {
	config *Config
	writer *kafka.Writer
	status ConnectionStatus
	mu     sync.RWMutex

	sent   int64
	errors int64
}

// NewForwarder creates a new Kafka forwarder for a single cluster.
func NewForwarder(cfg *Config) *Forwarder {
	return &Forwarder{config: cfg, status: StatusDisconnected}
}

// Name returns the forwarder's name.
func (f *Forwarder) Name() string { return f.config.Name }

// Status returns the current connection status.
func (f *Forwarder) Status() ConnectionStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Connect verifies connectivity to the cluster and opens the topic writer.
func (f *Forwarder) Connect() error {
	f.mu.Lock()
	f.status = StatusConnecting
	f.mu.Unlock()

	dialer := f.createDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", f.config.Brokers[0])
	if err != nil {
		f.mu.Lock()
		f.status = StatusError
		f.mu.Unlock()
		logging.Log("forward-kafka", "CONNECT %s: FAILED - %v", f.config.Name, err)
		return fmt.Errorf("kafka connect: %w", err)
	}
	conn.Close()

	f.mu.Lock()
	f.writer = &kafka.Writer{
		Addr:                   kafka.TCP(f.config.Brokers...),
		Topic:                  f.config.Topic,
		Balancer:               &kafka.LeastBytes{},
		Transport:              f.createTransport(),
		RequiredAcks:           kafka.RequiredAcks(f.config.RequiredAcks),
		Async:                  false,
		BatchSize:              100,
		BatchBytes:             1048576,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	f.status = StatusConnected
	f.mu.Unlock()

	logging.Log("forward-kafka", "CONNECT %s: connected, topic %q", f.config.Name, f.config.Topic)
	return nil
}

// Close closes the topic writer.
func (f *Forwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer != nil {
		f.writer.Close()
		f.writer = nil
	}
	f.status = StatusDisconnected
}

// Publish sends one rendered record to the configured topic.
func (f *Forwarder) Publish(ctx context.Context, msg RecordMessage) error {
	f.mu.RLock()
	writer := f.writer
	running := f.status == StatusConnected
	f.mu.RUnlock()

	if !running || writer == nil {
		return fmt.Errorf("kafka cluster %q not connected", f.config.Name)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := []byte(fmt.Sprintf("%s:%d", msg.Source, msg.RecordID))
	if err := writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload, Time: time.Now()}); err != nil {
		f.mu.Lock()
		f.errors++
		f.mu.Unlock()
		if strings.Contains(err.Error(), "Unknown Topic") {
			logging.Log("forward-kafka", "TOPIC %s: topic %q not found on broker", f.config.Name, f.config.Topic)
		}
		return fmt.Errorf("kafka produce: %w", err)
	}

	f.mu.Lock()
	f.sent++
	f.mu.Unlock()
	return nil
}

func (f *Forwarder) createDialer() *kafka.Dialer {
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if f.config.UseTLS {
		dialer.TLS = f.config.GetTLSConfig()
	}
	if mechanism := f.saslMechanism(); mechanism != nil {
		dialer.SASLMechanism = mechanism
	}
	return dialer
}

func (f *Forwarder) createTransport() *kafka.Transport {
	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	if f.config.UseTLS {
		transport.TLS = f.config.GetTLSConfig()
	}
	if mechanism := f.saslMechanism(); mechanism != nil {
		transport.SASL = mechanism
	}
	return transport
}

func (f *Forwarder) saslMechanism() sasl.Mechanism {
	if f.config.Username == "" {
		return nil
	}
	switch f.config.SASLMechanism {
	case SASLPlain:
		return plain.Mechanism{Username: f.config.Username, Password: f.config.Password}
	case SASLSCRAMSHA256:
		mechanism, _ := scram.Mechanism(scram.SHA256, f.config.Username, f.config.Password)
		return mechanism
	case SASLSCRAMSHA512:
		mechanism, _ := scram.Mechanism(scram.SHA512, f.config.Username, f.config.Password)
		return mechanism
	default:
		return nil
	}
}

// Manager owns one Forwarder per configured cluster.
type Manager struct {
	mu         sync.RWMutex
	forwarders map[string]*Forwarder
}

// NewManager creates an empty Kafka forwarding manager.
func NewManager() *Manager {
	return &Manager{forwarders: make(map[string]*Forwarder)}
}

// Configure replaces the manager's forwarder set from the given configs,
// connecting every enabled cluster and closing clusters that were removed.
func (m *Manager) Configure(configs []Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*Forwarder, len(configs))
	for _, cfg := range configs {
		cfg := cfg
		if !cfg.Enabled {
			continue
		}
		fwd := NewForwarder(&cfg)
		if err := fwd.Connect(); err != nil {
			logging.Log("forward-kafka", "CONFIGURE %s: connect failed: %v", cfg.Name, err)
		}
		next[cfg.Name] = fwd
	}

	for name, old := range m.forwarders {
		if _, kept := next[name]; !kept {
			old.Close()
		}
	}
	m.forwarders = next
}

// AnyPublishing reports whether at least one cluster is connected, so
// callers can skip rendering a record to JSON when nothing is listening.
func (m *Manager) AnyPublishing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fwd := range m.forwarders {
		if fwd.Status() == StatusConnected {
			return true
		}
	}
	return false
}

// PublishAll sends the record to every connected cluster.
func (m *Manager) PublishAll(ctx context.Context, msg RecordMessage) {
	m.mu.RLock()
	forwarders := make([]*Forwarder, 0, len(m.forwarders))
	for _, fwd := range m.forwarders {
		forwarders = append(forwarders, fwd)
	}
	m.mu.RUnlock()

	for _, fwd := range forwarders {
		if err := fwd.Publish(ctx, msg); err != nil {
			logging.Log("forward-kafka", "PUBLISH %s: %v", fwd.Name(), err)
		}
	}
}

// StopAll closes every forwarder's writer.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fwd := range m.forwarders {
		fwd.Close()
	}
	m.forwarders = make(map[string]*Forwarder)
}
