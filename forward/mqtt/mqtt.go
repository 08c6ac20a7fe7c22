// Package mqtt republishes rendered EVTX records to an MQTT broker.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"evtxlink/logging"
)

// MaxForwardWorkers bounds the number of concurrent publish goroutines
// per broker: records arrive from the chunk driver much faster than a
// broker round-trip completes, so a small worker pool plus a bounded
// queue absorbs bursts without blocking the parser.
const MaxForwardWorkers = 5

// MaxForwardQueueSize bounds the number of records buffered per broker
// before Publish starts dropping.
const MaxForwardQueueSize = 500

// Config holds configuration for a single MQTT broker connection.
type Config struct {
	Name     string
	Enabled  bool
	Broker   string
	Port     int
	Username string
	Password string
	ClientID string
	Selector string // optional topic segment between the namespace and "evtx"
	UseTLS   bool
}

// RecordMessage is the JSON structure published for a rendered EVTX record.
type RecordMessage struct {
	Source    string          `json:"source"`
	Chunk     int             `json:"chunk"`
	RecordID  uint64          `json:"record_id"`
	Timestamp string          `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

type forwardJob struct {
	topic   string
	payload []byte
}

// Forwarder publishes rendered records to a single MQTT broker.
type Forwarder struct {
	config *Config
	client pahomqtt.Client

	mu      sync.RWMutex
	running bool

	queue    chan forwardJob
	wg       sync.WaitGroup
	stopChan chan struct{}

	sent   int64
	errors int64
}

// NewForwarder creates a new MQTT forwarder for a single broker.
func NewForwarder(cfg *Config) *Forwarder {
	return &Forwarder{
		config:   cfg,
		queue:    make(chan forwardJob, MaxForwardQueueSize),
		stopChan: make(chan struct{}),
	}
}

// Name returns the forwarder's name.
func (f *Forwarder) Name() string { return f.config.Name }

// IsRunning reports whether the forwarder is connected.
func (f *Forwarder) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// Connect dials the broker and starts the forward worker pool.
func (f *Forwarder) Connect() error {
	f.mu.RLock()
	if f.running {
		f.mu.RUnlock()
		return nil
	}
	f.mu.RUnlock()

	opts := pahomqtt.NewClientOptions()
	if f.config.UseTLS {
		opts.AddBroker(fmt.Sprintf("ssl://%s:%d", f.config.Broker, f.config.Port))
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		opts.AddBroker(fmt.Sprintf("tcp://%s:%d", f.config.Broker, f.config.Port))
	}
	opts.SetClientID(f.config.ClientID)
	if f.config.Username != "" {
		opts.SetUsername(f.config.Username)
		opts.SetPassword(f.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	logging.Log("forward-mqtt", "CONNECT %s: dialing %s:%d", f.config.Name, f.config.Broker, f.config.Port)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connect %s: timeout", f.config.Name)
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", f.config.Name, token.Error())
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	f.client = client
	f.running = true
	f.stopChan = make(chan struct{})
	f.queue = make(chan forwardJob, MaxForwardQueueSize)
	f.mu.Unlock()

	f.startWorkers()
	logging.Log("forward-mqtt", "CONNECT %s: connected", f.config.Name)
	return nil
}

func (f *Forwarder) startWorkers() {
	for i := 0; i < MaxForwardWorkers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
}

func (f *Forwarder) worker() {
	defer f.wg.Done()
	f.mu.RLock()
	client := f.client
	stop := f.stopChan
	f.mu.RUnlock()

	for {
		select {
		case <-stop:
			return
		case job, ok := <-f.queue:
			if !ok {
				return
			}
			token := client.Publish(job.topic, 1, false, job.payload)
			if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
				f.mu.Lock()
				f.errors++
				f.mu.Unlock()
				continue
			}
			f.mu.Lock()
			f.sent++
			f.mu.Unlock()
		}
	}
}

// topic returns the publish topic for a given namespace: "<namespace>/evtx",
// or "<namespace>/<selector>/evtx" when the forwarder has a selector.
func (f *Forwarder) topic(namespace string) string {
	root := namespace
	if f.config.Selector != "" {
		root = fmt.Sprintf("%s/%s", namespace, f.config.Selector)
	}
	return fmt.Sprintf("%s/evtx", root)
}

// Publish enqueues one rendered record for asynchronous delivery. It
// never blocks the chunk driver: a full queue drops the record and
// counts it as an error.
func (f *Forwarder) Publish(namespace string, msg RecordMessage) error {
	f.mu.RLock()
	running := f.running
	f.mu.RUnlock()
	if !running {
		return fmt.Errorf("mqtt broker %q not connected", f.config.Name)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	job := forwardJob{topic: f.topic(namespace), payload: payload}
	select {
	case f.queue <- job:
		return nil
	default:
		f.mu.Lock()
		f.errors++
		f.mu.Unlock()
		return fmt.Errorf("mqtt broker %q forward queue full", f.config.Name)
	}
}

// Disconnect stops the worker pool and disconnects from the broker.
func (f *Forwarder) Disconnect() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	client := f.client
	f.client = nil
	oldStop := f.stopChan
	f.mu.Unlock()

	close(oldStop)

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.Log("forward-mqtt", "DISCONNECT %s: timeout waiting for workers", f.config.Name)
	}

	if client != nil {
		client.Disconnect(500)
	}
}

// Manager owns one Forwarder per configured broker.
type Manager struct {
	mu         sync.RWMutex
	namespace  string
	forwarders map[string]*Forwarder
}

// NewManager creates an empty MQTT forwarding manager.
func NewManager(namespace string) *Manager {
	return &Manager{namespace: namespace, forwarders: make(map[string]*Forwarder)}
}

// Configure replaces the manager's forwarder set, connecting every
// enabled broker and disconnecting brokers that were removed.
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
			logging.Log("forward-mqtt", "CONFIGURE %s: connect failed: %v", cfg.Name, err)
		}
		next[cfg.Name] = fwd
	}

	for name, old := range m.forwarders {
		if _, kept := next[name]; !kept {
			old.Disconnect()
		}
	}
	m.forwarders = next
}

// AnyRunning reports whether at least one broker is connected.
func (m *Manager) AnyRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fwd := range m.forwarders {
		if fwd.IsRunning() {
			return true
		}
	}
	return false
}

// PublishAll forwards the record to every connected broker.
func (m *Manager) PublishAll(msg RecordMessage) {
	m.mu.RLock()
	forwarders := make([]*Forwarder, 0, len(m.forwarders))
	for _, fwd := range m.forwarders {
		forwarders = append(forwarders, fwd)
	}
	namespace := m.namespace
	m.mu.RUnlock()

	for _, fwd := range forwarders {
		if err := fwd.Publish(namespace, msg); err != nil {
			logging.Log("forward-mqtt", "PUBLISH %s: %v", fwd.Name(), err)
		}
	}
}

// StopAll disconnects every forwarder.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fwd := range m.forwarders {
		fwd.Disconnect()
	}
	m.forwarders = make(map[string]*Forwarder)
}
