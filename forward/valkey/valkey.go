// Package valkey republishes rendered EVTX records to a Valkey/Redis
// pub-sub channel, optionally mirroring recent records into a capped
// list key per channel.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"evtxlink/logging"
)

// Config holds configuration for a single Valkey/Redis connection.
type Config struct {
	Name           string
	Enabled        bool
	Address        string
	Password       string
	Database       int
	Selector       string
	UseTLS         bool
	KeyTTL         time.Duration
	MirrorListSize int
}

// RecordMessage is the JSON structure published for a rendered EVTX record.
type RecordMessage struct {
	Source    string          `json:"source"`
	Chunk     int             `json:"chunk"`
	RecordID  uint64          `json:"record_id"`
	Timestamp string          `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

// joinKey joins key segments with colons, trimming empty segments so a
// missing selector never produces a double colon.
func joinKey(segments ...string) string {
	var parts []string
	for _, s := range segments {
		s = strings.Trim(s, ":")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Forwarder publishes rendered records to a single Valkey server.
type Forwarder struct {
	config *Config
	client *redis.Client

	mu      sync.RWMutex
	running bool

	sent   int64
	errors int64
}

// NewForwarder creates a new Valkey forwarder for a single server.
func NewForwarder(cfg *Config) *Forwarder {
	return &Forwarder{config: cfg}
}

// Name returns the forwarder's name.
func (f *Forwarder) Name() string { return f.config.Name }

// IsRunning reports whether the forwarder is connected.
func (f *Forwarder) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// Connect dials the Valkey server and verifies connectivity with a ping.
func (f *Forwarder) Connect() error {
	f.mu.RLock()
	if f.running {
		f.mu.RUnlock()
		return nil
	}
	f.mu.RUnlock()

	opts := &redis.Options{
		Addr:         f.config.Address,
		Password:     f.config.Password,
		DB:           f.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if f.config.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	logging.Log("forward-valkey", "CONNECT %s: dialing %s", f.config.Name, f.config.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("valkey connect %s: %w", f.config.Name, err)
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		client.Close()
		return nil
	}
	f.client = client
	f.running = true
	f.mu.Unlock()

	logging.Log("forward-valkey", "CONNECT %s: connected", f.config.Name)
	return nil
}

// channel returns the pub-sub channel and mirror list key for a namespace.
func (f *Forwarder) channel(namespace string) (pub, list string) {
	base := joinKey(namespace, f.config.Selector, "evtx")
	return base, joinKey(base, "recent")
}

// Publish publishes the record to the forwarder's pub-sub channel and,
// when MirrorListSize > 0, pushes it onto a capped recent-records list
// (LPUSH + LTRIM) rather than a single latest-value key, since records
// are a stream.
func (f *Forwarder) Publish(namespace string, msg RecordMessage) error {
	f.mu.RLock()
	client := f.client
	running := f.running
	cfg := f.config
	f.mu.RUnlock()
	if !running || client == nil {
		return fmt.Errorf("valkey server %q not connected", cfg.Name)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	pubChannel, listKey := f.channel(namespace)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Publish(ctx, pubChannel, data).Err(); err != nil {
		f.mu.Lock()
		f.errors++
		f.mu.Unlock()
		return fmt.Errorf("valkey publish: %w", err)
	}

	if cfg.MirrorListSize > 0 {
		pipe := client.Pipeline()
		pipe.LPush(ctx, listKey, data)
		pipe.LTrim(ctx, listKey, 0, int64(cfg.MirrorListSize-1))
		if cfg.KeyTTL > 0 {
			pipe.Expire(ctx, listKey, cfg.KeyTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logging.Log("forward-valkey", "MIRROR %s: %v", cfg.Name, err)
		}
	}

	f.mu.Lock()
	f.sent++
	f.mu.Unlock()
	return nil
}

// Close closes the connection to the Valkey server.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	f.running = false
	client := f.client
	f.client = nil
	if client != nil {
		return client.Close()
	}
	return nil
}

// Manager owns one Forwarder per configured Valkey server.
type Manager struct {
	mu         sync.RWMutex
	namespace  string
	forwarders map[string]*Forwarder
}

// NewManager creates an empty Valkey forwarding manager.
func NewManager(namespace string) *Manager {
	return &Manager{namespace: namespace, forwarders: make(map[string]*Forwarder)}
}

// Configure replaces the manager's forwarder set, connecting every
// enabled server and closing servers that were removed.
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
			logging.Log("forward-valkey", "CONFIGURE %s: connect failed: %v", cfg.Name, err)
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

// AnyRunning reports whether at least one server is connected.
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

// PublishAll forwards the record to every connected server.
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
			logging.Log("forward-valkey", "PUBLISH %s: %v", fwd.Name(), err)
		}
	}
}

// StopAll closes every forwarder's connection.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fwd := range m.forwarders {
		fwd.Close()
	}
	m.forwarders = make(map[string]*Forwarder)
}
