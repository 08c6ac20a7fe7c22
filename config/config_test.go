package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOutputFormat_String(t *testing.T) {
	tests := []struct {
		format   OutputFormat
		expected string
	}{
		{FormatXML, "xml"},
		{FormatJSON, "json"},
		{"", "xml"}, // Empty defaults to xml
	}

	for _, tc := range tests {
		if result := tc.format.String(); result != tc.expected {
			t.Errorf("String(%q) = %q, want %q", tc.format, result, tc.expected)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Output != FormatXML {
		t.Errorf("expected output format xml, got %q", cfg.Output)
	}
	if cfg.Threads != 0 {
		t.Errorf("expected Threads 0 (runtime.NumCPU()), got %d", cfg.Threads)
	}
	if !cfg.Web.Enabled {
		t.Error("expected Web.Enabled true by default")
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected Web host 0.0.0.0, got %s", cfg.Web.Host)
	}
	if len(cfg.Inputs) != 0 {
		t.Errorf("expected empty Inputs slice")
	}
}

func TestLoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("returns default for nonexistent file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Output != FormatXML {
			t.Error("expected default config")
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test.yaml")

		cfg := &Config{
			Namespace: "mynamespace",
			Inputs:    []string{"Security.evtx", "System.evtx"},
			Output:    FormatJSON,
			Threads:   4,
			MQTT: []MQTTConfig{
				{Name: "TestMQTT", Broker: "mqtt.local", Port: 1883},
			},
		}

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if loaded.Namespace != "mynamespace" {
			t.Errorf("namespace not preserved, got %q", loaded.Namespace)
		}
		if len(loaded.Inputs) != 2 || loaded.Inputs[0] != "Security.evtx" {
			t.Error("inputs not preserved")
		}
		if loaded.Output != FormatJSON {
			t.Errorf("expected output json, got %q", loaded.Output)
		}
		if loaded.Threads != 4 {
			t.Errorf("expected threads 4, got %d", loaded.Threads)
		}
		if len(loaded.MQTT) != 1 || loaded.MQTT[0].Broker != "mqtt.local" {
			t.Error("MQTT config not preserved")
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		path := filepath.Join(tmpDir, "subdir", "nested", "config.yaml")
		cfg := DefaultConfig()

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("config file was not created")
		}
	})

	t.Run("returns error for invalid yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.yaml")
		os.WriteFile(path, []byte("invalid: yaml: content: ["), 0644)

		_, err := Load(path)
		if err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestMQTTOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddMQTT and FindMQTT", func(t *testing.T) {
		mqtt := MQTTConfig{Name: "Broker1", Broker: "mqtt.local"}
		cfg.AddMQTT(mqtt)

		found := cfg.FindMQTT("Broker1")
		if found == nil {
			t.Fatal("FindMQTT returned nil")
		}
		if found.Broker != "mqtt.local" {
			t.Errorf("expected broker 'mqtt.local', got %s", found.Broker)
		}
	})

	t.Run("FindMQTT returns nil for nonexistent", func(t *testing.T) {
		if cfg.FindMQTT("nonexistent") != nil {
			t.Error("expected nil for nonexistent broker")
		}
	})

	t.Run("RemoveMQTT", func(t *testing.T) {
		if !cfg.RemoveMQTT("Broker1") {
			t.Error("RemoveMQTT returned false")
		}
		if cfg.FindMQTT("Broker1") != nil {
			t.Error("MQTT not removed")
		}
	})

	t.Run("RemoveMQTT returns false for nonexistent", func(t *testing.T) {
		if cfg.RemoveMQTT("nonexistent") {
			t.Error("expected false for nonexistent broker")
		}
	})
}

func TestValkeyOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddValkey and FindValkey", func(t *testing.T) {
		valkey := ValkeyConfig{Name: "Redis1", Address: "localhost:6379"}
		cfg.AddValkey(valkey)

		found := cfg.FindValkey("Redis1")
		if found == nil {
			t.Fatal("FindValkey returned nil")
		}
		if found.Address != "localhost:6379" {
			t.Errorf("expected address 'localhost:6379', got %s", found.Address)
		}
	})

	t.Run("RemoveValkey", func(t *testing.T) {
		if !cfg.RemoveValkey("Redis1") {
			t.Error("RemoveValkey returned false")
		}
		if cfg.FindValkey("Redis1") != nil {
			t.Error("Valkey not removed")
		}
	})
}

func TestKafkaOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddKafka and FindKafka", func(t *testing.T) {
		kafka := KafkaConfig{Name: "Cluster1", Brokers: []string{"kafka:9092"}, Topic: "evtx"}
		cfg.AddKafka(kafka)

		found := cfg.FindKafka("Cluster1")
		if found == nil {
			t.Fatal("FindKafka returned nil")
		}
		if len(found.Brokers) != 1 || found.Brokers[0] != "kafka:9092" {
			t.Errorf("expected brokers ['kafka:9092'], got %v", found.Brokers)
		}
	})

	t.Run("RemoveKafka", func(t *testing.T) {
		if !cfg.RemoveKafka("Cluster1") {
			t.Error("RemoveKafka returned false")
		}
		if cfg.FindKafka("Cluster1") != nil {
			t.Error("Kafka not removed")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("empty namespace is allowed", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid namespace characters rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Namespace = "bad namespace!"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid namespace")
		}
	})

	t.Run("invalid output format rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output = "yaml"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid output format")
		}
	})

	t.Run("negative threads rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Threads = -1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative threads")
		}
	})
}

func TestIsValidNamespace(t *testing.T) {
	tests := []struct {
		ns       string
		expected bool
	}{
		{"", false},
		{"prod-01", true},
		{"prod_01.east", true},
		{"bad namespace", false},
		{"bad/slash", false},
	}
	for _, tc := range tests {
		if result := IsValidNamespace(tc.ns); result != tc.expected {
			t.Errorf("IsValidNamespace(%q) = %v, want %v", tc.ns, result, tc.expected)
		}
	}
}

func TestOnChangeListeners(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "listener.yaml")

	cfg := DefaultConfig()
	done := make(chan struct{}, 1)
	id := cfg.AddOnChangeListener(func() { done <- struct{}{} })

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("expected change listener to fire on Save")
	}

	cfg.RemoveOnChangeListener(id)
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if path == "" {
		t.Error("DefaultPath returned empty string")
	}
	if !filepath.IsAbs(path) && path != "config.yaml" {
		t.Error("expected absolute path or 'config.yaml'")
	}
}
