package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyland-inc/eden/pkg/auth"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Keys.Secret = "s3cret"
	return cfg
}

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if !cfg.HTTP.Enabled {
		t.Error("HTTP.Enabled = false, want true by default")
	}
	if cfg.CrateDB.BulkSize != 1000 {
		t.Errorf("CrateDB.BulkSize = %d, want 1000", cfg.CrateDB.BulkSize)
	}
	if cfg.CrateDB.OnWriteError != "drop" {
		t.Errorf("CrateDB.OnWriteError = %q, want %q", cfg.CrateDB.OnWriteError, "drop")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.Keys.Secret = "" }},
		{"no producers", func(c *Config) { c.HTTP.Enabled = false; c.MQTT.Enabled = false }},
		{"zero bulk size", func(c *Config) { c.CrateDB.BulkSize = 0 }},
		{"negative flush interval", func(c *Config) { c.CrateDB.FlushIntervalSeconds = -1 }},
		{"unknown write policy", func(c *Config) { c.CrateDB.OnWriteError = "retry" }},
		{"out of range qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }},
		{"acl without client id", func(c *Config) {
			c.ACLs = []auth.ACL{{ClientID: "", Roles: []string{"sensor"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("EDEN_KEYS_SECRET", "env-secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Keys.Secret != "env-secret" {
		t.Errorf("Keys.Secret = %q, want %q", cfg.Keys.Secret, "env-secret")
	}
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Errorf("HTTP.ListenAddr = %q, want %q", cfg.HTTP.ListenAddr, ":8080")
	}
}

func TestLoadConfigMissingFileWithoutSecretFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("LoadConfig() = nil error, want validation error")
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"keys": {"secret": "file-secret"},
		"http": {"enabled": true, "listen_addr": ":9090"},
		"mqtt": {"enabled": true, "topics": ["devices/+/telemetry"]},
		"cratedb": {"bulk_size": 50},
		"acls": [{"client_id": "device-1", "roles": ["sensor"]}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EDEN_CRATEDB_BULK_SIZE", "200")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Keys.Secret != "file-secret" {
		t.Errorf("Keys.Secret = %q, want %q", cfg.Keys.Secret, "file-secret")
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("HTTP.ListenAddr = %q, want %q", cfg.HTTP.ListenAddr, ":9090")
	}
	if cfg.CrateDB.BulkSize != 200 {
		t.Errorf("CrateDB.BulkSize = %d, want env override 200", cfg.CrateDB.BulkSize)
	}
	// Table stays at its default when the file omits it.
	if cfg.CrateDB.Table != "sensors.readings" {
		t.Errorf("CrateDB.Table = %q, want default %q", cfg.CrateDB.Table, "sensors.readings")
	}
	if len(cfg.MQTT.Topics) != 1 || cfg.MQTT.Topics[0] != "devices/+/telemetry" {
		t.Errorf("MQTT.Topics = %v, want user-provided list", cfg.MQTT.Topics)
	}
	if len(cfg.ACLs) != 1 || cfg.ACLs[0].ClientID != "device-1" {
		t.Errorf("ACLs = %+v, want one entry for device-1", cfg.ACLs)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := validConfig()
	cfg.ACLs = []auth.ACL{{ClientID: "device-1", Roles: []string{"sensor"}}}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Keys.Secret != cfg.Keys.Secret {
		t.Errorf("Keys.Secret = %q, want %q", loaded.Keys.Secret, cfg.Keys.Secret)
	}
	if len(loaded.ACLs) != 1 || loaded.ACLs[0].ClientID != "device-1" {
		t.Errorf("ACLs = %+v, want round-tripped entry", loaded.ACLs)
	}
}
