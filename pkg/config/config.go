// Package config loads and validates the gateway configuration from a JSON
// file with environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/eden/pkg/auth"
)

type Config struct {
	Keys    KeysConfig    `json:"keys"`
	HTTP    HTTPConfig    `json:"http"`
	MQTT    MQTTConfig    `json:"mqtt"`
	CrateDB CrateDBConfig `json:"cratedb"`
	ACLs    []auth.ACL    `json:"acls"`
}

// KeysConfig holds the shared secret used to verify bearer tokens.
type KeysConfig struct {
	Secret string `env:"EDEN_KEYS_SECRET" json:"secret"`
}

type HTTPConfig struct {
	Enabled    bool   `env:"EDEN_HTTP_ENABLED"     json:"enabled"`
	ListenAddr string `env:"EDEN_HTTP_LISTEN_ADDR" json:"listen_addr"`
}

type MQTTConfig struct {
	Enabled               bool     `env:"EDEN_MQTT_ENABLED"                 json:"enabled"`
	BrokerURL             string   `env:"EDEN_MQTT_BROKER_URL"              json:"broker_url"`
	Username              string   `env:"EDEN_MQTT_USERNAME"                json:"username"`
	Password              string   `env:"EDEN_MQTT_PASSWORD"                json:"password"`
	VerifyCA              bool     `env:"EDEN_MQTT_VERIFY_CA"               json:"verify_ca"`
	Topics                []string `env:"EDEN_MQTT_TOPICS"                  json:"topics"`
	QoS                   int      `env:"EDEN_MQTT_QOS"                     json:"qos"`
	KeepAliveSeconds      int      `env:"EDEN_MQTT_KEEP_ALIVE_SECONDS"      json:"keep_alive_seconds"`
	ConnectTimeoutSeconds int      `env:"EDEN_MQTT_CONNECT_TIMEOUT_SECONDS" json:"connect_timeout_seconds"`
}

type CrateDBConfig struct {
	URL                  string `env:"EDEN_CRATEDB_URL"                    json:"url"`
	BlobURL              string `env:"EDEN_CRATEDB_BLOB_URL"               json:"blob_url"`
	Table                string `env:"EDEN_CRATEDB_TABLE"                  json:"table"`
	BlobTable            string `env:"EDEN_CRATEDB_BLOB_TABLE"             json:"blob_table"`
	BulkSize             int    `env:"EDEN_CRATEDB_BULK_SIZE"              json:"bulk_size"`
	FlushIntervalSeconds int    `env:"EDEN_CRATEDB_FLUSH_INTERVAL_SECONDS" json:"flush_interval_seconds"`
	CreateStatement      string `env:"EDEN_CRATEDB_CREATE_STATEMENT"       json:"create_statement,omitempty"`
	InsertStatement      string `env:"EDEN_CRATEDB_INSERT_STATEMENT"       json:"insert_statement,omitempty"`
	OnWriteError         string `env:"EDEN_CRATEDB_ON_WRITE_ERROR"         json:"on_write_error"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		MQTT: MQTTConfig{
			Enabled:               false,
			BrokerURL:             "tcp://localhost:1883",
			VerifyCA:              true,
			Topics:                []string{"sensors/#"},
			QoS:                   2,
			KeepAliveSeconds:      5,
			ConnectTimeoutSeconds: 15,
		},
		CrateDB: CrateDBConfig{
			URL:                  "postgres://crate@localhost:5432/doc",
			BlobURL:              "http://localhost:4200",
			Table:                "sensors.readings",
			BlobTable:            "sensorblobs",
			BulkSize:             1000,
			FlushIntervalSeconds: 5,
			OnWriteError:         "drop",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	// Reset the default topic list when the user provides their own; the JSON
	// decoder would otherwise merge into the existing slice.
	var tmp Config
	if err := json.Unmarshal(data, &tmp); err != nil {
		return nil, err
	}
	if len(tmp.MQTT.Topics) > 0 {
		cfg.MQTT.Topics = nil
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the parts of the configuration that would otherwise fail
// deep inside the pipeline.
func (c *Config) Validate() error {
	if c.Keys.Secret == "" {
		return errors.New("keys.secret must not be empty")
	}
	if !c.HTTP.Enabled && !c.MQTT.Enabled {
		return errors.New("at least one of http or mqtt must be enabled")
	}
	if c.CrateDB.BulkSize <= 0 {
		return fmt.Errorf("cratedb.bulk_size must be positive, got %d", c.CrateDB.BulkSize)
	}
	if c.CrateDB.FlushIntervalSeconds <= 0 {
		return fmt.Errorf("cratedb.flush_interval_seconds must be positive, got %d", c.CrateDB.FlushIntervalSeconds)
	}
	switch c.CrateDB.OnWriteError {
	case "drop", "exit":
	default:
		return fmt.Errorf("cratedb.on_write_error must be %q or %q, got %q", "drop", "exit", c.CrateDB.OnWriteError)
	}
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	for i, acl := range c.ACLs {
		if acl.ClientID == "" {
			return fmt.Errorf("acls[%d].client_id must not be empty", i)
		}
	}
	return nil
}
