// Package config provides configuration for the eventfold runtime and CLI.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "eventfold.yaml"

// Config is the eventfold runtime configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Service is the name used in logs, metrics and traces
	Service string `yaml:"service"`

	// Store configures the event store backend
	Store StoreConfig `yaml:"store"`

	// Snapshots configures snapshotting
	Snapshots SnapshotConfig `yaml:"snapshots"`

	// EventBus configures the external event bus
	EventBus BusConfig `yaml:"event_bus"`

	// FlowBus configures the internal flow bus
	FlowBus BusConfig `yaml:"flow_bus"`
}

// StoreConfig contains event store settings.
type StoreConfig struct {
	// Driver is the store backend (postgres, memory)
	Driver string `yaml:"driver"`

	// URL is the database connection string
	URL string `yaml:"url,omitempty"`

	// Schema is the database schema to use (postgres only)
	Schema string `yaml:"schema"`

	// Codec is the payload encoding (json, msgpack)
	Codec string `yaml:"codec"`
}

// SnapshotConfig contains snapshotting settings.
type SnapshotConfig struct {
	// Threshold is how many events must be replayed before a snapshot is
	// taken. Zero disables snapshotting.
	Threshold int64 `yaml:"threshold"`
}

// BusConfig contains settings for one bus.
type BusConfig struct {
	// Driver selects the bus backend (kafka, sns, channel, none)
	Driver string `yaml:"driver"`

	// Brokers are the Kafka broker addresses (kafka only)
	Brokers []string `yaml:"brokers,omitempty"`

	// Topic is the Kafka topic (kafka only)
	Topic string `yaml:"topic,omitempty"`

	// TopicARN is the SNS topic ARN (sns only)
	TopicARN string `yaml:"topic_arn,omitempty"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Service: "eventfold",
		Store: StoreConfig{
			Driver: "postgres",
			Schema: "eventfold",
			Codec:  "json",
		},
		Snapshots: SnapshotConfig{
			Threshold: 100,
		},
		EventBus: BusConfig{
			Driver:  "kafka",
			Brokers: []string{"localhost:9092"},
			Topic:   "eventfold.events",
		},
		FlowBus: BusConfig{
			Driver: "channel",
		},
	}
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save saves the configuration to the specified directory.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// Validate validates the configuration and returns the list of problems.
func (c *Config) Validate() []string {
	var errors []string

	if c.Service == "" {
		errors = append(errors, "service is required")
	}

	switch c.Store.Driver {
	case "":
		errors = append(errors, "store.driver is required")
	case "postgres":
		if c.Store.URL == "" {
			errors = append(errors, "store.url is required for postgres driver")
		}
	case "memory":
	default:
		errors = append(errors, "store.driver must be 'postgres' or 'memory'")
	}

	if c.Store.Codec != "" && c.Store.Codec != "json" && c.Store.Codec != "msgpack" {
		errors = append(errors, "store.codec must be 'json' or 'msgpack'")
	}

	if c.Snapshots.Threshold < 0 {
		errors = append(errors, "snapshots.threshold must not be negative")
	}

	for name, bus := range map[string]BusConfig{"event_bus": c.EventBus, "flow_bus": c.FlowBus} {
		switch bus.Driver {
		case "", "channel", "none":
		case "kafka":
			if len(bus.Brokers) == 0 {
				errors = append(errors, name+".brokers is required for kafka driver")
			}
			if bus.Topic == "" {
				errors = append(errors, name+".topic is required for kafka driver")
			}
		case "sns":
			if bus.TopicARN == "" {
				errors = append(errors, name+".topic_arn is required for sns driver")
			}
		default:
			errors = append(errors, name+".driver must be 'kafka', 'sns', 'channel' or 'none'")
		}
	}

	return errors
}
