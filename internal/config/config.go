// Package config provides configuration management for IoT Explorer.
//
// Config file locations (priority order):
//  1. $IOTEXPLORER_CONFIG
//  2. ./iotexplorer.yaml
//  3. $XDG_CONFIG_HOME/iotexplorer/config.yaml
//  4. ~/.config/iotexplorer/config.yaml
//  5. /etc/iotexplorer/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the stock device firmware.
const (
	DefaultDiscoveryPort   = 3795
	DefaultControlPort     = 3796
	DefaultDiscoveryWindow = 2500 * time.Millisecond
	DefaultFetchTimeout    = 5 * time.Second
	DefaultCommandTimeout  = 10 * time.Second
	DefaultBaseInterval    = 100 * time.Second
	DefaultFastInterval    = 30 * time.Second
	DefaultMissedThreshold = 3
	DefaultMaxConcurrent   = 16
	DefaultPingTimeout     = time.Second
	DefaultNmapTimeout     = 10 * time.Second
	DefaultDatabasePath    = "./iotexplorer.db"
	DefaultHTTPAddr        = ":3000"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}

	if c.Discovery.Port == 0 {
		c.Discovery.Port = DefaultDiscoveryPort
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = Duration(DefaultDiscoveryWindow)
	}

	if c.Control.Port == 0 {
		c.Control.Port = DefaultControlPort
	}
	if c.Control.FetchTimeout == 0 {
		c.Control.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if c.Control.CommandTimeout == 0 {
		c.Control.CommandTimeout = Duration(DefaultCommandTimeout)
	}

	if c.Coordinator.BaseInterval == 0 {
		c.Coordinator.BaseInterval = Duration(DefaultBaseInterval)
	}
	if c.Coordinator.FastInterval == 0 {
		c.Coordinator.FastInterval = Duration(DefaultFastInterval)
	}
	if c.Coordinator.MissedThreshold == 0 {
		c.Coordinator.MissedThreshold = DefaultMissedThreshold
	}
	if c.Coordinator.MaxConcurrent == 0 {
		c.Coordinator.MaxConcurrent = DefaultMaxConcurrent
	}

	if c.Resolver.ARPTable == "" {
		c.Resolver.ARPTable = "/proc/net/arp"
	}
	if c.Resolver.ARPCommand == "" {
		c.Resolver.ARPCommand = "arp"
	}
	if c.Resolver.PingTimeout == 0 {
		c.Resolver.PingTimeout = Duration(DefaultPingTimeout)
	}
	if c.Resolver.Nmap.Timeout == 0 {
		c.Resolver.Nmap.Timeout = Duration(DefaultNmapTimeout)
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = Duration(10 * time.Second)
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = Duration(30 * time.Second)
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = Duration(60 * time.Second)
	}

	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "iotexplorer"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "iotexplorer"
	}

	if c.InfluxDB.URL == "" {
		c.InfluxDB.URL = "http://localhost:8086"
	}
	if c.InfluxDB.Bucket == "" {
		c.InfluxDB.Bucket = "iotexplorer"
	}
	if c.InfluxDB.BatchSize == 0 {
		c.InfluxDB.BatchSize = 100
	}
	if c.InfluxDB.FlushInterval == 0 {
		c.InfluxDB.FlushInterval = Duration(10 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	var errs []error

	if !validPort(c.Discovery.Port) {
		errs = append(errs, fmt.Errorf("discovery.port %d out of range", c.Discovery.Port))
	}
	if !validPort(c.Control.Port) {
		errs = append(errs, fmt.Errorf("control.port %d out of range", c.Control.Port))
	}
	if c.Discovery.Port == c.Control.Port {
		errs = append(errs, fmt.Errorf("discovery.port and control.port must differ"))
	}
	if c.Coordinator.FastInterval > c.Coordinator.BaseInterval {
		errs = append(errs, fmt.Errorf("coordinator.fast_interval (%s) exceeds base_interval (%s)",
			c.Coordinator.FastInterval.Duration(), c.Coordinator.BaseInterval.Duration()))
	}
	if c.Coordinator.MissedThreshold < 1 {
		errs = append(errs, fmt.Errorf("coordinator.missed_threshold must be at least 1"))
	}
	if c.Coordinator.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("coordinator.max_concurrent must be at least 1"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
		}
		if !validPort(c.MQTT.Port) {
			errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
		}
	}
	if c.InfluxDB.Enabled && c.InfluxDB.Org == "" {
		errs = append(errs, fmt.Errorf("influxdb.org is required when influxdb is enabled"))
	}

	return errors.Join(errs...)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Discovery: udp/%d window %s, Control: tcp/%d\n",
		c.Discovery.Port, c.Discovery.Timeout.Duration(), c.Control.Port)
	summary += fmt.Sprintf("Schedule: normal %s, fast %s, unavailable after %d missed\n",
		c.Coordinator.BaseInterval.Duration(), c.Coordinator.FastInterval.Duration(), c.Coordinator.MissedThreshold)
	summary += fmt.Sprintf("Sinks: mqtt=%v influxdb=%v", c.MQTT.Enabled, c.InfluxDB.Enabled)

	return summary
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
