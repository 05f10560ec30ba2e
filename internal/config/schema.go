package config

import (
	"fmt"
	"strconv"
	"time"

	"iotexplorer/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Control     ControlConfig     `yaml:"control"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	DeviceTypes DeviceTypesConfig `yaml:"device_types"`
	Database    DatabaseConfig    `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     logger.Config     `yaml:"logging"`
}

// DiscoveryConfig holds broadcast discovery settings
type DiscoveryConfig struct {
	Port       int      `yaml:"port"`
	Timeout    Duration `yaml:"timeout"`
	Interfaces []string `yaml:"interfaces,omitempty"` // allow-list, empty = all
	Targets    []string `yaml:"targets,omitempty"`    // explicit broadcast addresses
}

// ControlConfig holds device control API settings
type ControlConfig struct {
	Port           int      `yaml:"port"`
	FetchTimeout   Duration `yaml:"fetch_timeout"`
	CommandTimeout Duration `yaml:"command_timeout"`
}

// CoordinatorConfig holds polling schedule settings
type CoordinatorConfig struct {
	BaseInterval    Duration `yaml:"base_interval"`
	FastInterval    Duration `yaml:"fast_interval"`
	MissedThreshold int      `yaml:"missed_threshold"`
	MaxConcurrent   int      `yaml:"max_concurrent"`
	PollStatus      *bool    `yaml:"poll_status,omitempty"` // nil = true
}

// StatusPolling reports whether device status is refreshed after each tick.
func (c CoordinatorConfig) StatusPolling() bool {
	return c.PollStatus == nil || *c.PollStatus
}

// ResolverConfig holds link-layer resolution settings
type ResolverConfig struct {
	ARPTable    string     `yaml:"arp_table"`
	ARPCommand  string     `yaml:"arp_command"`
	Ping        *bool      `yaml:"ping,omitempty"` // nil = true
	PingTimeout Duration   `yaml:"ping_timeout"`
	Nmap        NmapConfig `yaml:"nmap"`
}

// PingEnabled reports whether an ICMP echo is used to provoke ARP resolution.
func (r ResolverConfig) PingEnabled() bool {
	return r.Ping == nil || *r.Ping
}

// NmapConfig holds settings for the nmap ARP fallback
type NmapConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary,omitempty"`
	Timeout Duration `yaml:"timeout"`
}

// DeviceTypesConfig points at the descriptor table file
type DeviceTypesConfig struct {
	Path string `yaml:"path,omitempty"` // empty = built-in table
	// Watch reloads the file when it changes on disk
	Watch bool `yaml:"watch"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// MQTTConfig holds MQTT event publishing settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig holds metrics settings
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token,omitempty"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// Duration wraps time.Duration for YAML unmarshaling.
// Accepts Go duration strings ("2.5s") or plain numbers of seconds (2.5).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return fmt.Errorf("negative duration %q", s)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
