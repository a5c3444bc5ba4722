package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaz8081/navelo-gatts/internal/gatts"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"tinygo.org/x/bluetooth"
)

// Config holds all application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Service    ServiceConfig    `yaml:"service"`
	Connection ConnectionConfig `yaml:"connection"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	EventQueue int              `yaml:"event_queue"`
	LogLevel   string           `yaml:"log_level"`
}

// DeviceConfig holds the advertised identity.
type DeviceConfig struct {
	Name  string `yaml:"name"`
	AppID uint16 `yaml:"app_id"`
}

// ServiceConfig holds the GATT service layout.
type ServiceConfig struct {
	UUID       string `yaml:"uuid"`
	RecvUUID   string `yaml:"recv_uuid"`
	IndUUID    string `yaml:"ind_uuid"`
	MaxLen     uint16 `yaml:"max_len"`     // per characteristic
	NumHandles uint16 `yaml:"num_handles"` // attribute budget
}

// ConnectionConfig holds connection table settings.
type ConnectionConfig struct {
	MaxConnections int              `yaml:"max_connections"`
	Params         gatts.ConnParams `yaml:"params"`
}

// BroadcastConfig holds the periodic indication settings.
type BroadcastConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MonitorConfig holds the status feed settings. An empty Listen disables it.
type MonitorConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "navelo-gatts")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the values of the reference firmware.
func Default() *Config {
	opts := gatts.DefaultOptions()
	return &Config{
		Device: DeviceConfig{
			Name:  opts.DeviceName,
			AppID: opts.AppID,
		},
		Service: ServiceConfig{
			UUID:       opts.ServiceUUID.String(),
			RecvUUID:   opts.RecvUUID.String(),
			IndUUID:    opts.IndUUID.String(),
			MaxLen:     opts.MaxLen,
			NumHandles: opts.NumHandles,
		},
		Connection: ConnectionConfig{
			MaxConnections: opts.MaxConnections,
			Params:         opts.ConnParams,
		},
		Broadcast: BroadcastConfig{
			Enabled:  true,
			Interval: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: time.Second,
		},
		EventQueue: opts.EventQueue,
		LogLevel:   "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. UUIDs are canonicalised to lower-case hyphenated form.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for _, u := range []*string{&cfg.Service.UUID, &cfg.Service.RecvUUID, &cfg.Service.IndUUID} {
		*u = canonicalUUID(*u)
	}

	return cfg, nil
}

// canonicalUUID returns s in canonical form, or s unchanged if it does not
// parse. Validate reports the latter.
func canonicalUUID(s string) string {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return u.String()
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	uuids := map[string]string{
		"service.uuid":      c.Service.UUID,
		"service.recv_uuid": c.Service.RecvUUID,
		"service.ind_uuid":  c.Service.IndUUID,
	}
	seen := make(map[uuid.UUID]string)
	for _, field := range []string{"service.uuid", "service.recv_uuid", "service.ind_uuid"} {
		u, err := uuid.Parse(uuids[field])
		if err != nil {
			return fmt.Errorf("%s: invalid UUID %q: %w", field, uuids[field], err)
		}
		if other, ok := seen[u]; ok {
			return fmt.Errorf("%s must differ from %s", field, other)
		}
		seen[u] = field
	}

	if c.Service.MaxLen == 0 || c.Service.MaxLen > gatts.MaxAttrLen {
		return fmt.Errorf("service.max_len must be in 1..%d, got %d", gatts.MaxAttrLen, c.Service.MaxLen)
	}
	if c.Service.NumHandles < 6 {
		return fmt.Errorf("service.num_handles must be >= 6, got %d", c.Service.NumHandles)
	}

	if c.Connection.MaxConnections <= 0 {
		return fmt.Errorf("connection.max_connections must be > 0")
	}
	if err := validateConnParams(c.Connection.Params); err != nil {
		return err
	}

	if c.Broadcast.Enabled && c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast.interval must be > 0")
	}
	if c.Monitor.Listen != "" && c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be > 0")
	}

	if c.EventQueue <= 0 {
		return fmt.Errorf("event_queue must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// validateConnParams checks the ranges allowed by the Bluetooth core spec.
func validateConnParams(p gatts.ConnParams) error {
	if p.MinInterval < 6 || p.MaxInterval > 3200 || p.MinInterval > p.MaxInterval {
		return fmt.Errorf("connection.params: intervals must satisfy 6 <= min <= max <= 3200, got %d..%d", p.MinInterval, p.MaxInterval)
	}
	if p.Latency > 499 {
		return fmt.Errorf("connection.params.latency must be <= 499, got %d", p.Latency)
	}
	if p.Timeout < 10 || p.Timeout > 3200 {
		return fmt.Errorf("connection.params.timeout must be in 10..3200, got %d", p.Timeout)
	}
	return nil
}

// ServerOptions converts the config into session options. Call Validate
// first.
func (c *Config) ServerOptions() (gatts.Options, error) {
	opts := gatts.DefaultOptions()
	opts.AppID = c.Device.AppID
	opts.DeviceName = c.Device.Name
	opts.MaxLen = c.Service.MaxLen
	opts.NumHandles = c.Service.NumHandles
	opts.MaxConnections = c.Connection.MaxConnections
	opts.ConnParams = c.Connection.Params
	opts.EventQueue = c.EventQueue

	var err error
	if opts.ServiceUUID, err = bluetooth.ParseUUID(c.Service.UUID); err != nil {
		return opts, fmt.Errorf("service.uuid: %w", err)
	}
	if opts.RecvUUID, err = bluetooth.ParseUUID(c.Service.RecvUUID); err != nil {
		return opts, fmt.Errorf("service.recv_uuid: %w", err)
	}
	if opts.IndUUID, err = bluetooth.ParseUUID(c.Service.IndUUID); err != nil {
		return opts, fmt.Errorf("service.ind_uuid: %w", err)
	}
	return opts, nil
}

// Marshal returns the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultHeader = `# navelo-gatts configuration
# Intervals in connection.params are in 1.25ms units, the timeout in 10ms units.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns the
// written path, or "" without touching anything if the file already exists.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", errors.New("cannot determine home directory")
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := Default().Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
