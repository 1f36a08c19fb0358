// Package config loads the node configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/WebFirstLanguage/lanchat/internal/logging"
	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/wire"
)

// Transports lists the accepted [node] transport values
var Transports = []string{"zmq", "quic", "tcp"}

// Config holds all node configuration
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Router    RouterConfig    `toml:"router"`
	Control   ControlConfig   `toml:"control"`
	HTTP      HTTPConfig      `toml:"http"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node and its message listener
type NodeConfig struct {
	Name       string `toml:"name"`
	Transport  string `toml:"transport"`
	Codec      string `toml:"codec"`
	ListenHost string `toml:"listen_host"`
	Port       int    `toml:"port"`
	Version    int    `toml:"version"`
}

// DiscoveryConfig controls the UDP beacons
type DiscoveryConfig struct {
	UDPPort       int      `toml:"udp_port"`
	BroadcastAddr string   `toml:"broadcast_addr"`
	Interval      Duration `toml:"interval"`
	Timeout       Duration `toml:"timeout"`
}

// RouterConfig controls the message queues
type RouterConfig struct {
	QueueSize int `toml:"queue_size"`
}

// ControlConfig controls the local JSON control API
type ControlConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// HTTPConfig controls the HTTP status API
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string ("10s") in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			Transport:  "zmq",
			Codec:      "json",
			ListenHost: constants.DefaultListenHost,
			Version:    constants.ProtocolVersion,
		},
		Discovery: DiscoveryConfig{
			UDPPort:       constants.DefaultUDPPort,
			BroadcastAddr: constants.DefaultBroadcastAddr,
			Interval:      Duration{constants.BeaconInterval},
			Timeout:       Duration{constants.PeerTimeout},
		},
		Router: RouterConfig{
			QueueSize: constants.DefaultQueueSize,
		},
		Control: ControlConfig{
			Enabled: true,
			Addr:    constants.DefaultControlAddr,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    constants.DefaultHTTPAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Home returns the lanchat data directory
func Home() string {
	if env := os.Getenv("LANCHAT_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lanchat")
}

// DefaultPath returns the config file location inside Home
func DefaultPath() string {
	return filepath.Join(Home(), "config.toml")
}

// Load reads the config at path (DefaultPath when empty), falling back to
// defaults when the file does not exist. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse config: unknown key %s", undecoded[0])
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path (DefaultPath when empty)
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate checks values that cannot be defaulted
func (c Config) Validate() error {
	if !slices.Contains(Transports, c.Node.Transport) {
		return fmt.Errorf("unknown transport %q (want one of %v)", c.Node.Transport, Transports)
	}
	if _, err := wire.NewCodec(c.Node.Codec); err != nil {
		return err
	}
	if c.Node.Port < 0 || c.Node.Port > 65535 {
		return fmt.Errorf("node port %d out of range", c.Node.Port)
	}
	if c.Node.Version < 0 || c.Node.Version > 65535 {
		return fmt.Errorf("protocol version %d out of range", c.Node.Version)
	}
	if c.Discovery.UDPPort <= 0 || c.Discovery.UDPPort > 65535 {
		return fmt.Errorf("discovery port %d out of range", c.Discovery.UDPPort)
	}
	if c.Discovery.Interval.Duration <= 0 {
		return fmt.Errorf("discovery interval must be positive")
	}
	if c.Discovery.Timeout.Duration <= 0 {
		return fmt.Errorf("discovery timeout must be positive")
	}
	if c.Router.QueueSize <= 0 {
		return fmt.Errorf("router queue size must be positive")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
