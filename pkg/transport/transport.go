// Package transport provides the point-to-point transports that carry chat
// envelopes between nodes. Every transport preserves message boundaries: one
// Send on a Channel arrives as one Recv on the remote Listener.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
)

// ErrClosed is returned by operations on a closed listener or channel
var ErrClosed = errors.New("transport closed")

// ErrMessageTooLarge is returned when a unit exceeds the configured maximum
var ErrMessageTooLarge = errors.New("message too large")

// Transport represents a message transport (zmq, quic or tcp)
type Transport interface {
	// Listen starts receiving messages on the given host:port
	Listen(ctx context.Context, addr string) (Listener, error)

	// Dial opens an outbound channel to the given host:port
	Dial(ctx context.Context, addr string) (Channel, error)

	// Name returns the transport name (e.g., "zmq", "quic", "tcp")
	Name() string
}

// Listener receives whole messages from any number of remote channels
type Listener interface {
	// Recv waits for and returns the next message
	Recv(ctx context.Context) ([]byte, error)

	// Close closes the listener
	Close() error

	// Addr returns the listener's network address
	Addr() net.Addr
}

// Channel is an outbound, send-only link to one remote listener
type Channel interface {
	// Send transmits one message
	Send(ctx context.Context, data []byte) error

	// Close closes the channel
	Close() error

	// RemoteAddr returns the dialed address
	RemoteAddr() string
}

// Config holds transport configuration
type Config struct {
	// Connection timeout
	DialTimeout time.Duration

	// Largest accepted message
	MaxMessageSize int

	// Buffered messages per listener
	InboxSize int

	// Keep-alive settings
	KeepAlive time.Duration

	// Maximum idle timeout
	MaxIdleTimeout time.Duration

	// ALPN protocols to negotiate (quic)
	ALPNProtocols []string
}

// DefaultConfig returns a default transport configuration
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:    constants.DialTimeout,
		MaxMessageSize: constants.MaxMessageSize,
		InboxSize:      constants.DefaultQueueSize,
		KeepAlive:      30 * time.Second,
		MaxIdleTimeout: 5 * time.Minute,
		ALPNProtocols:  []string{"lanchat/1"},
	}
}

// WithDefaults returns a copy of config with zero fields filled from
// DefaultConfig. A nil config yields the defaults.
func WithDefaults(config *Config) *Config {
	defaults := DefaultConfig()
	if config == nil {
		return defaults
	}

	c := *config
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaults.InboxSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaults.KeepAlive
	}
	if c.MaxIdleTimeout <= 0 {
		c.MaxIdleTimeout = defaults.MaxIdleTimeout
	}
	if len(c.ALPNProtocols) == 0 {
		c.ALPNProtocols = defaults.ALPNProtocols
	}
	return &c
}

// FormatAddr joins a peer IP and router port into a dial target
func FormatAddr(ip string, port uint16) string {
	return net.JoinHostPort(ip, strconv.Itoa(int(port)))
}

// Factory builds a transport from a configuration
type Factory func(config *Config) Transport

// Registry manages available transports
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new transport registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registers a transport factory with the given name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns the factory with the given name
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named transport
func (r *Registry) New(name string, config *Config) (Transport, error) {
	factory, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown transport %q", name)
	}
	return factory(WithDefaults(config)), nil
}

// List returns all registered transport names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default registry instance
var DefaultRegistry = NewRegistry()
