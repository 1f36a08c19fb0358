// Package node wires discovery, the connection pool and the message router
// into one chat node with a start/stop lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/discovery"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/metrics"
	"github.com/WebFirstLanguage/lanchat/pkg/pool"
	"github.com/WebFirstLanguage/lanchat/pkg/router"
	"github.com/WebFirstLanguage/lanchat/pkg/transport"
	"github.com/WebFirstLanguage/lanchat/pkg/wire"

	// Registered transports
	_ "github.com/WebFirstLanguage/lanchat/pkg/transport/quic"
	_ "github.com/WebFirstLanguage/lanchat/pkg/transport/tcp"
	_ "github.com/WebFirstLanguage/lanchat/pkg/transport/zmq"
)

// DefaultTransport is used when Config names none
const DefaultTransport = "zmq"

// State represents the current state of the node
type State int

const (
	// StateStopped indicates the node is not running
	StateStopped State = iota
	// StateStarting indicates the node is in the process of starting
	StateStarting
	// StateRunning indicates the node is running normally
	StateRunning
	// StateStopping indicates the node is in the process of stopping
	StateStopping
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config holds node configuration
type Config struct {
	Identity *identity.Identity // Generated if nil
	Name     string             // Display name (default: the peer id)

	Transport     transport.Transport // Overrides TransportName when set
	TransportName string              // Registered transport (default: zmq)
	Codec         wire.Codec          // Envelope encoding (default: JSON)
	ListenHost    string              // Router bind host (default: 0.0.0.0)
	Port          uint16              // Router port, 0 picks a free one
	Version       uint16              // Announced protocol version

	UDPPort        int
	BroadcastAddr  string
	BeaconInterval time.Duration
	PeerTimeout    time.Duration
	DiscoveryConn  net.PacketConn // Pre-bound beacon socket, mainly for tests

	QueueSize int
	Output    router.Output

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// PeerInfo is one row of the live peer list
type PeerInfo struct {
	ID     identity.PeerID
	Record discovery.PeerRecord
	Name   string
	Named  bool
	Self   bool
}

// DisplayName returns the learned name or the id
func (p PeerInfo) DisplayName() string {
	if p.Named {
		return p.Name
	}
	return p.ID.String()
}

// Completion is a read-only view used for interactive completion
type Completion struct {
	IDs   []identity.PeerID
	Names map[identity.PeerID]string
}

// Node is one chat participant
type Node struct {
	mu    sync.RWMutex
	state State

	// nameMu is separate from mu: the dispatch loop reads the name while
	// Stop holds mu and waits for that loop
	nameMu sync.RWMutex
	name   string

	identity  *identity.Identity
	config    Config
	table     *discovery.Table
	directory *router.Directory
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics

	listener  transport.Listener
	pool      *pool.Pool
	router    *router.Router
	discovery *discovery.Engine

	// Lifecycle management
	cancel context.CancelFunc
}

// New creates a node. Nothing is bound until Start.
func New(config *Config) (*Node, error) {
	id := config.Identity
	if id == nil {
		generated, err := identity.GenerateIdentity()
		if err != nil {
			return nil, fmt.Errorf("failed to generate identity: %w", err)
		}
		id = generated
	}

	name := id.ID().String()
	if config.Name != "" {
		normalized, err := identity.NormalizeName(config.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid name: %w", err)
		}
		name = normalized
	}

	tr := config.Transport
	if tr == nil {
		transportName := config.TransportName
		if transportName == "" {
			transportName = DefaultTransport
		}
		var err error
		tr, err = transport.DefaultRegistry.New(transportName, &transport.Config{
			InboxSize: config.QueueSize,
		})
		if err != nil {
			return nil, err
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := config.Metrics
	if m == nil {
		m = metrics.NewMetrics("lanchat")
	}

	timeout := config.PeerTimeout
	if timeout <= 0 {
		timeout = constants.PeerTimeout
	}

	return &Node{
		state:     StateStopped,
		name:      name,
		identity:  id,
		config:    *config,
		table:     discovery.NewTable(timeout, nil),
		directory: router.NewDirectory(),
		transport: tr,
		logger:    logger,
		metrics:   m,
	}, nil
}

// State returns the current state of the node
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Identity returns the node's identity
func (n *Node) Identity() *identity.Identity {
	return n.identity
}

// ID returns the node's peer id
func (n *Node) ID() identity.PeerID {
	return n.identity.ID()
}

// Name returns the current display name
func (n *Node) Name() string {
	n.nameMu.RLock()
	defer n.nameMu.RUnlock()
	return n.name
}

// SetName changes the display name answered to name queries
func (n *Node) SetName(name string) error {
	normalized, err := identity.NormalizeName(name)
	if err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	n.nameMu.Lock()
	n.name = normalized
	n.nameMu.Unlock()

	n.logger.Info("display name changed", "name", normalized)
	return nil
}

// Table returns the live peer table
func (n *Node) Table() *discovery.Table {
	return n.table
}

// Directory returns the learned peer names
func (n *Node) Directory() *router.Directory {
	return n.directory
}

// Metrics returns the node's metrics
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// TransportName returns the name of the message transport
func (n *Node) TransportName() string {
	return n.transport.Name()
}

// Addr returns the router listen address, nil when stopped
func (n *Node) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Start binds the router listener, then starts the router and discovery
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateRunning {
		return fmt.Errorf("node is already running")
	}
	if n.state != StateStopped {
		return fmt.Errorf("node is %s", n.state)
	}
	n.state = StateStarting

	if err := n.startLocked(ctx); err != nil {
		n.teardownLocked()
		n.state = StateStopped
		return err
	}

	n.state = StateRunning
	n.logger.Info("node started",
		"peer", n.identity.ID(),
		"name", n.Name(),
		"transport", n.transport.Name(),
		"addr", n.listener.Addr().String())
	return nil
}

func (n *Node) startLocked(ctx context.Context) error {
	host := n.config.ListenHost
	if host == "" {
		host = constants.DefaultListenHost
	}

	ctx, n.cancel = context.WithCancel(ctx)

	listener, err := n.transport.Listen(ctx, net.JoinHostPort(host, strconv.Itoa(int(n.config.Port))))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	n.listener = listener

	port, err := listenPort(listener.Addr())
	if err != nil {
		return err
	}

	n.pool, err = pool.New(&pool.Config{
		Resolver:  n.table,
		Transport: n.transport,
		Logger:    n.logger,
		Metrics:   n.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	n.router, err = router.New(&router.Config{
		Identity:  n.identity,
		Name:      n.Name,
		Peers:     n.table,
		Sender:    n.pool,
		Codec:     n.config.Codec,
		Directory: n.directory,
		Output:    n.config.Output,
		QueueSize: n.config.QueueSize,
		Logger:    n.logger,
		Metrics:   n.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	n.discovery, err = discovery.New(&discovery.Config{
		Identity:      n.identity,
		Table:         n.table,
		TCPPort:       port,
		Version:       n.config.Version,
		UDPPort:       n.config.UDPPort,
		BroadcastAddr: n.config.BroadcastAddr,
		Interval:      n.config.BeaconInterval,
		Conn:          n.config.DiscoveryConn,
		Logger:        n.logger,
		Metrics:       n.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create discovery engine: %w", err)
	}

	if err := n.router.Start(ctx, listener); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}

	if err := n.discovery.Start(ctx); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	return nil
}

// Stop stops discovery, the router loops and closes every socket
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateStopped {
		return fmt.Errorf("node is already stopped")
	}
	n.state = StateStopping

	err := n.teardownLocked()

	n.state = StateStopped
	n.logger.Info("node stopped", "peer", n.identity.ID())
	return err
}

func (n *Node) teardownLocked() error {
	var errs []error

	if n.cancel != nil {
		n.cancel()
	}
	if n.discovery != nil {
		errs = append(errs, n.discovery.Stop())
		n.discovery = nil
	}
	if n.router != nil {
		n.router.Stop()
		n.router = nil
	}
	if n.listener != nil {
		if err := n.listener.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close listener: %w", err))
		}
		n.listener = nil
	}
	if n.pool != nil {
		errs = append(errs, n.pool.Close())
		n.pool = nil
	}

	return errors.Join(errs...)
}

func (n *Node) runningRouter() (*router.Router, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.state != StateRunning {
		return nil, fmt.Errorf("node is %s", n.state)
	}
	return n.router, nil
}

// SendText queues a text message. A peer missing from the live view fails
// immediately with pool.ErrPeerUnknown, text that is not valid UTF-8 with
// wire.ErrInvalidUTF8.
func (n *Node) SendText(ctx context.Context, to identity.PeerID, text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("failed to send to %s: %w", to, wire.ErrInvalidUTF8)
	}
	return n.enqueue(ctx, to, wire.Text{From: n.ID(), Body: text})
}

// QueryName asks a peer for its display name
func (n *Node) QueryName(ctx context.Context, to identity.PeerID) error {
	return n.enqueue(ctx, to, wire.Query{From: n.ID(), Field: constants.QueryName})
}

func (n *Node) enqueue(ctx context.Context, to identity.PeerID, msg wire.Message) error {
	r, err := n.runningRouter()
	if err != nil {
		return err
	}
	if !n.table.Contains(to) {
		return fmt.Errorf("failed to send to %s: %w", to, pool.ErrPeerUnknown)
	}
	return r.Enqueue(ctx, to, msg)
}

// ListPeers returns the live peers sorted by id, self included and marked
func (n *Node) ListPeers() []PeerInfo {
	snapshot := n.table.Snapshot()
	names := n.directory.Snapshot()
	self := n.ID()

	peers := make([]PeerInfo, 0, len(snapshot))
	for id, record := range snapshot {
		name, named := names[id]
		peers = append(peers, PeerInfo{
			ID:     id,
			Record: record,
			Name:   name,
			Named:  named,
			Self:   id == self,
		})
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// CompletionSource returns the live ids and known names
func (n *Node) CompletionSource() Completion {
	return Completion{
		IDs:   n.table.IDs(),
		Names: n.directory.Snapshot(),
	}
}

// Resolve maps user input to a live peer: an exact id, a unique id prefix or
// a unique display name
func (n *Node) Resolve(target string) (identity.PeerID, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty peer")
	}

	ids := n.table.IDs()
	for _, id := range ids {
		if string(id) == target {
			return id, nil
		}
	}

	var matches []identity.PeerID
	for _, id := range ids {
		if strings.HasPrefix(string(id), target) {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		for _, id := range n.directory.IDsByName(target) {
			if n.table.Contains(id) {
				matches = append(matches, id)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", pool.ErrPeerUnknown, target)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous peer %q matches %d peers", target, len(matches))
	}
}

func listenPort(addr net.Addr) (uint16, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return uint16(a.Port), nil
	case *net.UDPAddr:
		return uint16(a.Port), nil
	}

	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, fmt.Errorf("failed to parse listen address %s: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("failed to parse listen port %s: %w", portStr, err)
	}
	return uint16(port), nil
}
