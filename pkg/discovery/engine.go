package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/metrics"
	"github.com/WebFirstLanguage/lanchat/pkg/wire"
)

// Config holds discovery engine configuration
type Config struct {
	Identity      *identity.Identity // Local node identity
	Table         *Table             // Peer table to maintain (created if nil)
	TCPPort       uint16             // Router port announced in beacons
	Version       uint16             // Protocol version announced (default: constants.ProtocolVersion)
	UDPPort       int                // Discovery port (default: 23456)
	BroadcastAddr string             // Beacon destination host (default: 255.255.255.255)
	Interval      time.Duration      // Beacon interval (default: 10s)
	Timeout       time.Duration      // Peer timeout when Table is nil (default: 20s)

	// Conn receives beacons; Sender broadcasts them. Either is opened by
	// Start when nil.
	Conn   net.PacketConn
	Sender net.PacketConn

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine broadcasts the local beacon and maintains the peer table from the
// beacons it hears
type Engine struct {
	mu sync.Mutex

	identity  *identity.Identity
	table     *Table
	beacon    []byte
	udpPort   int
	broadcast string
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	conn       net.PacketConn
	sender     net.PacketConn
	ownsConn   bool
	ownsSender bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a discovery engine
func New(config *Config) (*Engine, error) {
	if config.Identity == nil {
		return nil, fmt.Errorf("identity is required")
	}

	if config.TCPPort == 0 {
		return nil, fmt.Errorf("tcp port is required")
	}

	version := config.Version
	if version == 0 {
		version = constants.ProtocolVersion
	}

	udpPort := config.UDPPort
	if udpPort == 0 {
		udpPort = constants.DefaultUDPPort
	}

	broadcast := config.BroadcastAddr
	if broadcast == "" {
		broadcast = constants.DefaultBroadcastAddr
	}

	interval := config.Interval
	if interval == 0 {
		interval = constants.BeaconInterval
	}

	table := config.Table
	if table == nil {
		table = NewTable(config.Timeout, nil)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	beacon := wire.NewBeacon(config.Identity, config.TCPPort)
	beacon.Version = version

	return &Engine{
		identity:  config.Identity,
		table:     table,
		beacon:    beacon.Marshal(),
		udpPort:   udpPort,
		broadcast: broadcast,
		interval:  interval,
		logger:    logger.With("component", "discovery"),
		metrics:   config.Metrics,
		conn:      config.Conn,
		sender:    config.Sender,
	}, nil
}

// Table returns the peer table maintained by the engine
func (e *Engine) Table() *Table {
	return e.table
}

// LocalAddr returns the address beacons are received on, nil before Start
func (e *Engine) LocalAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// Start opens the sockets that were not supplied and starts the broadcaster
// and listener goroutines
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx != nil {
		return fmt.Errorf("discovery engine is already running")
	}

	if e.conn == nil {
		conn, err := listenBeacons(ctx, e.udpPort)
		if err != nil {
			return fmt.Errorf("failed to listen on discovery port %d: %w", e.udpPort, err)
		}
		e.conn = conn
		e.ownsConn = true
	}

	if e.sender == nil {
		sender, err := net.ListenPacket("udp4", ":0")
		if err != nil {
			if e.ownsConn {
				e.conn.Close()
			}
			return fmt.Errorf("failed to open broadcast socket: %w", err)
		}
		e.sender = sender
		e.ownsSender = true
	}

	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.broadcastLoop()
	go e.listenLoop()

	e.logger.Info("discovery started",
		"peer", e.identity.ID(),
		"udp", e.conn.LocalAddr().String(),
		"broadcast", e.broadcastTarget())

	return nil
}

// Stop stops both loops and closes the sockets the engine opened. Supplied
// sockets are closed as well to unblock the listener.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	e.cancel = nil

	var errs []error
	if e.conn != nil {
		errs = append(errs, e.conn.Close())
	}
	if e.sender != nil {
		errs = append(errs, e.sender.Close())
	}
	e.mu.Unlock()

	e.wg.Wait()
	return errors.Join(errs...)
}

func (e *Engine) broadcastTarget() string {
	return net.JoinHostPort(e.broadcast, strconv.Itoa(e.udpPort))
}

// broadcastLoop sends the beacon now and then on every tick. Send failures
// never end the loop.
func (e *Engine) broadcastLoop() {
	defer e.wg.Done()

	target, err := net.ResolveUDPAddr("udp4", e.broadcastTarget())
	if err != nil {
		e.logger.Error("invalid broadcast address, beacons disabled", "addr", e.broadcastTarget(), "err", err)
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.sendBeacon(target)
		e.sweep()

		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) sendBeacon(target net.Addr) {
	_, err := e.sender.WriteTo(e.beacon, target)
	e.metrics.RecordBeaconSent(err == nil)
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Warn("beacon broadcast failed", "addr", target.String(), "err", err)
		}
		return
	}
	e.logger.Debug("beacon broadcast", "addr", target.String())
}

// sweep purges expired peers and refreshes the live gauge
func (e *Engine) sweep() {
	for _, id := range e.table.Sweep() {
		e.logger.Debug("peer expired", "peer", id)
	}
	e.metrics.UpdateLivePeers(e.table.Len())
}

// listenLoop blocks on the discovery socket until the engine stops
func (e *Engine) listenLoop() {
	defer e.wg.Done()

	buf := make([]byte, constants.MaxDatagramSize)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			if e.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Warn("discovery read failed", "err", err)
			continue
		}

		e.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram validates one datagram and updates the table
func (e *Engine) handleDatagram(data []byte, from net.Addr) {
	beacon, err := wire.ParseBeacon(data)
	if errors.Is(err, wire.ErrNotBeacon) {
		e.metrics.RecordBeaconReceived("foreign")
		e.logger.Debug("ignoring foreign datagram", "from", from.String(), "size", len(data))
		return
	}
	if err != nil {
		e.metrics.RecordBeaconReceived("malformed")
		e.logger.Error("discarding beacon", "from", from.String(), "err", err)
		return
	}

	ip := sourceIP(from)
	if ip == "" {
		e.metrics.RecordBeaconReceived("malformed")
		e.logger.Error("discarding beacon without source address", "from", from.String())
		return
	}

	e.metrics.RecordBeaconReceived("valid")

	id := beacon.PeerID()
	if e.table.Observe(id, ip, beacon.TCPPort, beacon.Version) {
		e.logger.Info("peer discovered",
			"peer", id,
			"addr", net.JoinHostPort(ip, strconv.Itoa(int(beacon.TCPPort))),
			"version", beacon.Version,
			"self", id == e.identity.ID())
		e.metrics.UpdateLivePeers(e.table.Len())
	}
}

func sourceIP(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		if udp.IP == nil {
			return ""
		}
		return udp.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}

// listenBeacons opens the shared discovery socket
func listenBeacons(ctx context.Context, port int) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	return lc.ListenPacket(ctx, "udp4", ":"+strconv.Itoa(port))
}
