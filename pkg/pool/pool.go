// Package pool caches one outbound transport channel per peer. Channels are
// created on first use, only for peers present in the live peer table, and
// live until the pool is closed.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/WebFirstLanguage/lanchat/pkg/discovery"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/metrics"
	"github.com/WebFirstLanguage/lanchat/pkg/transport"
)

// ErrPeerUnknown is returned when the destination is not in the live table
var ErrPeerUnknown = errors.New("peer unknown")

// ErrPoolClosed is returned after Close
var ErrPoolClosed = errors.New("pool closed")

// Resolver looks up live peer records
type Resolver interface {
	Lookup(id identity.PeerID) (discovery.PeerRecord, bool)
}

// Config holds pool configuration
type Config struct {
	Resolver  Resolver
	Transport transport.Transport
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Pool maps peer ids to open channels
type Pool struct {
	resolver  Resolver
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	channels map[identity.PeerID]transport.Channel
	closed   bool

	group singleflight.Group
}

// New creates a connection pool
func New(config *Config) (*Pool, error) {
	if config.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pool{
		resolver:  config.Resolver,
		transport: config.Transport,
		logger:    logger.With("component", "pool"),
		metrics:   config.Metrics,
		channels:  make(map[identity.PeerID]transport.Channel),
	}, nil
}

func (p *Pool) cached(id identity.PeerID) (transport.Channel, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}
	ch, ok := p.channels[id]
	return ch, ok, nil
}

// GetOrCreate returns the channel for id, dialing the peer's recorded address
// on first use. Concurrent first calls for one id share a single dial.
func (p *Pool) GetOrCreate(ctx context.Context, id identity.PeerID) (transport.Channel, error) {
	record, ok := p.resolver.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnknown, id)
	}

	ch, ok, err := p.cached(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return ch, nil
	}

	v, err, _ := p.group.Do(string(id), func() (any, error) {
		// First writer wins
		if ch, ok, err := p.cached(id); err != nil || ok {
			return ch, err
		}

		addr := transport.FormatAddr(record.IP, record.Port)
		ch, err := p.transport.Dial(ctx, addr)
		p.metrics.RecordDial(err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s at %s: %w", id, addr, err)
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			ch.Close()
			return nil, ErrPoolClosed
		}
		p.channels[id] = ch
		n := len(p.channels)
		p.mu.Unlock()

		p.metrics.UpdateOpenChannels(n)
		p.logger.Debug("channel created", "peer", id, "addr", addr, "transport", p.transport.Name())
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(transport.Channel), nil
}

// Send delivers data to id over its pooled channel
func (p *Pool) Send(ctx context.Context, id identity.PeerID, data []byte) error {
	ch, err := p.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	return ch.Send(ctx, data)
}

// Len returns the number of open channels
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.channels)
}

// Close closes every channel. Further calls fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	channels := p.channels
	p.channels = make(map[identity.PeerID]transport.Channel)
	p.mu.Unlock()

	var errs []error
	for id, ch := range channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel to %s: %w", id, err))
		}
	}
	p.metrics.UpdateOpenChannels(0)
	return errors.Join(errs...)
}
