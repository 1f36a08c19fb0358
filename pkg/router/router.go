// Package router moves chat envelopes between the transport and the
// application. Three loops run per node: receive (transport to inbound
// queue), dispatch (inbound queue through the dispatch table) and send
// (outbound queue through the connection pool).
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/metrics"
	"github.com/WebFirstLanguage/lanchat/pkg/pool"
	"github.com/WebFirstLanguage/lanchat/pkg/transport"
	"github.com/WebFirstLanguage/lanchat/pkg/wire"
)

// ErrStopped is returned when enqueueing on a stopped router
var ErrStopped = errors.New("router stopped")

// PeerLookup reports whether a peer is currently live
type PeerLookup interface {
	Contains(id identity.PeerID) bool
}

// Sender transmits encoded messages to a peer
type Sender interface {
	Send(ctx context.Context, id identity.PeerID, data []byte) error
}

// Output receives the messages meant for the user
type Output interface {
	DeliverText(from identity.PeerID, text string)
	DeliverReceipt(from identity.PeerID, status string)
}

// Config holds router configuration
type Config struct {
	Identity  *identity.Identity // Local node identity, stamped on outbound messages
	Name      func() string      // Local display name, read at reply time
	Peers     PeerLookup         // Live peer view
	Sender    Sender             // Outbound path (usually the connection pool)
	Codec     wire.Codec         // Envelope encoding (default: JSON)
	Directory *Directory         // Learned names (created if nil)
	Output    Output             // Application sink (discarded if nil)
	QueueSize int                // Inbound and outbound queue capacity (default: 256)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Outbound is one queued send
type Outbound struct {
	To      identity.PeerID
	Message wire.Message
}

// Router owns the inbound and outbound queues
type Router struct {
	id        identity.PeerID
	name      func() string
	peers     PeerLookup
	sender    Sender
	codec     wire.Codec
	directory *Directory
	output    Output
	logger    *slog.Logger
	metrics   *metrics.Metrics

	inbound  chan wire.Message
	outbound chan Outbound

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a message router
func New(config *Config) (*Router, error) {
	if config.Identity == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if config.Peers == nil {
		return nil, fmt.Errorf("peer lookup is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	name := config.Name
	if name == nil {
		id := config.Identity.ID().String()
		name = func() string { return id }
	}

	codec := config.Codec
	if codec == nil {
		codec = wire.JSONCodec{}
	}

	directory := config.Directory
	if directory == nil {
		directory = NewDirectory()
	}

	output := config.Output
	if output == nil {
		output = discardOutput{}
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultQueueSize
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Router{
		id:        config.Identity.ID(),
		name:      name,
		peers:     config.Peers,
		sender:    config.Sender,
		codec:     codec,
		directory: directory,
		output:    output,
		logger:    logger.With("component", "router"),
		metrics:   config.Metrics,
		inbound:   make(chan wire.Message, queueSize),
		outbound:  make(chan Outbound, queueSize),
		done:      make(chan struct{}),
	}, nil
}

// Directory returns the name directory filled by Response messages
func (r *Router) Directory() *Directory {
	return r.directory
}

// Start launches the receive, dispatch and send loops. Receive reads from
// listener until ctx is cancelled, Stop is called or the listener closes.
func (r *Router) Start(ctx context.Context, listener transport.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("router is already running")
	}
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(3)
	go r.receiveLoop(ctx, listener)
	go r.dispatchLoop(ctx)
	go r.sendLoop(ctx)

	r.logger.Info("router started", "peer", r.id, "codec", r.codec.Name())
	return nil
}

// Stop cancels the loops and waits for them to exit. Queued messages that
// were not yet processed are discarded.
func (r *Router) Stop() {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	cancel := r.cancel
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Enqueue queues msg for delivery to the peer. It blocks while the outbound
// queue is full.
func (r *Router) Enqueue(ctx context.Context, to identity.PeerID, msg wire.Message) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	select {
	case r.outbound <- Outbound{To: to, Message: msg}:
		r.metrics.UpdateQueueDepth("outbound", len(r.outbound))
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send encodes msg and transmits it now. A peer missing from the live view
// fails with pool.ErrPeerUnknown before any transport call.
func (r *Router) Send(ctx context.Context, to identity.PeerID, msg wire.Message) error {
	kind := wire.KindName(msg.Kind())

	if !r.peers.Contains(to) {
		r.metrics.RecordDropped("peer_unknown")
		return fmt.Errorf("failed to send %s to %s: %w", kind, to, pool.ErrPeerUnknown)
	}

	data, err := r.codec.Encode(msg)
	if err != nil {
		r.metrics.RecordDropped("encode")
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	if err := r.sender.Send(ctx, to, data); err != nil {
		r.metrics.RecordDropped("send")
		return fmt.Errorf("failed to send %s to %s: %w", kind, to, err)
	}

	r.metrics.RecordSent(kindLabel(msg))
	r.logger.Debug("message sent", "peer", to, "kind", kind, "size", len(data))
	return nil
}

// Receive decodes one raw unit and queues it for dispatch. Undecodable input
// is logged and dropped without reply.
func (r *Router) Receive(ctx context.Context, data []byte) error {
	msg, err := r.codec.Decode(data)
	if err != nil {
		r.metrics.RecordDropped("decode")
		r.logger.Error("dropping undecodable message", "size", len(data), "err", err)
		return err
	}

	r.metrics.RecordReceived(kindLabel(msg))

	select {
	case r.inbound <- msg:
		r.metrics.UpdateQueueDepth("inbound", len(r.inbound))
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch applies the dispatch table to msg, then asks an unnamed sender for
// its name
func (r *Router) Dispatch(ctx context.Context, msg wire.Message) {
	from := msg.Sender()

	switch m := msg.(type) {
	case wire.Query:
		if m.Field == constants.QueryName {
			r.reply(ctx, from, wire.Response{From: r.id, Name: r.name()})
		} else {
			r.logger.Warn("unsupported query", "peer", from, "field", m.Field)
		}

	case wire.Response:
		r.directory.Set(from, m.Name)
		r.logger.Info("peer name learned", "peer", from, "name", m.Name)

	case wire.Text:
		r.output.DeliverText(from, m.Body)
		r.reply(ctx, from, wire.Receipt{From: r.id, Status: constants.ReceiptSuccessful})

	case wire.Receipt:
		r.output.DeliverReceipt(from, m.Status)

	case wire.File, wire.Unknown:
		r.logger.Error("unknown message type", "peer", from, "kind", msg.Kind())
		r.reply(ctx, from, wire.Receipt{From: r.id, Status: constants.ReceiptUnknownType})
	}

	if !r.directory.Has(from) {
		r.reply(ctx, from, wire.Query{From: r.id, Field: constants.QueryName})
	}
}

func (r *Router) reply(ctx context.Context, to identity.PeerID, msg wire.Message) {
	if err := r.Enqueue(ctx, to, msg); err != nil {
		r.logger.Warn("reply dropped", "peer", to, "kind", wire.KindName(msg.Kind()), "err", err)
	}
}

func (r *Router) receiveLoop(ctx context.Context, listener transport.Listener) {
	defer r.wg.Done()

	for {
		data, err := listener.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			r.logger.Warn("receive failed", "err", err)
			continue
		}

		if err := r.Receive(ctx, data); errors.Is(err, ErrStopped) || ctx.Err() != nil {
			return
		}
	}
}

func (r *Router) dispatchLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.inbound:
			r.metrics.UpdateQueueDepth("inbound", len(r.inbound))
			r.Dispatch(ctx, msg)
		}
	}
}

func (r *Router) sendLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-r.outbound:
			r.metrics.UpdateQueueDepth("outbound", len(r.outbound))
			if err := r.Send(ctx, out.To, out.Message); err != nil {
				if errors.Is(err, pool.ErrPeerUnknown) {
					r.logger.Warn("dropping message for unknown peer", "peer", out.To, "kind", wire.KindName(out.Message.Kind()))
				} else {
					r.logger.Warn("send failed", "peer", out.To, "err", err)
				}
			}
		}
	}
}

// kindLabel bounds the metric label set
func kindLabel(msg wire.Message) string {
	if _, ok := msg.(wire.Unknown); ok {
		return "unknown"
	}
	return wire.KindName(msg.Kind())
}

type discardOutput struct{}

func (discardOutput) DeliverText(identity.PeerID, string)    {}
func (discardOutput) DeliverReceipt(identity.PeerID, string) {}
