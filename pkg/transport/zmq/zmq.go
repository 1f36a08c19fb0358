// Package zmq implements the default transport on ZeroMQ sockets. A ROUTER
// socket receives from every peer and each outbound channel is a DEALER
// connected to one remote ROUTER.
package zmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/WebFirstLanguage/lanchat/pkg/transport"
)

// Dialer tuning. The socket retries a refused or lost connection every
// retryInterval, at most reconnectAttempts times, each connect bounded by
// attemptTimeout.
const (
	retryInterval     = 250 * time.Millisecond
	reconnectAttempts = 8
	attemptTimeout    = time.Second
)

func init() {
	transport.DefaultRegistry.Register("zmq", func(config *transport.Config) transport.Transport {
		return New(config)
	})
}

// Transport implements the ZeroMQ transport
type Transport struct {
	config *transport.Config
}

// New creates a new ZeroMQ transport
func New(config *transport.Config) *Transport {
	return &Transport{config: transport.WithDefaults(config)}
}

// Name returns the transport name
func (t *Transport) Name() string {
	return "zmq"
}

// Endpoint converts host:port into a zmq tcp endpoint
func Endpoint(addr string) string {
	if strings.HasPrefix(addr, "tcp://") {
		return addr
	}
	return "tcp://" + addr
}

// Listen binds a ROUTER socket on addr
func (t *Transport) Listen(ctx context.Context, addr string) (transport.Listener, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sctx, cancel := context.WithCancel(context.Background())
	router := zmq4.NewRouter(sctx, zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())))

	if err := router.Listen(Endpoint(addr)); err != nil {
		cancel()
		router.Close()
		return nil, fmt.Errorf("failed to bind router: %w", err)
	}

	l := &Listener{
		router:  router,
		inbox:   transport.NewInbox(t.config.InboxSize),
		maxSize: t.config.MaxMessageSize,
		ctx:     sctx,
		cancel:  cancel,
	}

	l.wg.Add(1)
	go l.receiverLoop()

	return l, nil
}

// Dial connects a DEALER socket to the ROUTER at addr. The connect is bounded
// by ctx and DialTimeout. Once connected, the socket redials on its own after
// losing the connection, for up to reconnectAttempts tries.
func (t *Transport) Dial(ctx context.Context, addr string) (transport.Channel, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ctx, cancelDial := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancelDial()

	// The socket outlives the dial context
	sctx, cancel := context.WithCancel(context.Background())
	dealer := zmq4.NewDealer(sctx,
		zmq4.WithID(zmq4.SocketIdentity(uuid.NewString())),
		zmq4.WithDialerTimeout(min(t.config.DialTimeout, attemptTimeout)),
		zmq4.WithDialerRetry(retryInterval),
		zmq4.WithDialerMaxRetries(reconnectAttempts),
		zmq4.WithAutomaticReconnect(true),
		zmq4.WithTimeout(t.config.DialTimeout),
	)

	result := make(chan error, 1)
	go func() {
		result <- dealer.Dial(Endpoint(addr))
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		// Cancelling the socket aborts the pending connect and the retry loop
		cancel()
		<-result
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		dealer.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &Channel{
		dealer:  dealer,
		addr:    addr,
		maxSize: t.config.MaxMessageSize,
		cancel:  cancel,
	}, nil
}

// Listener receives messages on a ROUTER socket
type Listener struct {
	router  zmq4.Socket
	inbox   *transport.Inbox
	maxSize int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// receiverLoop continuously receives messages from the ROUTER socket
func (l *Listener) receiverLoop() {
	defer l.wg.Done()

	for {
		msg, err := l.router.Recv()
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			continue
		}

		// ROUTER prepends the sender identity frame
		if len(msg.Frames) == 0 {
			continue
		}
		data := msg.Frames[len(msg.Frames)-1]
		if len(data) > l.maxSize {
			continue
		}

		if !l.inbox.Deliver(l.ctx, data) {
			return
		}
	}
}

// Recv waits for and returns the next message
func (l *Listener) Recv(ctx context.Context) ([]byte, error) {
	return l.inbox.Recv(ctx)
}

// Close closes the ROUTER socket
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.inbox.Close()
		l.cancel()
		l.closeErr = l.router.Close()
		l.wg.Wait()
	})
	return l.closeErr
}

// Addr returns the bound address
func (l *Listener) Addr() net.Addr {
	return l.router.Addr()
}

// Channel sends messages on a DEALER socket
type Channel struct {
	mu      sync.Mutex
	dealer  zmq4.Socket
	addr    string
	maxSize int
	cancel  context.CancelFunc
	closed  bool
}

// Send transmits one single-frame message
func (c *Channel) Send(ctx context.Context, data []byte) error {
	if len(data) > c.maxSize {
		return fmt.Errorf("failed to send %d bytes: %w", len(data), transport.ErrMessageTooLarge)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}

	if err := c.dealer.Send(zmq4.NewMsg(data)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close closes the DEALER socket
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	err := c.dealer.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RemoteAddr returns the dialed address
func (c *Channel) RemoteAddr() string {
	return c.addr
}
