// Package tcp implements a plain TCP transport. Each message travels as a
// 4-byte big-endian length followed by the payload.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/transport"
)

const frameHeaderSize = 4

func init() {
	transport.DefaultRegistry.Register("tcp", func(config *transport.Config) transport.Transport {
		return New(config)
	})
}

// Transport implements the TCP transport
type Transport struct {
	config *transport.Config
}

// New creates a new TCP transport
func New(config *transport.Config) *Transport {
	return &Transport{config: transport.WithDefaults(config)}
}

// Name returns the transport name
func (t *Transport) Name() string {
	return "tcp"
}

// Listen starts accepting TCP connections and reading frames from them
func (t *Transport) Listen(ctx context.Context, addr string) (transport.Listener, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP listener: %w", err)
	}

	l := &Listener{
		listener: listener,
		inbox:    transport.NewInbox(t.config.InboxSize),
		maxSize:  t.config.MaxMessageSize,
		conns:    make(map[net.Conn]struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// Dial establishes a TCP connection
func (t *Transport) Dial(ctx context.Context, addr string) (transport.Channel, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	dialer := &net.Dialer{
		Timeout:   t.config.DialTimeout,
		KeepAlive: t.config.KeepAlive,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial TCP connection: %w", err)
	}

	return &Channel{
		conn:    conn,
		addr:    addr,
		maxSize: t.config.MaxMessageSize,
	}, nil
}

// Listener accepts connections and queues every frame read from them
type Listener struct {
	listener net.Listener
	inbox    *transport.Inbox
	maxSize  int

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}

		l.mu.Lock()
		select {
		case <-l.inbox.Done():
			l.mu.Unlock()
			conn.Close()
			return
		default:
		}
		l.conns[conn] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go l.readLoop(conn)
	}
}

func (l *Listener) readLoop(conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		data, err := readFrame(reader, l.maxSize)
		if err != nil {
			return
		}
		if !l.inbox.Deliver(context.Background(), data) {
			return
		}
	}
}

// Recv waits for and returns the next message
func (l *Listener) Recv(ctx context.Context) ([]byte, error) {
	return l.inbox.Recv(ctx)
}

// Close closes the listener and every accepted connection
func (l *Listener) Close() error {
	l.mu.Lock()
	l.inbox.Close()
	err := l.listener.Close()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	return err
}

// Addr returns the listener's network address
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Channel writes frames to one TCP connection
type Channel struct {
	mu      sync.Mutex
	conn    net.Conn
	addr    string
	maxSize int
	closed  bool
}

// Send writes one frame, honouring the ctx deadline
func (c *Channel) Send(ctx context.Context, data []byte) error {
	if len(data) > c.maxSize {
		return fmt.Errorf("failed to send %d bytes: %w", len(data), transport.ErrMessageTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := writeFrame(c.conn, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// RemoteAddr returns the dialed address
func (c *Channel) RemoteAddr() string {
	return c.addr
}

func writeFrame(w io.Writer, data []byte) error {
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderSize:], data)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if int64(size) > int64(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes: %w", size, transport.ErrMessageTooLarge)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
