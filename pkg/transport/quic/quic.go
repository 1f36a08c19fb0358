// Package quic implements a QUIC transport. Every message travels on its own
// unidirectional stream, so stream boundaries are message boundaries.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/WebFirstLanguage/lanchat/pkg/transport"
)

func init() {
	transport.DefaultRegistry.Register("quic", func(config *transport.Config) transport.Transport {
		return New(config)
	})
}

// Transport implements the QUIC transport
type Transport struct {
	config *transport.Config
}

// New creates a new QUIC transport
func New(config *transport.Config) *Transport {
	return &Transport{config: transport.WithDefaults(config)}
}

// Name returns the transport name
func (t *Transport) Name() string {
	return "quic"
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  t.config.MaxIdleTimeout,
		KeepAlivePeriod: t.config.KeepAlive,
	}
}

// Listen starts accepting QUIC connections with an ephemeral certificate
func (t *Transport) Listen(ctx context.Context, addr string) (transport.Listener, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cert, err := selfSignedCertificate()
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   t.config.ALPNProtocols,
		MinVersion:   tls.VersionTLS13,
	}

	listener, err := quic.ListenAddr(addr, tlsConfig, t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create QUIC listener: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener: listener,
		inbox:    transport.NewInbox(t.config.InboxSize),
		maxSize:  t.config.MaxMessageSize,
		ctx:      lctx,
		cancel:   cancel,
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// Dial establishes a QUIC connection. Peer certificates are not verified.
func (t *Transport) Dial(ctx context.Context, addr string) (transport.Channel, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tlsConfig := &tls.Config{
		NextProtos:         t.config.ALPNProtocols,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	connection, err := quic.DialAddr(dialCtx, addr, tlsConfig, t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to dial QUIC connection: %w", err)
	}

	return &Channel{
		connection: connection,
		addr:       addr,
		maxSize:    t.config.MaxMessageSize,
	}, nil
}

// Listener accepts connections and queues the contents of every inbound
// unidirectional stream
type Listener struct {
	listener *quic.Listener
	inbox    *transport.Inbox
	maxSize  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		connection, err := l.listener.Accept(l.ctx)
		if err != nil {
			return
		}

		l.wg.Add(1)
		go l.connectionLoop(connection)
	}
}

func (l *Listener) connectionLoop(connection *quic.Conn) {
	defer l.wg.Done()
	defer connection.CloseWithError(0, "listener closed")

	for {
		stream, err := connection.AcceptUniStream(l.ctx)
		if err != nil {
			return
		}

		data, err := io.ReadAll(io.LimitReader(stream, int64(l.maxSize)+1))
		if err != nil {
			stream.CancelRead(0)
			continue
		}
		if len(data) > l.maxSize {
			stream.CancelRead(0)
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

// Close closes the listener and every accepted connection
func (l *Listener) Close() error {
	l.inbox.Close()
	l.cancel()
	err := l.listener.Close()
	l.wg.Wait()
	return err
}

// Addr returns the listener's network address
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Channel sends messages over one QUIC connection
type Channel struct {
	connection *quic.Conn
	addr       string
	maxSize    int

	mu     sync.Mutex
	closed bool
}

// Send opens a unidirectional stream, writes the message and finishes the
// stream
func (c *Channel) Send(ctx context.Context, data []byte) error {
	if len(data) > c.maxSize {
		return fmt.Errorf("failed to send %d bytes: %w", len(data), transport.ErrMessageTooLarge)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	stream, err := c.connection.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(deadline)
	}

	if _, err := stream.Write(data); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("failed to write stream: %w", err)
	}

	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to finish stream: %w", err)
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

	err := c.connection.CloseWithError(0, "normal close")
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return nil
	}
	return err
}

// RemoteAddr returns the dialed address
func (c *Channel) RemoteAddr() string {
	return c.addr
}

// selfSignedCertificate creates a short-lived P-256 certificate for the
// listener. Dialers skip verification, so only the key exchange matters.
func selfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"lanchat"},
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}, nil
}
