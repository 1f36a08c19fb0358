package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// MockTransport implements Transport for testing
type MockTransport struct {
	name string
}

func (m *MockTransport) Listen(ctx context.Context, addr string) (Listener, error) {
	return &MockListener{addr: addr, inbox: NewInbox(4)}, nil
}

func (m *MockTransport) Dial(ctx context.Context, addr string) (Channel, error) {
	return &MockChannel{addr: addr}, nil
}

func (m *MockTransport) Name() string {
	return m.name
}

// MockListener implements Listener for testing
type MockListener struct {
	addr  string
	inbox *Inbox
}

func (m *MockListener) Recv(ctx context.Context) ([]byte, error) {
	return m.inbox.Recv(ctx)
}

func (m *MockListener) Close() error {
	m.inbox.Close()
	return nil
}

func (m *MockListener) Addr() net.Addr {
	addr, _ := net.ResolveTCPAddr("tcp", m.addr)
	return addr
}

// MockChannel implements Channel for testing
type MockChannel struct {
	addr   string
	sent   [][]byte
	closed bool
}

func (m *MockChannel) Send(ctx context.Context, data []byte) error {
	if m.closed {
		return ErrClosed
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *MockChannel) Close() error {
	m.closed = true
	return nil
}

func (m *MockChannel) RemoteAddr() string {
	return m.addr
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	// Test empty registry
	if len(registry.List()) != 0 {
		t.Error("Expected empty registry")
	}

	var got *Config
	registry.Register("mock", func(config *Config) Transport {
		got = config
		return &MockTransport{name: "mock"}
	})
	registry.Register("alpha", func(*Config) Transport { return &MockTransport{name: "alpha"} })

	transport, err := registry.New("mock", &Config{DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to build transport: %v", err)
	}
	if transport.Name() != "mock" {
		t.Errorf("Expected transport name 'mock', got '%s'", transport.Name())
	}
	if got == nil || got.DialTimeout != time.Second || got.MaxMessageSize == 0 {
		t.Errorf("Expected factory to receive defaulted config, got %+v", got)
	}

	names := registry.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "mock" {
		t.Errorf("Expected list [alpha mock], got %v", names)
	}

	if _, err := registry.New("nonexistent", nil); err == nil {
		t.Error("Expected error for unknown transport")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if len(config.ALPNProtocols) == 0 || config.ALPNProtocols[0] != "lanchat/1" {
		t.Errorf("Expected ALPN protocol 'lanchat/1', got %v", config.ALPNProtocols)
	}
	if config.DialTimeout == 0 {
		t.Error("Expected dial timeout to be set")
	}
	if config.MaxMessageSize == 0 {
		t.Error("Expected max message size to be set")
	}

	defaulted := WithDefaults(&Config{MaxMessageSize: 10})
	if defaulted.MaxMessageSize != 10 {
		t.Errorf("Expected explicit max size 10 to survive, got %d", defaulted.MaxMessageSize)
	}
	if defaulted.InboxSize != config.InboxSize {
		t.Errorf("Expected inbox size %d, got %d", config.InboxSize, defaulted.InboxSize)
	}
}

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		ip       string
		port     uint16
		expected string
	}{
		{"192.168.1.5", 5000, "192.168.1.5:5000"},
		{"127.0.0.1", 1, "127.0.0.1:1"},
		{"::1", 6000, "[::1]:6000"},
	}

	for _, tt := range tests {
		if got := FormatAddr(tt.ip, tt.port); got != tt.expected {
			t.Errorf("FormatAddr(%s, %d): expected %s, got %s", tt.ip, tt.port, tt.expected, got)
		}
	}
}

func TestInbox(t *testing.T) {
	inbox := NewInbox(2)
	ctx := context.Background()

	if !inbox.Deliver(ctx, []byte("one")) || !inbox.Deliver(ctx, []byte("two")) {
		t.Fatal("Expected deliveries to succeed")
	}

	data, err := inbox.Recv(ctx)
	if err != nil || string(data) != "one" {
		t.Errorf("Expected 'one', got %q (%v)", data, err)
	}

	data, err = inbox.Recv(ctx)
	if err != nil || string(data) != "two" {
		t.Errorf("Expected 'two', got %q (%v)", data, err)
	}

	// Recv honours the context when empty
	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := inbox.Recv(timeoutCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	inbox.Close()
	inbox.Close()

	if _, err := inbox.Recv(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if inbox.Deliver(ctx, []byte("late")) {
		t.Error("Expected delivery to fail after close")
	}
}

func TestInbox_CloseUnblocksDeliver(t *testing.T) {
	inbox := NewInbox(1)
	ctx := context.Background()
	inbox.Deliver(ctx, []byte("fill"))

	result := make(chan bool, 1)
	go func() {
		result <- inbox.Deliver(ctx, []byte("blocked"))
	}()

	time.Sleep(20 * time.Millisecond)
	inbox.Close()

	select {
	case ok := <-result:
		if ok {
			t.Error("Expected blocked delivery to fail")
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not unblock on close")
	}
}

func TestMockChannel(t *testing.T) {
	transport := &MockTransport{name: "test"}
	ctx := context.Background()

	channel, err := transport.Dial(ctx, "localhost:8080")
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	if err := channel.Send(ctx, []byte("hi")); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if channel.RemoteAddr() != "localhost:8080" {
		t.Errorf("Expected remote addr localhost:8080, got %s", channel.RemoteAddr())
	}

	channel.Close()
	if err := channel.Send(ctx, []byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}
}
