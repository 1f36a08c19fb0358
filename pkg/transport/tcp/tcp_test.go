package tcp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/transport"
)

func TestTCPTransport_Name(t *testing.T) {
	tr := New(nil)
	if tr.Name() != "tcp" {
		t.Errorf("Expected transport name 'tcp', got '%s'", tr.Name())
	}
}

func TestTCPTransport_Registered(t *testing.T) {
	tr, err := transport.DefaultRegistry.New("tcp", nil)
	if err != nil {
		t.Fatalf("Expected tcp in default registry: %v", err)
	}
	if tr.Name() != "tcp" {
		t.Errorf("Expected transport name 'tcp', got '%s'", tr.Name())
	}
}

func TestTCPTransport_Listen(t *testing.T) {
	tr := New(nil)
	ctx := context.Background()

	listener, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	if _, ok := listener.Addr().(*net.TCPAddr); !ok {
		t.Errorf("Expected TCP address, got %T", listener.Addr())
	}
}

func TestTCPTransport_ListenCancelledContext(t *testing.T) {
	tr := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Listen(ctx, "127.0.0.1:0"); err == nil {
		t.Error("Expected error with cancelled context")
	}
	if _, err := tr.Dial(ctx, "127.0.0.1:1"); err == nil {
		t.Error("Expected error with cancelled context")
	}
}

func TestTCPTransport_SendRecv(t *testing.T) {
	tr := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	channel, err := tr.Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer channel.Close()

	messages := [][]byte{
		[]byte(`{"type":3,"field":"hello","uuid":"abcdefg"}`),
		{},
		bytes.Repeat([]byte("x"), 70000),
	}

	for _, msg := range messages {
		if err := channel.Send(ctx, msg); err != nil {
			t.Fatalf("Failed to send: %v", err)
		}
	}

	// Boundaries are preserved
	for i, expected := range messages {
		got, err := listener.Recv(ctx)
		if err != nil {
			t.Fatalf("Failed to receive message %d: %v", i, err)
		}
		if !bytes.Equal(got, expected) {
			t.Errorf("Message %d: expected %d bytes, got %d", i, len(expected), len(got))
		}
	}
}

func TestTCPTransport_MultipleChannels(t *testing.T) {
	tr := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	for _, body := range []string{"first", "second"} {
		channel, err := tr.Dial(ctx, listener.Addr().String())
		if err != nil {
			t.Fatalf("Failed to dial: %v", err)
		}
		defer channel.Close()

		if err := channel.Send(ctx, []byte(body)); err != nil {
			t.Fatalf("Failed to send: %v", err)
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		got, err := listener.Recv(ctx)
		if err != nil {
			t.Fatalf("Failed to receive: %v", err)
		}
		seen[string(got)] = true
	}
	if !seen["first"] || !seen["second"] {
		t.Errorf("Expected both messages, got %v", seen)
	}
}

func TestTCPTransport_MessageTooLarge(t *testing.T) {
	tr := New(&transport.Config{MaxMessageSize: 8})
	ctx := context.Background()

	listener, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	channel, err := tr.Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer channel.Close()

	err = channel.Send(ctx, []byte("0123456789"))
	if !errors.Is(err, transport.ErrMessageTooLarge) {
		t.Errorf("Expected ErrMessageTooLarge, got %v", err)
	}
}

func TestTCPTransport_Close(t *testing.T) {
	tr := New(nil)
	ctx := context.Background()

	listener, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	channel, err := tr.Dial(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	if err := channel.Close(); err != nil {
		t.Errorf("Failed to close channel: %v", err)
	}
	if err := channel.Send(ctx, []byte("late")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	listener.Close()
	if _, err := listener.Recv(ctx); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Expected ErrClosed from closed listener, got %v", err)
	}
}

func TestTCPTransport_DialRefused(t *testing.T) {
	tr := New(&transport.Config{DialTimeout: time.Second})
	ctx := context.Background()

	// Grab a free port and release it
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := tr.Dial(ctx, addr); err == nil {
		t.Error("Expected dial to a closed port to fail")
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("abc")); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	expected := []byte{0, 0, 0, 3, 'a', 'b', 'c'}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("Expected frame %x, got %x", expected, buf.Bytes())
	}

	data, err := readFrame(&buf, 16)
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("Expected 'abc', got %q", data)
	}

	if _, err := readFrame(bytes.NewReader([]byte{0, 0, 1, 0}), 16); !errors.Is(err, transport.ErrMessageTooLarge) {
		t.Errorf("Expected ErrMessageTooLarge, got %v", err)
	}
}
