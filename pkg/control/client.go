package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client talks to a running node's control API
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
}

// Dial connects to the control API at addr
func Dial(ctx context.Context, addr string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control API at %s: %w", addr, err)
	}

	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call performs one request and decodes its result into result when non-nil
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	request := Request{Method: method, ID: uuid.NewString(), Params: params}
	if err := c.encoder.Encode(request); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var response Response
	if err := c.decoder.Decode(&response); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if response.ID != request.ID {
		return fmt.Errorf("response id mismatch: expected %s, got %s", request.ID, response.ID)
	}
	if response.Error != "" {
		return fmt.Errorf("%s: %s", method, response.Error)
	}

	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// Info returns the node description
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.Call(ctx, "info", nil, &info)
	return info, err
}

// Peers returns the live peers
func (c *Client) Peers(ctx context.Context) ([]Peer, error) {
	var peers []Peer
	err := c.Call(ctx, "peers", nil, &peers)
	return peers, err
}

// Names returns the learned names keyed by peer id
func (c *Client) Names(ctx context.Context) (map[string]string, error) {
	var names map[string]string
	err := c.Call(ctx, "names", nil, &names)
	return names, err
}

// Send queues a text message for peer (id, id prefix or name) and returns the
// resolved id
func (c *Client) Send(ctx context.Context, peer, text string) (string, error) {
	var result map[string]string
	err := c.Call(ctx, "send", map[string]interface{}{"peer": peer, "text": text}, &result)
	return result["peer"], err
}

// Query asks peer for its name
func (c *Client) Query(ctx context.Context, peer string) error {
	return c.Call(ctx, "query", map[string]interface{}{"peer": peer}, nil)
}

// SetName changes the node's display name
func (c *Client) SetName(ctx context.Context, name string) (string, error) {
	var result map[string]string
	err := c.Call(ctx, "set_name", map[string]interface{}{"name": name}, &result)
	return result["name"], err
}
