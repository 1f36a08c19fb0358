// Package control implements the local control API of a chat node: JSON
// requests over a loopback TCP socket, one object per line.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/node"
)

// Request represents a control API request
type Request struct {
	Method string                 `json:"method"`
	ID     string                 `json:"id"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Response represents a control API response
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Info describes the local node
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Transport string `json:"transport"`
	Addr      string `json:"addr,omitempty"`
}

// Peer is one live peer as seen by the local node
type Peer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	IP       string    `json:"ip"`
	Port     uint16    `json:"port"`
	Version  uint16    `json:"version"`
	LastSeen time.Time `json:"last_seen"`
	Self     bool      `json:"self,omitempty"`
}

// Server implements the control API server
type Server struct {
	mu     sync.RWMutex
	node   *node.Node
	logger *slog.Logger
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// NewServer creates a new control API server
func NewServer(n *node.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		node:   n,
		logger: logger.With("component", "control"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is done or the listener is closed
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.closeConns()
	})
	defer stop()

	s.logger.Info("control API listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// handleConnection handles a single client connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var request Request
		if err := decoder.Decode(&request); err != nil {
			// Connection closed or invalid JSON
			return
		}

		response := s.handleRequest(ctx, request)

		if err := encoder.Encode(response); err != nil {
			return
		}
	}
}

// handleRequest processes a single API request
func (s *Server) handleRequest(ctx context.Context, request Request) Response {
	var (
		result interface{}
		err    error
	)

	switch request.Method {
	case "info":
		result = NodeInfo(s.node)
	case "peers":
		result = Peers(s.node)
	case "names":
		result = Names(s.node)
	case "send":
		result, err = s.send(ctx, request.Params)
	case "query":
		result, err = s.query(ctx, request.Params)
	case "set_name":
		result, err = s.setName(request.Params)
	default:
		err = fmt.Errorf("unknown method: %s", request.Method)
	}

	if err != nil {
		return Response{ID: request.ID, Error: err.Error()}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return Response{ID: request.ID, Error: fmt.Sprintf("failed to encode result: %v", err)}
	}
	return Response{ID: request.ID, Result: data}
}

// NodeInfo describes n
func NodeInfo(n *node.Node) Info {
	info := Info{
		ID:        n.ID().String(),
		Name:      n.Name(),
		State:     n.State().String(),
		Transport: n.TransportName(),
	}
	if addr := n.Addr(); addr != nil {
		info.Addr = addr.String()
	}
	return info
}

func (s *Server) send(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	target, err := stringParam(params, "peer")
	if err != nil {
		return nil, err
	}
	text, err := stringParam(params, "text")
	if err != nil {
		return nil, err
	}

	return SendText(ctx, s.node, target, text)
}

func (s *Server) query(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	target, err := stringParam(params, "peer")
	if err != nil {
		return nil, err
	}

	id, err := s.node.Resolve(target)
	if err != nil {
		return nil, err
	}
	if err := s.node.QueryName(ctx, id); err != nil {
		return nil, err
	}
	return map[string]string{"peer": id.String()}, nil
}

func (s *Server) setName(params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	if err := s.node.SetName(name); err != nil {
		return nil, err
	}
	return map[string]string{"name": s.node.Name()}, nil
}

// Peers lists the live peers of n
func Peers(n *node.Node) []Peer {
	infos := n.ListPeers()
	peers := make([]Peer, len(infos))
	for i, p := range infos {
		peers[i] = Peer{
			ID:       p.ID.String(),
			Name:     p.Name,
			IP:       p.Record.IP,
			Port:     p.Record.Port,
			Version:  p.Record.ProtocolVersion,
			LastSeen: p.Record.LastSeen,
			Self:     p.Self,
		}
	}
	return peers
}

// Names returns the learned names of n keyed by peer id
func Names(n *node.Node) map[string]string {
	names := make(map[string]string)
	for id, name := range n.Directory().Snapshot() {
		names[id.String()] = name
	}
	return names
}

// SendText resolves target and queues text for it
func SendText(ctx context.Context, n *node.Node, target, text string) (map[string]string, error) {
	if text == "" {
		return nil, fmt.Errorf("text must not be empty")
	}

	id, err := n.Resolve(target)
	if err != nil {
		return nil, err
	}
	if err := n.SendText(ctx, id, text); err != nil {
		return nil, err
	}
	return map[string]string{"peer": id.String(), "status": "queued"}, nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("%s parameter is required and must be a string", key)
	}
	return value, nil
}
