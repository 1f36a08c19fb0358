// Package shell implements the interactive line-oriented chat shell.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/node"
)

// Node is the part of a chat node the shell drives
type Node interface {
	ID() identity.PeerID
	Name() string
	SetName(name string) error
	ListPeers() []node.PeerInfo
	SendText(ctx context.Context, to identity.PeerID, text string) error
	QueryName(ctx context.Context, to identity.PeerID) error
	Resolve(target string) (identity.PeerID, error)
	CompletionSource() node.Completion
}

const helpText = `commands:
  list                    show live peers
  send <peer> <text>      send a message (peer: id, id prefix or name)
  query <peer>            ask a peer for its name
  name [new]              show or change your display name
  complete <prefix>       list peers matching prefix
  help                    show this help
  quit                    leave
`

// Shell reads commands from in and prints to out. It also receives the
// node's inbound texts and receipts.
type Shell struct {
	mu   sync.Mutex
	in   io.Reader
	out  io.Writer
	node Node
	now  func() time.Time
}

// New creates a shell. Bind must be called before Run.
func New(in io.Reader, out io.Writer) *Shell {
	return &Shell{in: in, out: out, now: time.Now}
}

// Bind attaches the node the shell controls
func (s *Shell) Bind(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node = n
}

func (s *Shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// label renders a peer as "name (id)" when the name is known
func (s *Shell) label(id identity.PeerID) string {
	s.mu.Lock()
	n := s.node
	s.mu.Unlock()

	if n == nil {
		return id.String()
	}
	if name, ok := n.CompletionSource().Names[id]; ok {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return id.String()
}

// DeliverText prints an inbound chat message
func (s *Shell) DeliverText(from identity.PeerID, text string) {
	s.printf("[%s] %s\n", s.label(from), text)
}

// DeliverReceipt prints a delivery confirmation
func (s *Shell) DeliverReceipt(from identity.PeerID, status string) {
	s.printf("receipt from %s: %s\n", s.label(from), status)
}

// Run processes commands until quit, EOF or ctx cancellation
func (s *Shell) Run(ctx context.Context) error {
	if s.node == nil {
		return fmt.Errorf("shell has no node")
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.printf("%s as %s, type 'help' for commands\n", s.node.ID(), s.node.Name())
	for {
		s.printf("> ")

		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if quit := s.Execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the shell should exit
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "list", "ls", "peers":
		s.list()
	case "send", "msg":
		if len(args) < 2 {
			s.printf("usage: send <peer> <text>\n")
			return false
		}
		s.send(ctx, args[0], restOfLine(line, 2))
	case "query":
		if len(args) != 1 {
			s.printf("usage: query <peer>\n")
			return false
		}
		s.query(ctx, args[0])
	case "name":
		if len(args) == 0 {
			s.printf("%s\n", s.node.Name())
			return false
		}
		if err := s.node.SetName(restOfLine(line, 1)); err != nil {
			s.printf("error: %v\n", err)
			return false
		}
		s.printf("name set to %s\n", s.node.Name())
	case "complete":
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		for _, sug := range Complete(s.node.CompletionSource(), prefix) {
			s.printf("%s %s\n", sug.Text, sug.Meta)
		}
	case "help", "?":
		s.printf("%s", helpText)
	case "quit", "exit":
		return true
	default:
		s.printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (s *Shell) list() {
	peers := s.node.ListPeers()
	if len(peers) == 0 {
		s.printf("no live peers\n")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tVERSION\tSEEN")
	for _, p := range peers {
		name := p.Name
		if p.Self {
			name += " (self)"
		}
		age := s.now().Sub(p.Record.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s ago\n", p.ID, name, p.Record.Addr(), p.Record.ProtocolVersion, age)
	}
	w.Flush()
}

func (s *Shell) send(ctx context.Context, target, text string) {
	id, err := s.node.Resolve(target)
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}
	if err := s.node.SendText(ctx, id, text); err != nil {
		s.printf("error: %v\n", err)
	}
}

func (s *Shell) query(ctx context.Context, target string) {
	id, err := s.node.Resolve(target)
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}
	if err := s.node.QueryName(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		s.printf("error: %v\n", err)
	}
}

// restOfLine returns line after its first n fields, inner spacing kept
func restOfLine(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' })
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}
