package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/WebFirstLanguage/lanchat/internal/config"
	"github.com/WebFirstLanguage/lanchat/internal/logging"
	"github.com/WebFirstLanguage/lanchat/internal/shell"
	"github.com/WebFirstLanguage/lanchat/pkg/control"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
	"github.com/WebFirstLanguage/lanchat/pkg/node"
	"github.com/WebFirstLanguage/lanchat/pkg/router"
	"github.com/WebFirstLanguage/lanchat/pkg/wire"
)

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Display name (overrides config)")
	runCmd.Flags().StringVar(&runTransport, "transport", "", "Message transport: zmq, quic or tcp (overrides config)")
	runCmd.Flags().IntVar(&runPort, "port", -1, "Message port, 0 picks a free one (overrides config)")
	runCmd.Flags().BoolVar(&runNoShell, "no-shell", false, "Run without the interactive shell")
	rootCmd.AddCommand(runCmd)
}

var (
	runName      string
	runTransport string
	runPort      int
	runNoShell   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a chat node",
	Long: `Start a chat node: announce it on the LAN, listen for messages and open
the interactive shell. With --no-shell the node runs until interrupted and
is driven through the control API.`,
	Args: cobra.NoArgs,
	RunE: runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sh *shell.Shell
	var output router.Output = logOutput{logger: logger}
	if !runNoShell {
		sh = shell.New(os.Stdin, cmd.OutOrStdout())
		output = sh
	}

	nodeCfg, err := nodeConfig(cfg, logger, output)
	if err != nil {
		return err
	}
	n, err := node.New(nodeCfg)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		logging.Critical(logger, "node failed to start", "err", err)
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.Stop(stopCtx); err != nil {
			logger.Warn("node stop failed", "err", err)
		}
	}()

	if cfg.Control.Enabled {
		if err := serveControl(ctx, n, cfg.Control.Addr, logger); err != nil {
			logging.Critical(logger, "control API failed", "err", err)
			return err
		}
	}
	if cfg.HTTP.Enabled {
		shutdown, err := serveHTTP(n, cfg.HTTP.Addr, logger)
		if err != nil {
			logging.Critical(logger, "HTTP API failed", "err", err)
			return err
		}
		defer shutdown()
	}

	if sh == nil {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	sh.Bind(n)
	return sh.Run(ctx)
}

func applyRunFlags(cfg *config.Config) {
	if runName != "" {
		cfg.Node.Name = runName
	}
	if runTransport != "" {
		cfg.Node.Transport = runTransport
	}
	if runPort >= 0 {
		cfg.Node.Port = runPort
	}
}

// nodeConfig maps a validated file config onto node.Config
func nodeConfig(cfg config.Config, logger *slog.Logger, output router.Output) (*node.Config, error) {
	codec, err := wire.NewCodec(cfg.Node.Codec)
	if err != nil {
		return nil, err
	}

	return &node.Config{
		Name:           cfg.Node.Name,
		TransportName:  cfg.Node.Transport,
		Codec:          codec,
		ListenHost:     cfg.Node.ListenHost,
		Port:           uint16(cfg.Node.Port),
		Version:        uint16(cfg.Node.Version),
		UDPPort:        cfg.Discovery.UDPPort,
		BroadcastAddr:  cfg.Discovery.BroadcastAddr,
		BeaconInterval: cfg.Discovery.Interval.Duration,
		PeerTimeout:    cfg.Discovery.Timeout.Duration,
		QueueSize:      cfg.Router.QueueSize,
		Output:         output,
		Logger:         logger,
	}, nil
}

func serveControl(ctx context.Context, n *node.Node, addr string, logger *slog.Logger) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := control.NewServer(n, logger)
	go func() {
		if err := server.Serve(ctx, listener); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("control API stopped", "err", err)
		}
	}()
	return nil
}

func serveHTTP(n *node.Node, addr string, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           control.NewHTTPHandler(n),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP API stopped", "err", err)
		}
	}()
	logger.Info("HTTP API listening", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}, nil
}

// logOutput reports inbound messages through the logger when no shell runs
type logOutput struct {
	logger *slog.Logger
}

func (o logOutput) DeliverText(from identity.PeerID, text string) {
	o.logger.Info("message received", "peer", from, "text", text)
}

func (o logOutput) DeliverReceipt(from identity.PeerID, status string) {
	o.logger.Info("receipt received", "peer", from, "status", status)
}
