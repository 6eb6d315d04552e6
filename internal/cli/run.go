package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lancscode/chatter/internal/config"
	"github.com/lancscode/chatter/internal/daemon"
	"github.com/lancscode/chatter/internal/telemetry"
	"github.com/lancscode/chatter/pkg/gossip"
)

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runConfigPath, "config", "c", "", "Path to a TOML config file")
	f.StringVar(&runID, "id", "", "Peer ID (overrides config)")
	f.StringVar(&runHost, "host", "", "Host to listen on (overrides config)")
	f.StringVar(&runAdvertise, "advertise", "", "Host other peers should dial (overrides config)")
	f.IntVarP(&runPort, "port", "p", 0, "Port to listen on (overrides config)")
	f.StringSliceVarP(&runJoin, "join", "j", nil, "host:port of a peer to join (repeatable)")
	f.StringSliceVar(&runEtcd, "etcd", nil, "etcd endpoints for peer discovery")
	f.StringVar(&runLogLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.AddCommand(runCmd)
}

var (
	runConfigPath string
	runID         string
	runHost       string
	runAdvertise  string
	runPort       int
	runJoin       []string
	runEtcd       []string
	runLogLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a chat peer",
	Long: `Start a chat peer, optionally joining an existing network, then read
lines from stdin and send each one. Type "exit" to quit.`,
	RunE: runPeer,
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return err
	}
	applyRunFlags(&cfg)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()
	telemetry.SetBuildInfo(rootCmd.Version)

	d, err := daemon.NewWithConfig(cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Bootstrap(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Connection failed:", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Peer %s started on %s\n", cfg.Peer.ID, d.Gossiper.Self().HostPort())
	fmt.Fprintln(cmd.OutOrStdout(), `Start chatting (type "exit" to quit):`)

	chat(ctx, d, readLines(ctx, cmd.InOrStdin()), cmd, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.Close(shutdownCtx)
}

// readLines streams lines from r until end of input or ctx is done. The
// channel is closed when the reader goroutine exits.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// chat originates every line until "exit", end of input, or ctx is done.
func chat(ctx context.Context, d *daemon.Daemon, lines <-chan string, cmd *cobra.Command, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "exit") {
				return
			}
			if _, err := d.Gossiper.Originate(line); err != nil {
				if errors.Is(err, gossip.ErrInvalidInput) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cannot send empty message")
					continue
				}
				logger.Error("send failed", zap.Error(err))
				return
			}
		}
	}
}

func applyRunFlags(cfg *config.Config) {
	if runID != "" {
		cfg.Peer.ID = runID
	}
	if runHost != "" {
		cfg.Peer.Host = runHost
	}
	if runAdvertise != "" {
		cfg.Peer.Advertise = runAdvertise
	}
	if runPort > 0 {
		cfg.Peer.Port = runPort
	}
	if len(runJoin) > 0 {
		cfg.Bootstrap.Contacts = runJoin
	}
	if len(runEtcd) > 0 {
		cfg.Bootstrap.EtcdEndpoints = runEtcd
	}
	if runLogLevel != "" {
		cfg.Logging.Level = runLogLevel
	}
}
