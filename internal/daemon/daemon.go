// Package daemon wires a chatter peer together: gossiper, HTTP transport,
// message history and optional etcd discovery.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lancscode/chatter/discovery"
	"github.com/lancscode/chatter/internal/config"
	"github.com/lancscode/chatter/pkg/gossip"
	"github.com/lancscode/chatter/pkg/history"
	"github.com/lancscode/chatter/pkg/node"
	"github.com/lancscode/chatter/pkg/ring"
)

// Daemon is one running chat peer.
type Daemon struct {
	Config   config.Config
	Gossiper *gossip.Gossiper
	History  *history.Store
	Node     *node.Node

	log    *zap.Logger
	out    io.Writer
	outMu  sync.Mutex
	server *http.Server
	ln     net.Listener

	etcd        *clientv3.Client
	lease       clientv3.LeaseID
	cancelLease context.CancelFunc
	cancelWatch context.CancelFunc
}

// NewWithConfig builds a peer from cfg. Rendered messages are written to out
// as "sender: content" lines.
func NewWithConfig(cfg config.Config, logger *zap.Logger, out io.Writer) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}

	d := &Daemon{
		Config:  cfg,
		History: history.NewStore(cfg.History.CapacityBytes),
		log:     logger,
		out:     out,
	}

	timeout := cfg.DeliveryTimeout(5 * time.Second)
	d.Gossiper = gossip.New(gossip.Config{
		Self: gossip.Peer{
			ID:      gossip.PeerID(cfg.Peer.ID),
			Address: cfg.AdvertiseHost(),
			Port:    cfg.Peer.Port,
		},
		MaxConcurrentDeliveries: cfg.Gossip.MaxConcurrentDeliveries,
		DeliveryTimeout:         timeout,
		OnDeliver:               d.render,
		Logger:                  logger,
	}, node.NewClient(timeout))

	d.Node = node.NewNode(d.Gossiper, d.History, logger)
	if cfg.Telemetry.Prometheus {
		d.Node.EnableMetrics()
	}
	return d, nil
}

// render is the local display of a message.
func (d *Daemon) render(m gossip.Message) {
	d.History.Add(m)
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.out, "%s: %s\n", m.SenderID, m.Content)
}

// Start binds the listen address and serves the HTTP transport in the
// background. A bind failure is the only fatal startup error.
func (d *Daemon) Start() error {
	addr := net.JoinHostPort(d.Config.Peer.Host, strconv.Itoa(d.Config.Peer.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	d.ln = ln
	d.server = &http.Server{
		Handler:      d.Node.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("http server stopped", zap.Error(err))
		}
	}()
	d.log.Info("[Boot] peer listening",
		zap.String("id", d.Config.Peer.ID),
		zap.String("listen", ln.Addr().String()),
		zap.String("advertise", d.Gossiper.Self().HostPort()))
	return nil
}

// Bootstrap joins the configured contacts, then any contacts found in
// etcd. Failed joins are logged and skipped; the returned error lists them.
func (d *Daemon) Bootstrap(ctx context.Context) error {
	var errs []error
	for _, c := range d.Config.Bootstrap.Contacts {
		if err := d.join(ctx, node.NormalizeHostPort(c, node.DefaultPort)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(d.Config.Bootstrap.EtcdEndpoints) > 0 {
		if err := d.bootstrapEtcd(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) join(ctx context.Context, hostport string) error {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("contact %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("contact %q: bad port", hostport)
	}
	if err := d.Gossiper.Join(ctx, host, port); err != nil {
		d.log.Warn("join failed", zap.String("contact", hostport), zap.Error(err))
		return err
	}
	return nil
}

// bootstrapEtcd joins through the ring successors of this peer among the
// peers registered in etcd, publishes this peer, and registers every peer
// that (re)publishes itself later.
func (d *Daemon) bootstrapEtcd(ctx context.Context) error {
	b := d.Config.Bootstrap
	cli, err := discovery.NewClient(b.EtcdEndpoints)
	if err != nil {
		return fmt.Errorf("etcd client: %w", err)
	}
	d.etcd = cli
	d.log.Info("[Boot] created etcd client", zap.Strings("endpoints", cli.Endpoints()))

	peers, err := discovery.ListPeers(ctx, cli, b.EtcdPrefix)
	if err != nil {
		return fmt.Errorf("list etcd peers: %w", err)
	}
	r := ring.New(0, nil)
	for _, p := range peers {
		r.Add(p)
	}
	self := d.Gossiper.Self()
	var errs []error
	for _, c := range r.Contacts(self.ID, b.Fanout) {
		d.log.Info("[Bootstrap] joining via etcd contact", zap.String("contact", string(c.ID)), zap.String("addr", c.HostPort()))
		if err := d.join(ctx, c.HostPort()); err != nil {
			errs = append(errs, err)
		}
	}

	lease, cancel, err := discovery.RegisterPeer(ctx, cli, b.EtcdPrefix, self, b.LeaseTTL)
	if err != nil {
		errs = append(errs, fmt.Errorf("register in etcd: %w", err))
	} else {
		d.lease, d.cancelLease = lease, cancel
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	d.cancelWatch = cancelWatch
	discovery.WatchPeers(watchCtx, cli, b.EtcdPrefix, d.Gossiper.RegisterPeer)
	return errors.Join(errs...)
}

// Close stops the HTTP server, lets in-flight deliveries drain until ctx is
// done, and releases the etcd registration.
func (d *Daemon) Close(ctx context.Context) error {
	var errs []error
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.Gossiper.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain deliveries: %w", err))
	}
	if d.cancelWatch != nil {
		d.cancelWatch()
	}
	if d.cancelLease != nil {
		d.cancelLease()
		_, _ = d.etcd.Revoke(ctx, d.lease)
	}
	if d.etcd != nil {
		_ = d.etcd.Close()
	}
	d.log.Info("peer shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listen address, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}
