package gossip

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lancscode/chatter/internal/telemetry"
)

// Config configures a Gossiper.
type Config struct {
	// Self is the identity and listen address announced to other peers.
	Self Peer

	// MaxConcurrentDeliveries bounds the fan-out deliveries in flight at once.
	MaxConcurrentDeliveries int

	// DeliveryTimeout, if set, bounds each delivery on top of whatever
	// timeout the Transport applies.
	DeliveryTimeout time.Duration

	// OnDeliver renders a message locally. It is called once per message
	// this peer originates or accepts, from the goroutine that processed it.
	OnDeliver func(Message)

	Logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{MaxConcurrentDeliveries: 5}
}

// Stats is a point-in-time summary of a Gossiper.
type Stats struct {
	Self         PeerID `json:"self"`
	KnownPeers   int    `json:"known_peers"`
	OnlinePeers  int    `json:"online_peers"`
	MessagesSeen int    `json:"messages_seen"`
}

// Gossiper floods chat messages to every online peer in its Directory and
// relays messages it receives, processing each message ID at most once.
type Gossiper struct {
	cfg       Config
	self      Peer
	dir       *Directory
	dedup     *Deduplicator
	transport Transport
	sem       *semaphore.Weighted
	log       *zap.Logger

	// mu orders closed against wg.Add so Close never races a new delivery.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Handler = (*Gossiper)(nil)

func New(cfg Config, t Transport) *Gossiper {
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = DefaultConfig().MaxConcurrentDeliveries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	self := cfg.Self
	self.Online = true

	return &Gossiper{
		cfg:       cfg,
		self:      self,
		dir:       NewDirectory(self.ID),
		dedup:     NewDeduplicator(),
		transport: t,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentDeliveries)),
		log:       logger.With(zap.String("peer", string(self.ID))),
	}
}

func (g *Gossiper) Self() Peer { return g.self }

func (g *Gossiper) Directory() *Directory { return g.dir }

func (g *Gossiper) Deduplicator() *Deduplicator { return g.dedup }

func (g *Gossiper) Stats() Stats {
	return Stats{
		Self:         g.self.ID,
		KnownPeers:   g.dir.Len(),
		OnlinePeers:  g.dir.Online(),
		MessagesSeen: g.dedup.Len(),
	}
}

// Originate creates a message from content, renders it locally and floods
// it to the network. Delivery failures are absorbed; the only errors are
// ErrInvalidInput for blank content and ErrClosed.
func (g *Gossiper) Originate(content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrInvalidInput
	}
	if g.isClosed() {
		return Message{}, ErrClosed
	}

	msg := NewMessage(g.self.ID, content)
	g.dedup.MarkSeen(msg.ID)
	telemetry.MessagesOriginated.Inc()

	g.render(msg)
	targets := g.fanOut(msg)
	g.log.Debug("message originated", zap.String("id", msg.ID), zap.Int("targets", targets))
	return msg, nil
}

// OnReceive handles a message delivered by another peer. Messages already
// processed here, and messages this peer originated, are dropped, which
// bounds the flood to one pass per peer per message.
func (g *Gossiper) OnReceive(msg Message) {
	msg.normalize()
	if msg.ID == "" {
		g.log.Warn("dropping message without id", zap.String("sender", string(msg.SenderID)))
		telemetry.MessagesReceived.WithLabelValues("invalid").Inc()
		return
	}
	if msg.SenderID == g.self.ID {
		telemetry.MessagesReceived.WithLabelValues("self").Inc()
		return
	}
	if !g.dedup.MarkSeen(msg.ID) {
		telemetry.MessagesReceived.WithLabelValues("duplicate").Inc()
		return
	}
	telemetry.MessagesReceived.WithLabelValues("accepted").Inc()

	msg.SeenBy.Add(g.self.ID)
	g.render(msg)
	targets := g.fanOut(msg)
	g.log.Debug("message relayed",
		zap.String("id", msg.ID),
		zap.String("sender", string(msg.SenderID)),
		zap.Int("targets", targets))
}

// RegisterPeer handles another peer announcing itself.
func (g *Gossiper) RegisterPeer(p Peer) {
	if g.dir.Register(p.ID, p.Address, p.Port) {
		g.log.Info("peer registered", zap.String("remote", string(p.ID)), zap.String("addr", p.HostPort()))
		g.updatePeerGauges()
	}
}

// KnownPeers answers a joining peer: this peer's own record first, then
// every Directory entry.
func (g *Gossiper) KnownPeers() []Peer {
	return append([]Peer{g.self}, g.dir.Snapshot()...)
}

// Join announces this peer to the one at host:port and adopts the peers it
// knows. Local state is untouched when either call fails.
func (g *Gossiper) Join(ctx context.Context, host string, port int) error {
	target := net.JoinHostPort(host, strconv.Itoa(port))

	if err := g.transport.RegisterPeer(ctx, target, g.self); err != nil {
		return fmt.Errorf("%w: register with %s: %w", ErrConnectFailed, target, err)
	}
	peers, err := g.transport.KnownPeers(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: list peers of %s: %w", ErrConnectFailed, target, err)
	}

	added := g.dir.Merge(peers)
	g.updatePeerGauges()
	g.log.Info("joined network", zap.String("via", target), zap.Int("new_peers", added))
	return nil
}

// Close stops new fan-outs and waits for in-flight deliveries until ctx is
// done. Deliveries still running when ctx expires are abandoned, not
// cancelled.
func (g *Gossiper) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gossiper) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

func (g *Gossiper) render(msg Message) {
	if g.cfg.OnDeliver != nil {
		g.cfg.OnDeliver(msg.Clone())
	}
}

// fanOut starts one delivery per online peer that has not seen msg yet and
// returns how many were started. It never waits for them.
func (g *Gossiper) fanOut(msg Message) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return 0
	}

	n := 0
	for _, p := range g.dir.Snapshot() {
		if !p.Online || msg.SeenBy.Has(p.ID) {
			continue
		}
		g.wg.Add(1)
		go g.deliver(p, msg.Clone())
		n++
	}
	return n
}

func (g *Gossiper) deliver(p Peer, msg Message) {
	defer g.wg.Done()

	ctx := context.Background()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer g.sem.Release(1)

	telemetry.DeliveriesInFlight.Inc()
	defer telemetry.DeliveriesInFlight.Dec()

	if g.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.DeliveryTimeout)
		defer cancel()
	}

	if err := g.transport.ReceiveMessage(ctx, p.HostPort(), msg); err != nil {
		g.deliveryFailed(p, msg.ID, err)
		return
	}
	telemetry.Deliveries.WithLabelValues("ok").Inc()
}

func (g *Gossiper) updatePeerGauges() {
	telemetry.PeersKnown.Set(float64(g.dir.Len()))
	telemetry.PeersOnline.Set(float64(g.dir.Online()))
}
