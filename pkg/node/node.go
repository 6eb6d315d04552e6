// Package node exposes a Gossiper over HTTP. The server half mounts the
// remote peer operations (registerPeer, receiveMessage, getKnownPeers) plus
// a small local chat API; Client is the matching gossip.Transport.
package node

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lancscode/chatter/internal/telemetry"
	"github.com/lancscode/chatter/pkg/gossip"
	"github.com/lancscode/chatter/pkg/history"
)

// maxBodyBytes caps every request body the node will decode.
const maxBodyBytes = 1 << 20

type Node struct {
	gsp     *gossip.Gossiper
	history *history.Store
	log     *zap.Logger
	metrics bool
}

func NewNode(g *gossip.Gossiper, h *history.Store, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{gsp: g, history: h, log: logger}
}

// EnableMetrics mounts /metrics on the router.
func (n *Node) EnableMetrics() { n.metrics = true }

func (n *Node) Gossiper() *gossip.Gossiper { return n.gsp }

// Routes returns the chi router with every endpoint mounted.
func (n *Node) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", n.Healthz)
	r.Get("/info", n.Info)
	if n.metrics {
		r.Handle("/metrics", telemetry.MetricsHandler())
	}

	// peer-to-peer operations
	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/peers", telemetry.Instrument("register_peer", http.HandlerFunc(n.RegisterPeer)))
		r.Method(http.MethodGet, "/peers", telemetry.Instrument("known_peers", http.HandlerFunc(n.KnownPeers)))
		r.Method(http.MethodPost, "/messages", telemetry.Instrument("receive_message", http.HandlerFunc(n.ReceiveMessage)))
	})

	// local chat API
	r.Method(http.MethodPost, "/chat", telemetry.Instrument("send", http.HandlerFunc(n.Send)))
	r.Method(http.MethodGet, "/chat/history", telemetry.Instrument("history", http.HandlerFunc(n.History)))

	return r
}
