package node

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lancscode/chatter/pkg/gossip"
)

const defaultHistoryLimit = 50

// Healthz returns 200 OK to indicate the peer is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes the peer's identity and directory/dedup counters.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		gossip.Stats
		PID     int       `json:"pid"`
		Now     time.Time `json:"now"`
		Address string    `json:"address"`
		History int       `json:"history"`
	}
	out := resp{
		Stats:   n.gsp.Stats(),
		PID:     os.Getpid(),
		Now:     time.Now(),
		Address: n.gsp.Self().HostPort(),
	}
	if n.history != nil {
		out.History = n.history.Len()
	}
	writeJSON(w, http.StatusOK, out)
}

// RegisterPeer handles a remote peer announcing itself. A blank address is
// filled in from the connection.
func (n *Node) RegisterPeer(w http.ResponseWriter, r *http.Request) {
	var p gossip.Peer
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer: "+err.Error())
		return
	}
	if p.ID == "" || p.Port <= 0 || p.Port > 65535 {
		writeError(w, http.StatusBadRequest, "peer_id and a valid port are required")
		return
	}
	if p.Address == "" {
		p.Address = remoteHost(r)
	}
	n.gsp.RegisterPeer(p)
	w.WriteHeader(http.StatusNoContent)
}

// KnownPeers returns this peer's own record followed by its directory.
func (n *Node) KnownPeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.gsp.KnownPeers())
}

// ReceiveMessage hands a delivered message to the gossiper. Duplicates are
// acknowledged like any other delivery.
func (n *Node) ReceiveMessage(w http.ResponseWriter, r *http.Request) {
	var msg gossip.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message: "+err.Error())
		return
	}
	if msg.ID == "" || msg.SenderID == "" {
		writeError(w, http.StatusBadRequest, "message_id and sender_id are required")
		return
	}
	n.gsp.OnReceive(msg)
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	Content string `json:"content"`
}

// Send originates a message on behalf of a local client.
func (n *Node) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	msg, err := n.gsp.Originate(req.Content)
	switch {
	case errors.Is(err, gossip.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, gossip.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		n.log.Error("originate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// History returns the most recent rendered messages, oldest first.
func (n *Node) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = l
	}
	if n.history == nil {
		writeJSON(w, http.StatusOK, []gossip.Message{})
		return
	}
	writeJSON(w, http.StatusOK, n.history.Recent(limit))
}
