package gossip

import (
	"encoding/json"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// PeerID is the stable identity of a peer, chosen by the user at startup.
type PeerID string

// Peer is one entry of a Directory.
type Peer struct {
	ID      PeerID `json:"peer_id"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	Online  bool   `json:"online"`
}

// HostPort returns the address the peer's transport listens on.
func (p Peer) HostPort() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// PeerSet is a set of peer IDs. It travels as a sorted JSON array.
type PeerSet map[PeerID]struct{}

func NewPeerSet(ids ...PeerID) PeerSet {
	s := make(PeerSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s PeerSet) Add(id PeerID) { s[id] = struct{}{} }

func (s PeerSet) Has(id PeerID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s PeerSet) Sorted() []PeerID {
	out := make([]PeerID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s PeerSet) Clone() PeerSet {
	out := make(PeerSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s PeerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *PeerSet) UnmarshalJSON(data []byte) error {
	var ids []PeerID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewPeerSet(ids...)
	return nil
}

// Message is a chat message as it travels between peers.
// SenderID is always a member of SeenBy, and SeenBy only grows.
type Message struct {
	ID        string    `json:"message_id"`
	SenderID  PeerID    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SeenBy    PeerSet   `json:"seen_by"`
}

// NewMessage stamps a fresh message originated by sender.
func NewMessage(sender PeerID, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		SeenBy:    NewPeerSet(sender),
	}
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	m.SeenBy = m.SeenBy.Clone()
	return m
}

// normalize restores the SenderID-in-SeenBy invariant on messages decoded
// from the wire.
func (m *Message) normalize() {
	if m.SeenBy == nil {
		m.SeenBy = NewPeerSet()
	}
	if m.SenderID != "" {
		m.SeenBy.Add(m.SenderID)
	}
}
