package gossip

import (
	"slices"
	"strings"
	"sync"
)

// Directory is one peer's view of the other peers it knows about.
// It never contains the local peer itself. All methods are safe for
// concurrent use.
type Directory struct {
	mu    sync.RWMutex
	self  PeerID
	peers map[PeerID]Peer
}

func NewDirectory(self PeerID) *Directory {
	return &Directory{
		self:  self,
		peers: make(map[PeerID]Peer),
	}
}

// Register records a peer that announced itself. Self and already-online
// entries are left alone. A known offline peer is brought back online with
// its announced address, which is the only way a peer leaves the offline
// state. Reports whether the directory changed.
func (d *Directory) Register(id PeerID, address string, port int) bool {
	if id == "" || id == d.self {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.peers[id]; ok && p.Online {
		return false
	}
	d.peers[id] = Peer{ID: id, Address: address, Port: port, Online: true}
	return true
}

// Merge adds every peer from a remote snapshot that is neither self nor
// already known. Merged peers start online: the remote's liveness view is
// not ours. Returns the number of peers added.
func (d *Directory) Merge(remote []Peer) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, p := range remote {
		if p.ID == "" || p.ID == d.self {
			continue
		}
		if _, ok := d.peers[p.ID]; ok {
			continue
		}
		p.Online = true
		d.peers[p.ID] = p
		added++
	}
	return added
}

// MarkOffline demotes a peer. Reports whether it was online before.
func (d *Directory) MarkOffline(id PeerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.peers[id]
	if !ok || !p.Online {
		return false
	}
	p.Online = false
	d.peers[id] = p
	return true
}

func (d *Directory) Get(id PeerID) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

// Snapshot returns a copy of all entries ordered by ID. Later mutations
// are not reflected in it.
func (d *Directory) Snapshot() []Peer {
	d.mu.RLock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b Peer) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// Online counts the entries currently considered reachable.
func (d *Directory) Online() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, p := range d.peers {
		if p.Online {
			n++
		}
	}
	return n
}
