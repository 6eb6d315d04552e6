// Package ring places peers on a consistent-hash ring so that each peer
// can pick bootstrap contacts without everyone converging on the same one.
// A peer joins through the peers that follow its own ID on the ring; adding
// or removing a peer only shifts the contacts of its ring neighbours.
package ring

import (
	"encoding/binary"
	"hash/fnv"
	"slices"
	"sort"
	"sync"

	"github.com/lancscode/chatter/pkg/gossip"
)

type Hasher func([]byte) uint32

// FNV32a is the default Hasher.
func FNV32a(b []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32()
}

type Ring struct {
	mu       sync.RWMutex
	replicas int
	hash     Hasher
	points   []uint32                    // sorted
	owners   map[uint32]gossip.PeerID    // point -> peer
	peers    map[gossip.PeerID]gossip.Peer
}

func New(replicas int, h Hasher) *Ring {
	if replicas <= 0 {
		replicas = 64
	}
	if h == nil {
		h = FNV32a
	}
	return &Ring{
		replicas: replicas,
		hash:     h,
		owners:   make(map[uint32]gossip.PeerID),
		peers:    make(map[gossip.PeerID]gossip.Peer),
	}
}

// Add places p on the ring. Re-adding a known ID only refreshes its address.
func (r *Ring) Add(p gossip.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.ID]; ok {
		r.peers[p.ID] = p
		return
	}
	r.peers[p.ID] = p
	for i := 0; i < r.replicas; i++ {
		pt := r.hash(pointKey(p.ID, i))
		r.owners[pt] = p.ID
		r.points = append(r.points, pt)
	}
	slices.Sort(r.points)
}

func (r *Ring) Remove(id gossip.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return
	}
	delete(r.peers, id)
	kept := r.points[:0]
	for _, pt := range r.points {
		if r.owners[pt] == id {
			delete(r.owners, pt)
			continue
		}
		kept = append(kept, pt)
	}
	r.points = kept
}

func (r *Ring) Get(id gossip.PeerID) (gossip.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Contacts returns up to n distinct peers found walking clockwise from
// self's position, never including self.
func (r *Ring) Contacts(self gossip.PeerID, n int) []gossip.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 || n <= 0 {
		return nil
	}

	h := r.hash([]byte(self))
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] > h })

	seen := map[gossip.PeerID]struct{}{self: {}}
	out := make([]gossip.Peer, 0, n)
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		id := r.owners[r.points[(idx+i)%len(r.points)]]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r.peers[id])
	}
	return out
}

func pointKey(id gossip.PeerID, i int) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(i))
	return append([]byte(id), buf[:]...)
}
