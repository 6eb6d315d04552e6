package gossip

import "sync"

// Deduplicator is the set of message IDs this peer has originated or
// accepted. Entries are never evicted: growth is bounded by the number of
// distinct messages seen during the process lifetime.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

func (d *Deduplicator) HasSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// MarkSeen records id and reports whether this was the first time.
func (d *Deduplicator) MarkSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
