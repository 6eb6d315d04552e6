// Package history keeps the chat messages a peer has rendered, newest
// first, within a byte budget. It is the local display log: nothing in it
// survives a restart.
package history

import (
	"container/list"
	"sync"

	"github.com/lancscode/chatter/pkg/gossip"
)

type entry struct {
	msg  gossip.Message
	size int
}

// Store is an in-memory message log that evicts the oldest messages once
// the summed message size exceeds its capacity.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*list.Element
	ll   *list.List // front = newest
	used int
	cap  int
}

func NewStore(capacityBytes int) *Store {
	return &Store{
		byID: make(map[string]*list.Element),
		ll:   list.New(),
		cap:  capacityBytes,
	}
}

// Add appends msg unless a message with the same ID is already stored.
func (s *Store) Add(msg gossip.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	e := &entry{msg: msg.Clone(), size: sizeOf(msg)}
	s.byID[msg.ID] = s.ll.PushFront(e)
	s.used += e.size
	s.evictIfNeeded()
	return true
}

func (s *Store) Get(id string) (gossip.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.byID[id]
	if !ok {
		return gossip.Message{}, false
	}
	return el.Value.(*entry).msg.Clone(), true
}

// Recent returns up to n messages in the order they were added, oldest
// first. n <= 0 returns everything.
func (s *Store) Recent(n int) []gossip.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.ll.Len() {
		n = s.ll.Len()
	}
	out := make([]gossip.Message, n)
	el := s.ll.Front()
	for i := n - 1; i >= 0; i-- {
		out[i] = el.Value.(*entry).msg.Clone()
		el = el.Next()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Bytes reports the summed size of the stored messages.
func (s *Store) Bytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// the newest message is kept even when it alone exceeds the capacity
func (s *Store) evictIfNeeded() {
	for s.used > s.cap && s.ll.Len() > 1 {
		s.removeElement(s.ll.Back())
	}
}

func (s *Store) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.byID, e.msg.ID)
	s.used -= e.size
	s.ll.Remove(el)
}

func sizeOf(m gossip.Message) int {
	return len(m.ID) + len(m.SenderID) + len(m.Content)
}
