package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Transport is the client side of the remote peer operations. Every call
// targets the peer listening on hostport. Implementations bound each call
// with their own timeout; any returned error counts as a failed delivery.
type Transport interface {
	RegisterPeer(ctx context.Context, hostport string, self Peer) error
	ReceiveMessage(ctx context.Context, hostport string, msg Message) error
	KnownPeers(ctx context.Context, hostport string) ([]Peer, error)
}

// Handler is the server side of the remote peer operations.
type Handler interface {
	RegisterPeer(p Peer)
	OnReceive(m Message)
	KnownPeers() []Peer
}

// InProcTransport connects Handlers living in the same process. Values are
// copied on every call, the way a wire round trip would.
type InProcTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	delays   map[string]time.Duration
}

func NewInProcTransport() *InProcTransport {
	return &InProcTransport{
		handlers: make(map[string]Handler),
		delays:   make(map[string]time.Duration),
	}
}

// Bind makes h reachable at hostport.
func (t *InProcTransport) Bind(hostport string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[hostport] = h
}

// Unbind makes hostport unreachable; later calls fail with ErrUnreachable.
func (t *InProcTransport) Unbind(hostport string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, hostport)
}

// SetDelay makes every call to hostport wait d before being handled.
func (t *InProcTransport) SetDelay(hostport string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays[hostport] = d
}

func (t *InProcTransport) RegisterPeer(ctx context.Context, hostport string, self Peer) error {
	h, err := t.lookup(ctx, hostport)
	if err != nil {
		return err
	}
	h.RegisterPeer(self)
	return nil
}

func (t *InProcTransport) ReceiveMessage(ctx context.Context, hostport string, msg Message) error {
	h, err := t.lookup(ctx, hostport)
	if err != nil {
		return err
	}
	h.OnReceive(msg.Clone())
	return nil
}

func (t *InProcTransport) KnownPeers(ctx context.Context, hostport string) ([]Peer, error) {
	h, err := t.lookup(ctx, hostport)
	if err != nil {
		return nil, err
	}
	return append([]Peer(nil), h.KnownPeers()...), nil
}

func (t *InProcTransport) lookup(ctx context.Context, hostport string) (Handler, error) {
	t.mu.RLock()
	delay := t.delays[hostport]
	t.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	h, ok := t.handlers[hostport]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, hostport)
	}
	return h, nil
}
