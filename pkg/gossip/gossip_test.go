package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPeer is a Gossiper bound to an InProcTransport that records what it
// renders and what is delivered to it.
type testPeer struct {
	*Gossiper

	mu       sync.Mutex
	rendered []Message
	inbound  []Message
}

func (p *testPeer) OnReceive(m Message) {
	p.mu.Lock()
	p.inbound = append(p.inbound, m.Clone())
	p.mu.Unlock()
	p.Gossiper.OnReceive(m)
}

func (p *testPeer) renderedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rendered)
}

func (p *testPeer) inboundCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inbound)
}

func newTestPeer(t *testing.T, tr *InProcTransport, id string, port int) *testPeer {
	t.Helper()
	p := &testPeer{}
	self := Peer{ID: PeerID(id), Address: "localhost", Port: port}
	p.Gossiper = New(Config{
		Self: self,
		OnDeliver: func(m Message) {
			p.mu.Lock()
			p.rendered = append(p.rendered, m)
			p.mu.Unlock()
		},
	}, tr)
	tr.Bind(self.HostPort(), p)
	return p
}

func drain(t *testing.T, peers ...*testPeer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range peers {
		require.NoError(t, p.Close(ctx))
	}
}

func TestJoinAndOriginate(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	bob := newTestPeer(t, tr, "bob", 9002)

	require.NoError(t, bob.Join(context.Background(), "localhost", 9001))

	_, ok := alice.Directory().Get("bob")
	require.True(t, ok, "alice should know bob after join")
	_, ok = bob.Directory().Get("alice")
	require.True(t, ok, "bob should know alice after join")

	msg, err := alice.Originate("hello")
	require.NoError(t, err)
	assert.Equal(t, PeerID("alice"), msg.SenderID)
	assert.True(t, msg.SeenBy.Has("alice"))

	drain(t, alice, bob)

	require.Equal(t, 1, bob.inboundCount())
	got := bob.inbound[0]
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, PeerID("alice"), got.SenderID)
	assert.Equal(t, "hello", got.Content)
	assert.True(t, bob.Deduplicator().HasSeen(msg.ID))
	assert.Equal(t, 1, bob.renderedCount())
	assert.True(t, bob.rendered[0].SeenBy.Has("bob"))

	assert.Equal(t, 0, alice.inboundCount(), "bob must not send alice's message back")
	assert.Equal(t, 1, alice.renderedCount())
}

func TestOriginateRejectsBlankContent(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	bob := newTestPeer(t, tr, "bob", 9002)
	alice.RegisterPeer(bob.Self())

	for _, content := range []string{"", "   ", "\t\n"} {
		_, err := alice.Originate(content)
		require.ErrorIs(t, err, ErrInvalidInput)
	}

	drain(t, alice, bob)
	assert.Zero(t, alice.Deduplicator().Len())
	assert.Zero(t, alice.renderedCount())
	assert.Zero(t, bob.inboundCount())
}

func TestOnReceiveIsIdempotent(t *testing.T) {
	tr := NewInProcTransport()
	bob := newTestPeer(t, tr, "bob", 9002)
	carol := newTestPeer(t, tr, "carol", 9003)
	bob.RegisterPeer(carol.Self())

	msg := NewMessage("alice", "hi")
	bob.OnReceive(msg.Clone())
	bob.OnReceive(msg.Clone())

	drain(t, bob, carol)
	assert.Equal(t, 1, bob.renderedCount())
	assert.Equal(t, 1, carol.inboundCount(), "one fan-out pass only")
}

func TestOnReceiveConcurrentDuplicates(t *testing.T) {
	tr := NewInProcTransport()
	bob := newTestPeer(t, tr, "bob", 9002)
	carol := newTestPeer(t, tr, "carol", 9003)
	bob.RegisterPeer(carol.Self())

	msg := NewMessage("alice", "hi")
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bob.OnReceive(msg.Clone())
		}()
	}
	wg.Wait()

	drain(t, bob, carol)
	assert.Equal(t, 1, bob.renderedCount())
	assert.Equal(t, 1, carol.inboundCount())
	assert.Equal(t, 1, carol.renderedCount())
}

func TestOnReceiveFromSelfIsNoop(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	bob := newTestPeer(t, tr, "bob", 9002)
	alice.RegisterPeer(bob.Self())

	echo := NewMessage("alice", "echo")
	alice.OnReceive(echo)

	drain(t, alice, bob)
	assert.Zero(t, alice.renderedCount())
	assert.False(t, alice.Deduplicator().HasSeen(echo.ID))
	assert.Zero(t, bob.inboundCount())
}

func TestOnReceiveSkipsPeersInSeenBy(t *testing.T) {
	tr := NewInProcTransport()
	bob := newTestPeer(t, tr, "bob", 9002)
	carol := newTestPeer(t, tr, "carol", 9003)
	dave := newTestPeer(t, tr, "dave", 9004)
	bob.RegisterPeer(carol.Self())
	bob.RegisterPeer(dave.Self())

	msg := NewMessage("alice", "hi")
	msg.SeenBy.Add("carol")
	bob.OnReceive(msg)

	drain(t, bob, carol, dave)
	assert.Zero(t, carol.inboundCount())
	require.Equal(t, 1, dave.inboundCount())
	assert.ElementsMatch(t, []PeerID{"alice", "bob", "carol", "dave"}, dave.rendered[0].SeenBy.Sorted())
}

func TestUnreachablePeerMarkedOffline(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	bob := newTestPeer(t, tr, "bob", 9002)
	dave := newTestPeer(t, tr, "dave", 9004)

	alice.RegisterPeer(bob.Self())
	alice.RegisterPeer(Peer{ID: "carol", Address: "localhost", Port: 9003})
	alice.RegisterPeer(dave.Self())

	_, err := alice.Originate("anyone there?")
	require.NoError(t, err)
	drain(t, alice)

	carol, ok := alice.Directory().Get("carol")
	require.True(t, ok)
	assert.False(t, carol.Online)
	assert.Equal(t, 1, bob.inboundCount())
	assert.Equal(t, 1, dave.inboundCount())
	drain(t, bob, dave)
}

func TestOfflinePeerSkippedUntilReRegistered(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	alice.RegisterPeer(Peer{ID: "carol", Address: "localhost", Port: 9003})

	_, err := alice.Originate("first")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, _ := alice.Directory().Get("carol")
		return !p.Online
	}, time.Second, 5*time.Millisecond)

	carol := newTestPeer(t, tr, "carol", 9003)
	_, err = alice.Originate("second")
	require.NoError(t, err)
	drain(t, alice)
	assert.Zero(t, carol.inboundCount(), "offline peers get no further attempts")

	require.NoError(t, carol.Join(context.Background(), "localhost", 9001))
	p, _ := alice.Directory().Get("carol")
	require.True(t, p.Online, "registration brings a peer back online")
	drain(t, carol)
}

func TestSlowPeerDoesNotBlockOthers(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	slow := newTestPeer(t, tr, "slow", 9002)
	fast := newTestPeer(t, tr, "fast", 9003)
	alice.RegisterPeer(slow.Self())
	alice.RegisterPeer(fast.Self())
	tr.SetDelay(slow.Self().HostPort(), 2*time.Second)

	start := time.Now()
	_, err := alice.Originate("race")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond, "Originate must not wait for deliveries")

	require.Eventually(t, func() bool { return fast.inboundCount() == 1 }, 500*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, slow.inboundCount())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, alice.Close(ctx), context.DeadlineExceeded, "close abandons in-flight deliveries")
}

func TestFloodTerminatesOnCyclicGraph(t *testing.T) {
	tr := NewInProcTransport()
	const n = 8
	peers := make([]*testPeer, n)
	for i := range n {
		peers[i] = newTestPeer(t, tr, fmt.Sprintf("p%d", i), 9100+i)
	}
	// ring plus chords: every peer knows i±1 and i+3
	edges := 0
	for i, p := range peers {
		for _, j := range []int{(i + 1) % n, (i + n - 1) % n, (i + 3) % n} {
			if p.Directory().Register(peers[j].Self().ID, "localhost", peers[j].Self().Port) {
				edges++
			}
		}
	}

	msg, err := peers[0].Originate("flood")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, p := range peers {
			if p.renderedCount() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	drain(t, peers...)

	total := 0
	for _, p := range peers {
		assert.Equal(t, 1, p.renderedCount(), "peer %s", p.Self().ID)
		assert.True(t, p.Deduplicator().HasSeen(msg.ID))
		total += p.inboundCount()
	}
	assert.LessOrEqual(t, total, edges, "each directed edge carries the message at most once")
}

func TestJoinFailureLeavesStateAlone(t *testing.T) {
	tr := NewInProcTransport()
	bob := newTestPeer(t, tr, "bob", 9002)
	bob.RegisterPeer(Peer{ID: "carol", Address: "localhost", Port: 9003})

	err := bob.Join(context.Background(), "localhost", 9001)
	require.ErrorIs(t, err, ErrConnectFailed)
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 1, bob.Directory().Len())
	drain(t, bob)
}

func TestJoinLearnsTransitively(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	carol := newTestPeer(t, tr, "carol", 9003)
	require.NoError(t, carol.Join(context.Background(), "localhost", 9001))

	bob := newTestPeer(t, tr, "bob", 9002)
	require.NoError(t, bob.Join(context.Background(), "localhost", 9001))

	assert.Equal(t, 2, bob.Directory().Len())
	_, ok := bob.Directory().Get("carol")
	assert.True(t, ok, "bob learns carol through alice")
	_, ok = carol.Directory().Get("bob")
	assert.False(t, ok, "membership itself is not gossiped")
	drain(t, alice, bob, carol)
}

func TestOriginateAfterClose(t *testing.T) {
	tr := NewInProcTransport()
	alice := newTestPeer(t, tr, "alice", 9001)
	drain(t, alice)

	_, err := alice.Originate("too late")
	require.ErrorIs(t, err, ErrClosed)
}

func TestMessageWireForm(t *testing.T) {
	msg := NewMessage("carol", "hi")
	msg.SeenBy.Add("alice")

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{"alice", "carol"}, raw["seen_by"])

	var back Message
	require.NoError(t, json.Unmarshal([]byte(`{"message_id":"m1","sender_id":"carol","content":"x"}`), &back))
	back.normalize()
	assert.True(t, back.SeenBy.Has("carol"))
}
