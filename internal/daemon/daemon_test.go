package daemon

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancscode/chatter/internal/config"
	"github.com/lancscode/chatter/pkg/gossip"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, id string, contacts ...string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Peer.ID = id
	cfg.Peer.Host = "127.0.0.1"
	cfg.Peer.Advertise = "127.0.0.1"
	cfg.Peer.Port = freePort(t)
	cfg.Bootstrap.Contacts = contacts
	cfg.Gossip.DeliveryTimeout = "1s"
	return cfg
}

func startDaemon(t *testing.T, cfg config.Config, out io.Writer) *Daemon {
	t.Helper()
	d, err := NewWithConfig(cfg, nil, out)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	return d
}

func closeDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestTwoPeersChat(t *testing.T) {
	var aliceOut, bobOut bytes.Buffer
	alice := startDaemon(t, testConfig(t, "alice"), &aliceOut)

	aliceAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(alice.Config.Peer.Port))
	bob := startDaemon(t, testConfig(t, "bob", aliceAddr), &bobOut)
	require.NoError(t, bob.Bootstrap(context.Background()))

	_, ok := alice.Gossiper.Directory().Get("bob")
	require.True(t, ok)

	msg, err := alice.Gossiper.Originate("hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := bob.History.Get(msg.ID)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	closeDaemon(t, bob)
	closeDaemon(t, alice)
	assert.Equal(t, "alice: hello\n", bobOut.String())
	assert.Equal(t, "alice: hello\n", aliceOut.String())
}

func TestBootstrapReportsUnreachableContact(t *testing.T) {
	cfg := testConfig(t, "bob", net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t))))
	bob := startDaemon(t, cfg, nil)
	defer closeDaemon(t, bob)

	err := bob.Bootstrap(context.Background())
	require.ErrorIs(t, err, gossip.ErrConnectFailed)
	assert.Zero(t, bob.Gossiper.Directory().Len())
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	cfg := testConfig(t, "alice")
	first := startDaemon(t, cfg, nil)
	defer closeDaemon(t, first)

	second, err := NewWithConfig(cfg, nil, nil)
	require.NoError(t, err)
	require.Error(t, second.Start())
}

func TestNewWithConfigValidates(t *testing.T) {
	_, err := NewWithConfig(config.DefaultConfig(), nil, nil)
	require.Error(t, err)
}
