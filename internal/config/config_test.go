package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Peer.Port)
	assert.Equal(t, 5, cfg.Gossip.MaxConcurrentDeliveries)
	assert.Equal(t, 5*time.Second, cfg.DeliveryTimeout(time.Minute))

	missing, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, missing)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatter.toml")
	data := `
[peer]
id = "alice"
port = 9100

[bootstrap]
contacts = ["localhost:9001"]

[gossip]
delivery_timeout = "750ms"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("CHATTER_PORT", "9200")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Peer.ID)
	assert.Equal(t, 9200, cfg.Peer.Port, "env overrides file")
	assert.Equal(t, []string{"localhost:9001"}, cfg.Bootstrap.Contacts)
	assert.Equal(t, 750*time.Millisecond, cfg.DeliveryTimeout(0))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/chatter/peers", cfg.Bootstrap.EtcdPrefix, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[peer\nid = "), 0o600))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "id is required")

	cfg.Peer.ID = "alice"
	require.NoError(t, cfg.Validate())

	cfg.Peer.Port = 0
	require.Error(t, cfg.Validate())

	cfg.Peer.Port = 9001
	cfg.Gossip.DeliveryTimeout = "soon"
	require.Error(t, cfg.Validate())
}
