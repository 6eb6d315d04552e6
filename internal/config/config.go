// Package config loads the chatter peer configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything a peer needs at startup.
type Config struct {
	Peer      PeerConfig      `toml:"peer"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Gossip    GossipConfig    `toml:"gossip"`
	History   HistoryConfig   `toml:"history"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// PeerConfig identifies this peer and where it listens.
type PeerConfig struct {
	ID   string `toml:"id"`
	Host string `toml:"host"`
	// Advertise is the host other peers should dial; defaults to the
	// machine's hostname.
	Advertise string `toml:"advertise"`
	Port      int    `toml:"port"`
}

// BootstrapConfig lists how a peer finds its first contacts.
type BootstrapConfig struct {
	Contacts      []string `toml:"contacts"`
	EtcdEndpoints []string `toml:"etcd_endpoints"`
	EtcdPrefix    string   `toml:"etcd_prefix"`
	LeaseTTL      int64    `toml:"lease_ttl"`
	// Fanout is how many etcd-discovered peers to join through.
	Fanout int `toml:"fanout"`
}

type GossipConfig struct {
	MaxConcurrentDeliveries int    `toml:"max_concurrent_deliveries"`
	DeliveryTimeout         string `toml:"delivery_timeout"`
}

type HistoryConfig struct {
	CapacityBytes int `toml:"capacity_bytes"`
}

type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

func DefaultConfig() Config {
	return Config{
		Peer: PeerConfig{
			Host: "0.0.0.0",
			Port: 9001,
		},
		Bootstrap: BootstrapConfig{
			EtcdPrefix: "/chatter/peers",
			LeaseTTL:   10,
			Fanout:     2,
		},
		Gossip: GossipConfig{
			MaxConcurrentDeliveries: 5,
			DeliveryTimeout:         "5s",
		},
		History: HistoryConfig{
			CapacityBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults, then applies
// CHATTER_ID and CHATTER_PORT from the environment. An empty or missing
// path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("stat config: %w", err)
		}
	}

	if v := os.Getenv("CHATTER_ID"); v != "" {
		cfg.Peer.ID = v
	}
	if v := os.Getenv("CHATTER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Peer.Port = n
		}
	}
	return cfg, nil
}

// Validate reports the first setting that would keep a peer from starting.
func (c Config) Validate() error {
	if c.Peer.ID == "" {
		return errors.New("peer id is required")
	}
	if c.Peer.Port <= 0 || c.Peer.Port > 65535 {
		return fmt.Errorf("peer port %d out of range", c.Peer.Port)
	}
	if _, err := time.ParseDuration(c.Gossip.DeliveryTimeout); c.Gossip.DeliveryTimeout != "" && err != nil {
		return fmt.Errorf("gossip delivery_timeout: %w", err)
	}
	return nil
}

// DeliveryTimeout returns the parsed gossip.delivery_timeout, or fallback.
func (c Config) DeliveryTimeout(fallback time.Duration) time.Duration {
	if c.Gossip.DeliveryTimeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Gossip.DeliveryTimeout)
	if err != nil {
		return fallback
	}
	return d
}

// AdvertiseHost returns the host announced to other peers.
func (c Config) AdvertiseHost() string {
	if c.Peer.Advertise != "" {
		return c.Peer.Advertise
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
