// Package discovery publishes peer addresses in etcd so new peers can find
// bootstrap contacts without being told one on the command line.
// Keys are "<prefix>/<peer id>" and values are "host:port".
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lancscode/chatter/pkg/gossip"
)

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterPeer puts p under prefix with a lease of ttl seconds and keeps the
// lease alive until the returned cancel is called.
func RegisterPeer(ctx context.Context, cli *clientv3.Client, prefix string, p gossip.Peer, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, peerKey(prefix, p.ID), p.HostPort(), clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("put peer: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// ListPeers returns every peer currently registered under prefix.
func ListPeers(ctx context.Context, cli *clientv3.Client, prefix string) ([]gossip.Peer, error) {
	resp, err := cli.Get(ctx, prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return peersFromKVs(prefix, resp.Kvs), nil
}

func peersFromKVs(prefix string, kvs []*mvccpb.KeyValue) []gossip.Peer {
	peers := make([]gossip.Peer, 0, len(kvs))
	for _, kv := range kvs {
		if p, ok := parseEntry(prefix, kv.Key, kv.Value); ok {
			peers = append(peers, p)
		}
	}
	return peers
}

// WatchPeers calls fn for every peer put under prefix until ctx is done.
// A put is what a peer does when it (re)starts, so callers treat it as a
// registration.
func WatchPeers(ctx context.Context, cli *clientv3.Client, prefix string, fn func(gossip.Peer)) {
	wch := cli.Watch(ctx, prefix+"/", clientv3.WithPrefix())
	go func() {
		for resp := range wch {
			handleWatchResponse(prefix, resp, fn)
		}
	}()
}

func handleWatchResponse(prefix string, resp clientv3.WatchResponse, fn func(gossip.Peer)) {
	for _, ev := range resp.Events {
		if ev.Type != mvccpb.PUT {
			continue
		}
		if p, ok := parseEntry(prefix, ev.Kv.Key, ev.Kv.Value); ok {
			fn(p)
		}
	}
}

func peerKey(prefix string, id gossip.PeerID) string {
	return strings.TrimSuffix(prefix, "/") + "/" + string(id)
}

func parseEntry(prefix string, key, value []byte) (gossip.Peer, bool) {
	id, ok := strings.CutPrefix(string(key), strings.TrimSuffix(prefix, "/")+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return gossip.Peer{}, false
	}
	host, portStr, err := net.SplitHostPort(string(value))
	if err != nil {
		return gossip.Peer{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return gossip.Peer{}, false
	}
	return gossip.Peer{ID: gossip.PeerID(id), Address: host, Port: port, Online: true}, true
}
