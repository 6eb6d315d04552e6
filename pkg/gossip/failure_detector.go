package gossip

import (
	"go.uber.org/zap"

	"github.com/lancscode/chatter/internal/telemetry"
)

// deliveryFailed is the only failure detector a peer has: one failed
// delivery of any kind marks the target offline. There is no retry and no
// later liveness probe; the peer stays offline until it registers again.
// The failure never reaches the caller of Originate or OnReceive.
func (g *Gossiper) deliveryFailed(p Peer, msgID string, err error) {
	telemetry.Deliveries.WithLabelValues("failed").Inc()

	if g.dir.MarkOffline(p.ID) {
		g.log.Warn("peer seems offline",
			zap.String("remote", string(p.ID)),
			zap.String("addr", p.HostPort()),
			zap.String("message", msgID),
			zap.Error(err))
		g.updatePeerGauges()
		return
	}
	g.log.Debug("delivery failed", zap.String("remote", string(p.ID)), zap.Error(err))
}
