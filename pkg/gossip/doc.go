// Package gossip implements flood-based chat dissemination and peer
// membership for chatter. Every peer both originates and relays messages;
// there is no broker. A peer keeps a Directory of the other peers it knows
// about and a Deduplicator of the message IDs it has already processed, and
// the Gossiper ties the two together with a Transport.
//
// Typical usage:
//
//	g := gossip.New(gossip.Config{Self: self}, transport)
//	defer g.Close(ctx)
//	_ = g.Join(ctx, "localhost", 9001)
//	msg, err := g.Originate("hello")
//
// Transport is the client half of the remote operations (registerPeer,
// receiveMessage, getKnownPeers); Handler is the server half and is
// implemented by *Gossiper. InProcTransport wires handlers together in
// memory for tests, pkg/node does it over HTTP.
package gossip
