// Command bench floods messages through an in-process network of peers and
// reports how long full propagation takes and how many deliveries it costs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lancscode/chatter/pkg/gossip"
)

// counting wraps a peer so the bench can see every inbound delivery.
type counting struct {
	*gossip.Gossiper
	inbound *atomic.Int64
}

func (c counting) OnReceive(m gossip.Message) {
	c.inbound.Add(1)
	c.Gossiper.OnReceive(m)
}

func main() {
	n := flag.Int("n", 50, "peers")
	degree := flag.Int("degree", 4, "random neighbours per peer (plus one ring link)")
	msgs := flag.Int("m", 100, "messages to originate")
	conc := flag.Int("c", 5, "max concurrent deliveries per peer")
	latency := flag.Duration("latency", 0, "per-delivery latency")
	flag.Parse()

	tr := gossip.NewInProcTransport()
	var inbound atomic.Int64

	var wg sync.WaitGroup
	peers := make([]*gossip.Gossiper, *n)
	for i := range peers {
		self := gossip.Peer{ID: gossip.PeerID("p" + strconv.Itoa(i)), Address: "bench", Port: 10000 + i}
		peers[i] = gossip.New(gossip.Config{
			Self:                    self,
			MaxConcurrentDeliveries: *conc,
			OnDeliver:               func(gossip.Message) { wg.Done() },
		}, tr)
		tr.Bind(self.HostPort(), counting{Gossiper: peers[i], inbound: &inbound})
		if *latency > 0 {
			tr.SetDelay(self.HostPort(), *latency)
		}
	}

	edges := 0
	for i, p := range peers {
		neighbours := []int{(i + 1) % *n}
		for range *degree {
			neighbours = append(neighbours, rand.Intn(*n))
		}
		for _, j := range neighbours {
			q := peers[j].Self()
			if p.Directory().Register(q.ID, q.Address, q.Port) {
				edges++
			}
		}
	}

	wg.Add(*n * *msgs)
	start := time.Now()
	for range *msgs {
		if _, err := peers[rand.Intn(*n)].Originate("bench"); err != nil {
			fmt.Fprintln(os.Stderr, "originate:", err)
			os.Exit(1)
		}
	}
	wg.Wait()
	dur := time.Since(start)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range peers {
		_ = p.Close(ctx)
	}

	total := inbound.Load()
	fmt.Printf("Flooded %d messages to %d peers (%d links) in %s\n", *msgs, *n, edges, dur)
	fmt.Printf("  deliveries: %d (%.1f per message, upper bound %d)\n", total, float64(total)/float64(*msgs), edges)
}
