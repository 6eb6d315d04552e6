// Command chatter runs a peer of the decentralized gossip chat.
package main

import "github.com/lancscode/chatter/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
