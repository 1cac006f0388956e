// Command swarmd runs a tracker, or seeds/downloads a file as a client,
// in a block-swarm peer-to-peer file distribution network.
package main

import "github.com/mccartykim/swarmd/cmd/swarmd/cmd"

func main() {
	cmd.Execute()
}
