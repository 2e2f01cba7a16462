// Command serverharness runs scripted checks against a Minecraft Forge server.
//
// It installs the server, provisions mods and configs, starts it, waits for
// the ready marker, runs the configured console steps, stops the server and
// exits with a code describing the outcome.
package main

import "serverharness/internal/cli"

func main() {
	cli.Execute()
}
