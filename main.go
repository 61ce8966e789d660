// Command procwatch canonicalizes inferred process instances and reconciles
// them into a persistent workflow store.
package main

import "procwatch/internal/cli"

func main() {
	cli.Execute()
}
