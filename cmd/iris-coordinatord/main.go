// Command iris-coordinatord is the coordinator's single-binary entrypoint.
package main

import "github.com/iris-network/coordinator/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
