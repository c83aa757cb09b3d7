// Command humam builds, simulates and analyzes down-scaled multi-area models
// of human cortex.
package main

import (
	"context"
	"os"

	"github.com/roach88/humam/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
