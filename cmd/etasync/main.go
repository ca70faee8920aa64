// Command etasync mirrors e-invoices from the tax authority API into SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/etasync/internal/adapters/driving/cli"
)

// version is set via -ldflags at release time.
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetConfigLoader(loadConfig)
	cli.SetServiceFactory(buildServices)

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
