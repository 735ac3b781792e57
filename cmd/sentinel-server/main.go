// Command sentinel-server runs the sentinel gRPC endpoint and its services.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel-server",
	Short: "Cloud resource inventory and policy scanning server",
	Long: `sentinel-server hosts the inventory, model, scanner, notifier, and
explain services behind a single gRPC endpoint.

Configuration is read from a YAML file, found through --config, the
SENTINEL_SERVER_CONFIG_PATH environment variable, or the default search
locations (/etc/sentinel, the working directory).`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
