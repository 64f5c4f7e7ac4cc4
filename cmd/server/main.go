package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "coderunner",
	Short: "Coderunner - run untrusted code snippets in ephemeral pods",
	Long: `Coderunner executes short code snippets (python, node, shell) in a fresh,
resource-limited pod per request and returns the output.

Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")
	// Exposes --kubeconfig, registered on the go flag set by controller-runtime.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
