// Command giralnet runs one role of the overlay network: directory,
// node, or proxy, selected by the subcommand invoked. config.toml's
// mode field is validated on load but does not select the role.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "giralnet",
		Short: "An onion-routing overlay network",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config.toml")

	root.AddCommand(newDirectoryCmd())
	root.AddCommand(newNodeCmd())
	root.AddCommand(newProxyCmd())
	root.AddCommand(newTLSSetupCmd())
	return root
}
