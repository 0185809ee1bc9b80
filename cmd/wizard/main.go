// Command wizard turns a plain-language request into a workflow graph,
// either locally or against a wizard server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wizard",
		Short:         "Natural-language workflow wizard",
		Long:          "Wizard compiles a request such as \"Have 57 chefs rate a recipe\" into a workflow graph of generated actors.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("server", "", "Wizard server URL; empty runs everything in-process")
	flags.String("api-key", os.Getenv("WIZARD_API_KEY"), "API key for the wizard server")
	flags.Duration("timeout", 0, "Per-request timeout against the server (0 keeps the client default)")
	flags.String("provider", "auto", "Local generation provider: auto, template or anthropic")
	flags.Bool("template-fallback", false, "Retry failed local batches on the template generator")
	flags.String("vocabulary", "", "Local intent vocabulary YAML file")
	flags.String("templates", "", "Local skeleton templates YAML file")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")

	root.AddCommand(newParseCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newTUICommand())
	root.AddCommand(newRunsCommand())
	return root
}
