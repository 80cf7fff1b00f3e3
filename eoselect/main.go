// Command eoselect resolves collection hierarchies and selects coverages
// from an entity archive. Results are written to stdout as JSON lines.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nci/eoselect/utils"
)

var reSelectionMap = utils.CompileSelectionRegexMap()

type rootOptions struct {
	confPath string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "eoselect",
		Short: "Select coverages from collection hierarchies",
		Long: `
  eoselect expands collections into every collection they contain and
  selects the coverages matching dimension subsets, spatial filters and
  attribute expressions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.confPath, "conf", "/etc/eoselect/config.json", "Config file.")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose mode for more outputs.")

	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newSelectCmd(opts))
	root.AddCommand(newSampleCmd(opts))
	root.AddCommand(newCheckConfCmd(opts))
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
