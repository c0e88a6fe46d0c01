// Command speechflow is a minimal illustrative front-end: it builds one
// small fixed demonstration graph rather than the full expression-parser
// front-end that constructs an arbitrary graph from a textual description
// (out of scope here — see the "run" subcommand).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/speechflow/speechflow/logging"
)

var rootCmd = &cobra.Command{
	Use:   "speechflow",
	Short: "SpeechFlow graph runtime demonstration CLI",
	Long: `speechflow composes and runs a small fixed speech-processing graph:
a file source, the gap-filling reconciliation stage, an in-process wire-codec
round trip, and a file sink.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "error reading verbose flag: %v\n", err)
				return
			}
			if verbose {
				logging.SetLevel(slog.LevelDebug)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
