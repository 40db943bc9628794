// Command voiceagent is the telephony worker process: it connects to
// the control plane, accepts startJob signals, and runs one
// pkg/session.Session per call. Grounded on cmd/cli/main.go's cobra
// root command wiring (godotenv + persistent flags + subcommands),
// generalized from a pipeline-testing tool to the production worker
// entrypoint spec.md §6 describes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voiceagent/runtime/cmd/voiceagent/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "voiceagent",
	Short: "Voice Agent Runtime worker",
	Long: `voiceagent runs the telephony voice-agent worker: it holds a
control-plane connection open, spawns one conversation session per
inbound or outbound call, and reports call outcomes back.`,
}

func init() {
	rootCmd.AddCommand(cmd.NewRunCmd())
	rootCmd.AddCommand(cmd.NewDialCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
