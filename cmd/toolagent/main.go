package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFlag  string
	profileFlag string
	modelFlag   string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "toolagent",
	Short: "toolagent - MCP tool aggregator with a streaming agent",
	Long: `toolagent launches the configured MCP tool servers, keeps the tools named in
the allow-list and hands them to an agent backed by an OpenAI-compatible
endpoint (Ollama by default).

Without a subcommand it behaves like "toolagent run".`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verboseFlag)
	},
	RunE: runRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./toolagent.yaml or ~/.toolagent/toolagent.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Agent profile to use (e.g. github)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging on stderr")
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Prompt to send (default: agent.prompt from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
