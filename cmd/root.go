package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/respkv/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "respkv",
	Short: "A key-value server speaking the Redis serialization protocol",
	Long: `respkv is an in-memory key-value server that speaks RESP2, so it can
be used with redis-cli and the usual Redis client libraries.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(CliCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
