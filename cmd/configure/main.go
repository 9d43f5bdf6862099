package main

import (
	"fmt"
	"os"

	"github.com/benvon/process-rest/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "process-rest-configure",
		Short:         "Configuration tool for the process-rest service",
		Long:          "CLI tool for managing the CORS policy and calling upstream services through the relay client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRelayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
