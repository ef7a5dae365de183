// Package cli defines deployctl, the offline companion to the orchestrator.
// It renders exactly what the service would apply without touching a cluster.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Execute builds the root command, runs it with args and writes results to out.
func Execute(args []string, out io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}

	rootCmd := newRootCommand(logger)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	return rootCmd.Execute()
}

func newRootCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "deployctl",
		Short:         "deployctl previews deploy-orchestrator output",
		Long:          "deployctl renders the manifests and namespace the deploy orchestrator would produce for a request file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newRenderCommand(logger),
		newNamespaceCommand(),
	)

	return cmd
}
