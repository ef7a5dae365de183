package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"deploy-orchestrator-go/internal/cli"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cli.Execute(os.Args[1:], os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "deployctl: %v\n", err)
		os.Exit(1)
	}
}
