// Package main provides the chatflow command line tool for flow documents.
package main

import (
	"context"
	"os"

	"github.com/dukex/chatflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	log.Setup(os.Getenv("LOG_LEVEL"))

	cmd := &cli.Command{
		Name:                  "chatflow",
		Usage:                 "Validate and import chatbot flow documents",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewImportCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
