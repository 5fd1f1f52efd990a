package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/urfave/cli/v3"
)

var ErrInvalidFlow = errors.New("flow document is invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a flow document without saving it",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("%w: a file is required", ErrInvalidFlow)
			}

			logger := slog.With(
				"module", "chatflow",
				"action", "validate",
			)

			flow, err := decodeDocument(path)
			if err != nil {
				return err
			}

			errs, err := checkDocument(flow, cmd.NewRegistry(logger))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "Flow: %s (%d nodes, %d edges)\n", flow.Name, len(flow.Nodes), len(flow.Edges))

			if len(errs) == 0 {
				_, _ = fmt.Fprintln(os.Stdout, "✓ valid")

				return nil
			}

			for _, fieldErr := range errs {
				_, _ = fmt.Fprintf(os.Stdout, "✗ %s: %s\n", fieldErr.Field, fieldErr.Reason)
			}

			return fmt.Errorf("%w: %d problems", ErrInvalidFlow, len(errs))
		},
	}
}
