package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Validate a flow document and save it as a new flow",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "owner",
				Usage:    "Owner of the imported flow",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "activate",
				Usage: "Activate the flow after importing it",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("%w: a file is required", ErrInvalidFlow)
			}

			logger := slog.With(
				"module", "chatflow",
				"action", "import",
			)

			flow, err := decodeDocument(path)
			if err != nil {
				return err
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			flowService := services.NewFlow(persistence, cmd.NewRegistry(logger), logger)

			imported, err := importFlow(ctx, flowService, flow, command.String("owner"), command.Bool("activate"))
			if err != nil {
				for _, fieldErr := range services.ValidationErrors(err) {
					_, _ = fmt.Fprintf(os.Stdout, "✗ %s: %s\n", fieldErr.Field, fieldErr.Reason)
				}

				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "Imported flow %s (%s), active: %t\n", imported.Name, imported.ID, imported.Active)

			return nil
		},
	}
}

// importFlow creates a flow from the document's start node, replaces its
// graph with the document's and optionally activates it.
func importFlow(ctx context.Context, flowService *services.Flow, document *models.Flow, owner string, activate bool) (*models.Flow, error) {
	start, ok := document.StartNode()
	if !ok {
		return nil, fmt.Errorf("%w: the document has no start node", ErrInvalidFlow)
	}

	data, ok := start.Data.(*models.StartData)
	if !ok {
		return nil, fmt.Errorf("%w: start node %s carries %s data", ErrInvalidFlow, start.ID, start.Data.NodeType())
	}

	created, err := flowService.Create(ctx, services.CreateFlowRequest{
		Owner:          owner,
		Name:           data.FlowName,
		TriggerKeyword: data.TriggerKeyword,
		MatchType:      data.MatchType,
	})
	if err != nil {
		return nil, err
	}

	imported, err := flowService.ReplaceGraph(ctx, created.ID, document.Nodes, document.Edges)
	if err != nil {
		return nil, err
	}

	if !activate {
		return imported, nil
	}

	return flowService.Activate(ctx, imported.ID)
}
