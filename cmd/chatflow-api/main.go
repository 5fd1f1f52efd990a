package main

import (
	"context"
	"os"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	// A missing .env file is fine; flags and the environment still apply.
	_ = godotenv.Load()

	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "chatflow-api",
		Usage:                 "Create and manage chatbot flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "media-root",
				Usage:   "Directory uploaded media is stored in",
				Value:   "./media",
				Sources: cli.EnvVars("MEDIA_ROOT"),
			},
			&cli.StringFlag{
				Name:    "media-base-url",
				Usage:   "Public URL the media directory is served from",
				Value:   "http://localhost:9091/media",
				Sources: cli.EnvVars("MEDIA_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "upload-settings",
				Usage:   "JSON file with upload limits per media kind",
				Value:   "./upload-settings.json",
				Sources: cli.EnvVars("UPLOAD_SETTINGS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to cache upload settings",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Chatflow API")

			registry := cmd.NewRegistry(logger)
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "chatflow-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			uploader, closeUploads := cmd.NewUploader(
				command.String("media-root"),
				command.String("media-base-url"),
				command.String("upload-settings"),
				command.String("redis-url"),
				logger,
			)
			defer func() {
				if err := closeUploads(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close upload settings cache", "error", err)
				}
			}()

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				uploader,
				command.String("media-root"),
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
