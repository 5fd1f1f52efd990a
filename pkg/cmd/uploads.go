package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/uploads"
	redis "github.com/redis/go-redis/v9"
)

// NewUploader stores uploads under mediaRoot. Limits come from settingsPath
// and are cached in Redis when redisURL is set.
func NewUploader(mediaRoot, baseURL, settingsPath, redisURL string, logger *slog.Logger) (*uploads.Uploader, Closer) {
	var (
		settings uploads.SettingsProvider = uploads.FileSettings(settingsPath)
		closer                            = noopCloser
	)

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(fmt.Errorf("invalid Redis URL: %w", err))
		}

		client := redis.NewClient(opts)
		settings = uploads.NewCachedSettings(client, settings, 5*time.Minute, logger)
		closer = func(_ context.Context) error {
			return client.Close()
		}
	}

	return uploads.NewUploader(settings, uploads.NewDiskStore(mediaRoot, baseURL), logger), closer
}
