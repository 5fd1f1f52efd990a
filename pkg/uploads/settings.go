// Package uploads turns media files uploaded from the editor into durable
// URLs that image, audio, video and file nodes can reference.
package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
)

// MediaKind is the node family an upload is meant for.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
	KindFile  MediaKind = "file"
)

// ParseKind accepts the kinds that have upload limits.
func ParseKind(raw string) (MediaKind, error) {
	kind := MediaKind(strings.ToLower(strings.TrimSpace(raw)))

	switch kind {
	case KindImage, KindAudio, KindVideo, KindFile:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Limits bound the uploads of one media kind.
type Limits struct {
	MaxBytes int64 `json:"max_bytes"`
	// Extensions are lower case and include the dot, e.g. ".png".
	Extensions []string `json:"extensions"`
}

func (l Limits) allows(extension string) bool {
	return slices.Contains(l.Extensions, strings.ToLower(extension))
}

// Settings holds the limits of every media kind.
type Settings map[MediaKind]Limits

// SettingsProvider supplies the upload limits currently configured by the admin.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings is a fixed SettingsProvider.
type StaticSettings Settings

func (s StaticSettings) Settings(_ context.Context) (Settings, error) {
	return Settings(s), nil
}

// FileSettings reads the limits from a JSON file on every call. Kinds the
// file does not mention keep their default limits; a missing file means
// defaults only.
type FileSettings string

func (f FileSettings) Settings(_ context.Context) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(string(f))
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read upload settings: %w", err)
	}

	var configured Settings
	if err := json.Unmarshal(data, &configured); err != nil {
		return nil, fmt.Errorf("failed to decode upload settings %s: %w", f, err)
	}

	for kind, limits := range configured {
		if _, err := ParseKind(string(kind)); err != nil {
			return nil, err
		}

		settings[kind] = limits
	}

	return settings, nil
}

const megabyte = 1 << 20

// DefaultSettings are the limits used when the admin configured none.
func DefaultSettings() Settings {
	return Settings{
		KindImage: {MaxBytes: 5 * megabyte, Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}},
		KindAudio: {MaxBytes: 16 * megabyte, Extensions: []string{".mp3", ".ogg", ".m4a", ".wav"}},
		KindVideo: {MaxBytes: 16 * megabyte, Extensions: []string{".mp4", ".3gp", ".mov"}},
		KindFile:  {MaxBytes: 100 * megabyte, Extensions: []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".txt", ".csv", ".zip"}},
	}
}
