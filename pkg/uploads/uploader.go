package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnknownKind         = errors.New("unknown media kind")
	ErrTooLarge            = errors.New("file exceeds the upload size limit")
	ErrExtensionNotAllowed = errors.New("file extension is not allowed")
	ErrEmptyFile           = errors.New("file is empty")
)

// Upload is a stored file.
type Upload struct {
	URL  string    `json:"url"`
	Name string    `json:"name"`
	Kind MediaKind `json:"kind"`
	Size int64     `json:"size"`
}

// Uploader checks an upload against the current settings and stores it.
type Uploader struct {
	settings SettingsProvider
	store    Store
	logger   *slog.Logger
}

func NewUploader(settings SettingsProvider, store Store, logger *slog.Logger) *Uploader {
	return &Uploader{
		settings: settings,
		store:    store,
		logger:   logger.With("module", "uploader"),
	}
}

// Upload stores content under a generated name keeping the original
// extension. size is the declared size; content beyond the limit is
// rejected even when size understates it.
func (u *Uploader) Upload(ctx context.Context, kind MediaKind, filename string, size int64, content io.Reader) (*Upload, error) {
	settings, err := u.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload settings: %w", err)
	}

	limits, ok := settings[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	extension := strings.ToLower(filepath.Ext(filename))
	if !limits.allows(extension) {
		return nil, fmt.Errorf("%w: %q for %s, allowed: %s",
			ErrExtensionNotAllowed, extension, kind, strings.Join(limits.Extensions, ", "))
	}

	if size == 0 {
		return nil, ErrEmptyFile
	}

	if size > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, limits.MaxBytes)
	}

	limited := &limitedReader{reader: content, remaining: limits.MaxBytes}
	name := fmt.Sprintf("%s/%s%s", kind, uuid.New().String(), extension)

	url, err := u.store.Put(ctx, name, limited)
	if err != nil {
		if limited.exceeded {
			return nil, fmt.Errorf("%w: limit %d", ErrTooLarge, limits.MaxBytes)
		}

		return nil, err
	}

	u.logger.InfoContext(ctx, "Stored upload", "kind", kind, "name", name, "size", size)

	return &Upload{URL: url, Name: filename, Kind: kind, Size: size}, nil
}

// limitedReader fails once more than remaining bytes are read.
type limitedReader struct {
	reader    io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.reader.Read(p)
	l.remaining -= int64(n)

	if l.remaining < 0 {
		l.exceeded = true

		return n, ErrTooLarge
	}

	return n, err
}
