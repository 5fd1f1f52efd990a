package web

import (
	"path/filepath"

	"github.com/dukex/chatflow/pkg/uploads"
	"github.com/gofiber/fiber/v3"
)

// Upload stores the multipart "file" field for the media kind in the path.
func (h *APIHandlers) Upload(c fiber.Ctx) error {
	if h.uploader == nil {
		return notFound(c, "uploads_disabled", "uploads are not configured")
	}

	kind, err := uploads.ParseKind(c.Params("kind"))
	if err != nil {
		return handleUploadError(c, err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Multipart field \"file\" is required")
	}

	file, err := header.Open()
	if err != nil {
		return internalError(c, err)
	}
	defer file.Close()

	upload, err := h.uploader.Upload(c.Context(), kind, header.Filename, header.Size, file)
	if err != nil {
		return handleUploadError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(upload)
}

// ServeMedia serves stored uploads. Paths cannot leave the media root.
func (h *APIHandlers) ServeMedia(c fiber.Ctx) error {
	if h.mediaRoot == "" {
		return notFound(c, "uploads_disabled", "uploads are not configured")
	}

	path := filepath.Join(h.mediaRoot, filepath.Clean("/"+c.Params("*")))

	if err := c.SendFile(path); err != nil {
		return notFound(c, "media_not_found", "media not found")
	}

	return nil
}
