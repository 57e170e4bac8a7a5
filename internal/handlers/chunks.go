package handlers

import (
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/owlnotes/meeting-pipeline/internal/storage"
)

// ChunkHandler accepts one recorded audio chunk per request and stores it
// under its session's key space. Re-uploading a chunk index overwrites the
// previous blob, so client retries are idempotent.
type ChunkHandler struct {
	blobs     storage.BlobStore
	maxSizeMB int
}

// NewChunkHandler creates a chunk upload handler.
func NewChunkHandler(blobs storage.BlobStore, maxSizeMB int) *ChunkHandler {
	return &ChunkHandler{blobs: blobs, maxSizeMB: maxSizeMB}
}

// ChunkKey builds the storage key for one chunk of a session.
func ChunkKey(sessionID string, index int) string {
	return fmt.Sprintf("recordings/%s/chunk-%d.webm", sessionID, index)
}

// Handle processes POST /upload-chunk.
func (h *ChunkHandler) Handle(c *fiber.Ctx) error {
	sessionID := c.FormValue("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId required",
			"code":  "ERR_NO_SESSION",
		})
	}

	index, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || index < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunkIndex must be a non-negative integer",
			"code":  "ERR_BAD_INDEX",
		})
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "audio file required",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("chunk too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	src, err := file.Open()
	if err != nil {
		log.Printf("ChunkHandler: open upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read upload",
			"code":  "ERR_READ_FAILED",
		})
	}
	defer src.Close()

	key := ChunkKey(sessionID, index)
	contentType := file.Header.Get("Content-Type")
	if err := h.blobs.Upload(c.Context(), key, src, contentType); err != nil {
		log.Printf("ChunkHandler: store chunk %s: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store chunk",
			"code":  "ERR_STORE_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "key": key})
}
