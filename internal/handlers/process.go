package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/owlnotes/meeting-pipeline/internal/jobs"
	"github.com/owlnotes/meeting-pipeline/internal/storage"
	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// ProcessHandler ingests a complete live-session recording in one request:
// labeled multipart tracks (one user_audio, any number of remote_audio) are
// stored under the session's key space and enqueued as a mixing job. The
// chunked upload-chunk/finalize-upload pair covers incremental capture; this
// covers clients that hold the whole recording until the meeting ends.
type ProcessHandler struct {
	blobs     storage.BlobStore
	queue     *jobs.Store
	maxSizeMB int
}

// NewProcessHandler creates a process handler.
func NewProcessHandler(blobs storage.BlobStore, queue *jobs.Store, maxSizeMB int) *ProcessHandler {
	return &ProcessHandler{blobs: blobs, queue: queue, maxSizeMB: maxSizeMB}
}

// trackKey builds the storage key for the n-th track of a label.
func trackKey(sessionID, label string, n int, filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".webm"
	}
	if n > 0 {
		return fmt.Sprintf("recordings/%s/%s-%d%s", sessionID, label, n+1, ext)
	}
	return fmt.Sprintf("recordings/%s/%s%s", sessionID, label, ext)
}

// Handle processes POST /process-recording.
func (h *ProcessHandler) Handle(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "multipart form required",
			"code":  "ERR_BAD_BODY",
		})
	}

	sessionID := c.FormValue("sessionId")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	userFiles := form.File[types.TrackUser]
	if len(userFiles) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": types.TrackUser + " track required",
			"code":  "ERR_NO_USER_TRACK",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	for _, files := range [][]*multipart.FileHeader{userFiles, form.File[types.TrackRemote]} {
		for _, file := range files {
			if file.Size > maxSize {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": fmt.Sprintf("track too large (max %dMB)", h.maxSizeMB),
					"code":  "ERR_FILE_TOO_LARGE",
				})
			}
		}
	}

	var keys []string
	store := func(label string, files []*multipart.FileHeader) error {
		for i, file := range files {
			src, err := file.Open()
			if err != nil {
				return fmt.Errorf("open %s track: %w", label, err)
			}
			key := trackKey(sessionID, label, i, file.Filename)
			err = h.blobs.Upload(c.Context(), key, src, file.Header.Get("Content-Type"))
			src.Close()
			if err != nil {
				return fmt.Errorf("store %s track: %w", label, err)
			}
			keys = append(keys, key)
		}
		return nil
	}

	if err := store(types.TrackUser, userFiles); err != nil {
		log.Printf("ProcessHandler: session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store tracks",
			"code":  "ERR_STORE_FAILED",
		})
	}
	if err := store(types.TrackRemote, form.File[types.TrackRemote]); err != nil {
		log.Printf("ProcessHandler: session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store tracks",
			"code":  "ERR_STORE_FAILED",
		})
	}

	meta := json.RawMessage(c.FormValue("meetingMeta"))
	job, err := h.queue.Enqueue(c.Context(), sessionID, keys, meta)
	if err != nil {
		log.Printf("ProcessHandler: enqueue session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to enqueue job",
			"code":  "ERR_ENQUEUE_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "session_id": sessionID, "job": job})
}
