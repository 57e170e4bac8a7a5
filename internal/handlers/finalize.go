package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/owlnotes/meeting-pipeline/internal/jobs"
	"github.com/owlnotes/meeting-pipeline/internal/media"
	"github.com/owlnotes/meeting-pipeline/internal/storage"
)

// FinalizeHandler turns a finished recording session into a pending job:
// it lists the session's chunks in the store, orders them numerically and
// enqueues one job referencing them.
type FinalizeHandler struct {
	blobs storage.BlobStore
	queue *jobs.Store
}

// NewFinalizeHandler creates a finalize handler.
func NewFinalizeHandler(blobs storage.BlobStore, queue *jobs.Store) *FinalizeHandler {
	return &FinalizeHandler{blobs: blobs, queue: queue}
}

type finalizeRequest struct {
	SessionID   string          `json:"sessionId"`
	MeetingMeta json.RawMessage `json:"meetingMeta"`
}

// Handle processes POST /finalize-upload.
func (h *FinalizeHandler) Handle(c *fiber.Ctx) error {
	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
			"code":  "ERR_BAD_BODY",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId required",
			"code":  "ERR_NO_SESSION",
		})
	}

	prefix := "recordings/" + req.SessionID + "/"
	keys, err := h.blobs.List(c.Context(), prefix)
	if err != nil {
		log.Printf("FinalizeHandler: list %s: %v", prefix, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list chunks",
			"code":  "ERR_LIST_FAILED",
		})
	}

	var chunkKeys []string
	for _, key := range keys {
		if strings.HasSuffix(key, ".webm") {
			chunkKeys = append(chunkKeys, key)
		}
	}
	chunkKeys = media.SortChunkKeys(chunkKeys)

	if len(chunkKeys) == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "no chunks found for session " + req.SessionID,
			"code":  "ERR_NO_CHUNKS",
		})
	}

	job, err := h.queue.Enqueue(c.Context(), req.SessionID, chunkKeys, req.MeetingMeta)
	if err != nil {
		if errors.Is(err, jobs.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "ERR_VALIDATION",
			})
		}
		log.Printf("FinalizeHandler: enqueue session %s: %v", req.SessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to enqueue job",
			"code":  "ERR_ENQUEUE_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "job": job})
}
