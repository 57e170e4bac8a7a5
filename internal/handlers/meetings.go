package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/owlnotes/meeting-pipeline/internal/meetings"
)

// MeetingsHandler records meeting starts and serves meeting records.
type MeetingsHandler struct {
	store *meetings.Store
}

// NewMeetingsHandler creates a meetings handler.
func NewMeetingsHandler(store *meetings.Store) *MeetingsHandler {
	return &MeetingsHandler{store: store}
}

type startRequest struct {
	MeetingCode  string    `json:"meetingCode"`
	Title        string    `json:"title"`
	HostName     string    `json:"hostName"`
	HostEmail    string    `json:"hostEmail"`
	Participants []string  `json:"participants"`
	StartTime    time.Time `json:"startTime"`
}

// Start processes POST /meetings/start. It upserts the meeting by code and
// returns the canonical meeting id, which clients should carry in their
// meeting metadata from then on so the finalize path never has to fall back
// to code-based lookup.
func (h *MeetingsHandler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
			"code":  "ERR_BAD_BODY",
		})
	}
	if req.MeetingCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "meetingCode required",
			"code":  "ERR_NO_CODE",
		})
	}

	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}

	meeting, err := h.store.Start(c.Context(), meetings.Meeting{
		MeetingCode:  req.MeetingCode,
		Title:        req.Title,
		HostName:     req.HostName,
		HostEmail:    req.HostEmail,
		Participants: req.Participants,
		StartTime:    startTime,
	})
	if err != nil {
		log.Printf("MeetingsHandler: start %s: %v", req.MeetingCode, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save meeting",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "meeting_id": meeting.ID, "meeting": meeting})
}

// Get processes GET /meetings/:id.
func (h *MeetingsHandler) Get(c *fiber.Ctx) error {
	meeting, err := h.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, meetings.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "meeting not found",
				"code":  "ERR_NOT_FOUND",
			})
		}
		log.Printf("MeetingsHandler: get %s: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load meeting",
			"code":  "ERR_LOAD_FAILED",
		})
	}
	return c.JSON(meeting)
}
