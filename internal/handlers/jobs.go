package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/owlnotes/meeting-pipeline/internal/jobs"
)

// JobsHandler exposes job inspection and the single-shot poll trigger.
type JobsHandler struct {
	queue  *jobs.Store
	poller *jobs.Poller
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(queue *jobs.Store, poller *jobs.Poller) *JobsHandler {
	return &JobsHandler{queue: queue, poller: poller}
}

// Get processes GET /jobs/:id.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	job, err := h.queue.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "job not found",
				"code":  "ERR_NOT_FOUND",
			})
		}
		log.Printf("JobsHandler: get %s: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load job",
			"code":  "ERR_LOAD_FAILED",
		})
	}
	return c.JSON(job)
}

// List processes GET /jobs.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	list, err := h.queue.List(c.Context(), limit)
	if err != nil {
		log.Printf("JobsHandler: list: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list jobs",
			"code":  "ERR_LIST_FAILED",
		})
	}
	return c.JSON(fiber.Map{"jobs": list})
}

// Poll processes POST /jobs/poll: claim and run at most one job, then
// return. Designed for cron-style external schedulers.
func (h *JobsHandler) Poll(c *fiber.Ctx) error {
	claimed, err := h.poller.PollOnce(c.Context())
	if err != nil {
		log.Printf("JobsHandler: poll: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_POLL_FAILED",
		})
	}
	return c.JSON(fiber.Map{"claimed": claimed})
}
