package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/memberfox/memberfox/internal/pkg/mailqueue"
	"github.com/memberfox/memberfox/internal/pkg/metrics/counter"
)

// QueueController handles mail-queue admin HTTP requests
type QueueController struct {
	queue *mailqueue.Queue
}

// NewQueueController creates a new queue controller
func NewQueueController(queue *mailqueue.Queue) *QueueController {
	return &QueueController{queue: queue}
}

// HandleStats returns queue counts plus lifetime delivery counters
func (qc *QueueController) HandleStats(c *fiber.Ctx) error {
	stats, err := qc.queue.GetStats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to read queue stats: " + err.Error(),
		})
	}
	totals, err := counter.GetTotals()
	if err != nil {
		// Counters are best-effort; stats still go out.
		totals = counter.Totals{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"queue":    stats,
		"delivery": totals,
	})
}

// HandleProcess runs one queue pass synchronously ("process now")
func (qc *QueueController) HandleProcess(c *fiber.Ctx) error {
	stats, err := qc.queue.ProcessQueue(c.Context())
	if err != nil {
		if errors.Is(err, mailqueue.ErrCorruptQueue) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "corrupt_queue", "message": "Queue data is not readable; clear the queue to recover",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Queue pass failed: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

// HandleRetryFailed revives failed entries that still have attempts left
func (qc *QueueController) HandleRetryFailed(c *fiber.Ctx) error {
	count, err := qc.queue.RetryFailed()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Retry reset failed: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reset": count})
}

// HandleResetCounters clears the lifetime delivery counters
func (qc *QueueController) HandleResetCounters(c *fiber.Ctx) error {
	if err := counter.Reset(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to reset counters: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reset": true})
}

// HandleClear empties the queue. Destructive.
func (qc *QueueController) HandleClear(c *fiber.Ctx) error {
	if err := qc.queue.ClearQueue(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error", "message": "Failed to clear queue: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"cleared": true})
}
