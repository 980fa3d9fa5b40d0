package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
)

// Reconciliation is the background side of the ledger that staff can
// inspect and trigger.
type Reconciliation interface {
	RunSweepOnce(ctx context.Context) (payments.SweepReport, error)
	Stats(ctx context.Context) (*jobqueue.Stats, error)
}

// AdminController serves the staff-only operations endpoints.
type AdminController struct {
	reconciliation Reconciliation
}

func NewAdminController(r Reconciliation) *AdminController {
	return &AdminController{reconciliation: r}
}

// HandleRunSweep runs one reconciliation sweep synchronously.
// POST /admin/reconciliation/run
func (ac *AdminController) HandleRunSweep(c *fiber.Ctx) error {
	report, err := ac.reconciliation.RunSweepOnce(c.UserContext())
	if errors.Is(err, jobqueue.ErrSweepRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "code": "SweepRunning", "message": err.Error()})
	}
	if err != nil {
		log.Errorf("[Admin] Manual reconciliation sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "reconciliation sweep failed"})
	}
	return c.JSON(report)
}

// HandleQueueStats reports the background job queue.
// GET /admin/jobs/stats
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	stats, err := ac.reconciliation.Stats(c.UserContext())
	if err != nil {
		log.Errorf("[Admin] Could not load queue stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "could not load queue stats"})
	}
	return c.JSON(stats)
}
