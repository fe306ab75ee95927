package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/order"
)

type ReportHandler struct {
	DB     *gorm.DB
	Orders *order.Service
}

func NewReportHandler(db *gorm.DB, orders *order.Service) *ReportHandler {
	return &ReportHandler{DB: db, Orders: orders}
}

type createReportReq struct {
	TargetType string   `json:"target_type"` // order / user
	TargetID   string   `json:"target_id"`
	Reason     string   `json:"reason"`
	Evidence   []string `json:"evidence"`
}

// Create files a dispute. Reporting an order freezes it in disputed until an
// admin resolves the case.
func (h *ReportHandler) Create(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createReportReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid target_id",
		})
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "reason is required",
		})
	}

	targetType := models.ReportTargetType(req.TargetType)
	if targetType != models.ReportTargetOrder && targetType != models.ReportTargetUser {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "target_type must be order or user",
		})
	}

	report := models.Report{
		ReporterID: uid,
		TargetType: targetType,
		TargetID:   targetID,
		Reason:     reason,
		Status:     models.ReportStatusPending,
	}
	if len(req.Evidence) > 0 {
		raw, _ := json.Marshal(req.Evidence)
		report.Evidence = raw
	}
	if err := h.DB.Create(&report).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to file report",
		})
	}

	// An order report also moves the order itself to disputed. A terminal or
	// already-disputed order keeps the report on record without a transition.
	if targetType == models.ReportTargetOrder {
		if _, terr := h.Orders.Transition(c.Context(), uid, targetID, models.OrderStatusDisputed,
			order.TransitionOpts{Reason: "report " + report.ID.String()}); terr != nil {
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"success": true,
				"message": "Report filed, order state unchanged",
				"data":    report,
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Report filed",
		"data":    report,
	})
}

func (h *ReportHandler) ListMine(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	var reports []models.Report
	if err := h.DB.Where("reporter_id = ?", uid).
		Order("created_at DESC").Limit(50).Find(&reports).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to load reports",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    reports,
	})
}
