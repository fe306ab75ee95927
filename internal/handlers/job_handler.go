package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
)

type JobHandler struct {
	DB *gorm.DB
}

func NewJobHandler(db *gorm.DB) *JobHandler {
	return &JobHandler{DB: db}
}

type CreateJobReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Budget      int64  `json:"budget"`
}

func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	clientID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var client models.User
	if err := h.DB.First(&client, "id = ?", clientID).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if err := gate.Check(&client, gate.ActionPostJob); err != nil {
		return respondErr(c, err)
	}

	var req CreateJobReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	title := strings.TrimSpace(req.Title)
	errs := FieldErrors{}
	if title == "" {
		errs.Add("title", "Title is required")
	}
	if req.Budget <= 0 {
		errs.Add("budget", "Budget must be positive")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	job := models.Job{
		ClientID:    clientID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Budget:      req.Budget,
	}
	if err := h.DB.Create(&job).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to create job",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Job posted",
		"data":    job,
	})
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	var jobs []models.Job
	q := h.DB.Order("created_at DESC").Limit(50)
	if mine := c.Query("mine"); mine == "true" {
		uid, err := currentUserID(c)
		if err != nil {
			return err
		}
		q = q.Where("client_id = ?", uid)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to load jobs",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    jobs,
	})
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	var job models.Job
	if err := h.DB.Preload("Client").First(&job, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "job not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}
