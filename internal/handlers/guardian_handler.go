package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/interlock"
	"github.com/juniorlance/juniorlance_be/internal/utils"
)

type GuardianHandler struct {
	DB        *gorm.DB
	Interlock *interlock.Service
}

func NewGuardianHandler(db *gorm.DB, il *interlock.Service) *GuardianHandler {
	return &GuardianHandler{DB: db, Interlock: il}
}

func (h *GuardianHandler) Status(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	var u models.User
	if err := h.DB.First(&u, "id = ?", uid).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "internal server error",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"guardian_locked": u.GuardianLocked,
			"source":          u.GuardianLockSrc,
		},
	})
}

func (h *GuardianHandler) Enable(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.Interlock.SetByOwner(c.Context(), uid); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Guardian mode enabled",
	})
}

type disableGuardianReq struct {
	Password string `json:"password"`
}

// Disable lifts guardian mode. Password re-entry is mandatory so a session
// that tripped the lock cannot silently undo it.
func (h *GuardianHandler) Disable(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req disableGuardianReq
	if err := c.BodyParser(&req); err != nil || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "password is required",
		})
	}

	var u models.User
	if err := h.DB.First(&u, "id = ?", uid).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "internal server error",
		})
	}
	if !utils.CheckPassword(u.Password, req.Password) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "wrong password",
		})
	}

	if err := h.Interlock.ClearByOwner(c.Context(), uid); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Guardian mode disabled",
	})
}
