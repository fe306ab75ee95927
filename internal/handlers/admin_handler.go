package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/services/admin"
)

type AdminHandler struct {
	Svc *admin.Service
}

func NewAdminHandler(svc *admin.Service) *AdminHandler {
	return &AdminHandler{Svc: svc}
}

type forceReq struct {
	Reason  string `json:"reason"`
	Confirm bool   `json:"confirm"`
}

func (h *AdminHandler) ForceRelease(c *fiber.Ctx) error {
	adminID, err := currentUserID(c)
	if err != nil {
		return err
	}
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid order id",
		})
	}

	var req forceReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	res, err := h.Svc.ForceRelease(c.Context(), adminID, orderID, strings.TrimSpace(req.Reason), req.Confirm)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Escrow force-released",
		"data":    res,
	})
}

func (h *AdminHandler) ForceRefund(c *fiber.Ctx) error {
	adminID, err := currentUserID(c)
	if err != nil {
		return err
	}
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid order id",
		})
	}

	var req forceReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	res, err := h.Svc.ForceRefund(c.Context(), adminID, orderID, strings.TrimSpace(req.Reason), req.Confirm)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Escrow force-refunded",
		"data":    res,
	})
}

type banReq struct {
	Reason   string `json:"reason"`
	ReportID string `json:"report_id"`
}

func (h *AdminHandler) BanUser(c *fiber.Ctx) error {
	adminID, err := currentUserID(c)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid user id",
		})
	}

	var req banReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	var fromReport *uuid.UUID
	if req.ReportID != "" {
		rid, perr := uuid.Parse(req.ReportID)
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "invalid report_id",
			})
		}
		fromReport = &rid
	}

	if err := h.Svc.BanUser(c.Context(), adminID, userID, strings.TrimSpace(req.Reason), fromReport); err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User banned",
	})
}

type resolveReq struct {
	Dismiss bool   `json:"dismiss"`
	Outcome string `json:"outcome"`
}

func (h *AdminHandler) ResolveReport(c *fiber.Ctx) error {
	adminID, err := currentUserID(c)
	if err != nil {
		return err
	}
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid report id",
		})
	}

	var req resolveReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	if err := h.Svc.ResolveReport(c.Context(), adminID, reportID, req.Dismiss, strings.TrimSpace(req.Outcome)); err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Report resolved",
	})
}

// Reconciliation lists escrows and withdrawals parked for manual review
// after gateway failures.
func (h *AdminHandler) Reconciliation(c *fiber.Ctx) error {
	report, err := h.Svc.Reconciliation(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

// Evidence returns the order plus recent messages between its parties for
// dispute review.
func (h *AdminHandler) Evidence(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid order id",
		})
	}

	o, messages, err := h.Svc.Evidence(c.Context(), orderID, c.QueryInt("limit", 50))
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order":    o,
			"messages": messages,
		},
	})
}
