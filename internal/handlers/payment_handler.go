package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
	"github.com/juniorlance/juniorlance_be/internal/services/gateway"
)

type PaymentHandler struct {
	DB      *gorm.DB
	Escrow  *escrow.Service
	Gateway *gateway.Service
}

func NewPaymentHandler(db *gorm.DB, esc *escrow.Service, gw *gateway.Service) *PaymentHandler {
	return &PaymentHandler{DB: db, Escrow: esc, Gateway: gw}
}

type createHoldReq struct {
	OrderID   string `json:"order_id"`
	ReturnURL string `json:"return_url"`
}

// CreateHold opens the checkout session that funds the escrow for a pending
// order. Repeating the call returns the same pending session.
func (h *PaymentHandler) CreateHold(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req createHoldReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid order_id",
		})
	}

	var o models.Order
	if err := h.DB.First(&o, "id = ?", orderID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "order not found",
		})
	}
	if o.ClientID != uid {
		return fiber.ErrForbidden
	}
	if o.Status != models.OrderStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "order is no longer payable",
		})
	}

	var payer models.User
	if err := h.DB.First(&payer, "id = ?", uid).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "internal server error",
		})
	}

	txn, err := h.Escrow.CreateHold(c.Context(), &o, &payer, req.ReturnURL)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Checkout session ready",
		"data": fiber.Map{
			"reference":    txn.ExternalRef,
			"checkout_url": txn.CheckoutURL,
			"amount":       txn.CapturedAmount,
		},
	})
}

type gatewayCallbackPayload struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Status      string `json:"status"`
	PaidAt      int64  `json:"paid_at"`
}

// HandleCallback receives the gateway webhook. The payload only triggers an
// independent status check; it is never trusted as the success signal itself.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	signature := c.Get("X-Callback-Signature")
	if signature == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Missing signature"})
	}

	body := c.Body()
	if !h.Gateway.ValidateSignature(signature, string(body)) {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid signature"})
	}

	var payload gatewayCallbackPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid payload"})
	}

	if !strings.HasPrefix(payload.MerchantRef, "INV-") {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid merchant ref"})
	}
	orderCode := strings.TrimPrefix(payload.MerchantRef, "INV-")

	var o models.Order
	if err := h.DB.Where("order_code = ?", orderCode).First(&o).Error; err != nil {
		log.Printf("Callback: order not found for ref %s", payload.MerchantRef)
		// Acknowledged so the gateway stops retrying a ref we will never know.
		return c.JSON(fiber.Map{"success": false, "message": "Order not found, ignored"})
	}

	captured, err := h.Escrow.ConfirmHold(c.Context(), &o, payload.Reference)
	if err != nil {
		log.Printf("Callback: confirm hold for %s: %v", orderCode, err)
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"captured": captured},
	})
}
