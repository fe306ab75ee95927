package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/services/gate"
)

// VerificationHandler receives identity-provider callbacks. This is the only
// path that promotes a user's verification level.
type VerificationHandler struct {
	Gate        *gate.Service
	CallbackKey string
}

func NewVerificationHandler(g *gate.Service, callbackKey string) *VerificationHandler {
	return &VerificationHandler{Gate: g, CallbackKey: callbackKey}
}

type verificationPayload struct {
	UserID           string `json:"user_id"`
	AgeVerified      bool   `json:"age_verified"`
	IdentityVerified bool   `json:"identity_verified"`
	BankLinked       bool   `json:"bank_linked"`
	PayoutAccountRef string `json:"payout_account_ref"`
}

func (h *VerificationHandler) HandleCallback(c *fiber.Ctx) error {
	signature := c.Get("X-Callback-Signature")
	if signature == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Missing signature"})
	}

	mac := hmac.New(sha256.New, []byte(h.CallbackKey))
	mac.Write(c.Body())
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid signature"})
	}

	var payload verificationPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid payload"})
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid user_id"})
	}

	err = h.Gate.ApplyProviderResult(c.Context(), gate.ProviderResult{
		UserID:           userID,
		AgeVerified:      payload.AgeVerified,
		IdentityVerified: payload.IdentityVerified,
		BankLinked:       payload.BankLinked,
		PayoutAccountRef: payload.PayoutAccountRef,
	})
	if err != nil {
		log.Printf("Verification callback for %s: %v", payload.UserID, err)
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "message": "Verification applied"})
}
