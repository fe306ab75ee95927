package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
	"github.com/juniorlance/juniorlance_be/internal/services/wallet"
)

// respondErr maps service errors onto the response envelope. Denials carry a
// machine-readable next_step so the frontend can route the user.
func respondErr(c *fiber.Ctx, err error) error {
	var (
		ve *apperr.ValidationError
		te *apperr.TransitionError
		gd *apperr.GateDenied
		ib *apperr.InterlockBlocked
		cc *apperr.ConcurrencyConflict
		nf *apperr.NotFound
		ge *apperr.GatewayError
	)

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": ve.Msg,
		})
	case errors.As(err, &gd):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":   false,
			"message":   "verification required for this action",
			"next_step": string(gd.Hint),
		})
	case errors.As(err, &ib):
		return c.Status(fiber.StatusLocked).JSON(fiber.Map{
			"success": false,
			"message": "guardian mode is active on this account",
		})
	case errors.As(err, &te):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.As(err, &cc):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "the order changed underneath you, refresh and retry",
		})
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "insufficient balance",
		})
	case errors.Is(err, escrow.ErrBankNotLinked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success":   false,
			"message":   "freelancer has no linked payout account",
			"next_step": string(apperr.HintLinkBank),
		})
	case errors.As(err, &ge):
		if ge.Kind == apperr.GatewayTimeout {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"success": false,
				"message": "payment gateway timed out, the outcome is pending review",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "payment gateway error",
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "internal server error",
	})
}

// currentUserID reads the authenticated user id set by AttachJWTLocals.
func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("userId").(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}
