package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
	"github.com/juniorlance/juniorlance_be/internal/services/wallet"
)

type WalletHandler struct {
	DB          *gorm.DB
	Withdrawals *wallet.WithdrawService
}

func NewWalletHandler(db *gorm.DB, wd *wallet.WithdrawService) *WalletHandler {
	return &WalletHandler{DB: db, Withdrawals: wd}
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var u models.User
	if err := h.DB.First(&u, "id = ?", uid).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	var ledger []models.WalletTransaction
	if err := h.DB.Where("user_id = ?", uid).
		Order("created_at DESC").Limit(50).Find(&ledger).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to load ledger",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"balance":      u.Balance,
			"transactions": ledger,
		},
	})
}

type withdrawReq struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"` // client-chosen, makes retries safe
}

// Withdraw moves balance out to the user's linked payout account. Requires
// the approved verification level. The balance is debited before the gateway
// payout; see WithdrawService for the failure handling.
func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req withdrawReq
	if err := c.BodyParser(&req); err != nil || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "amount must be positive",
		})
	}

	var u models.User
	if err := h.DB.First(&u, "id = ?", uid).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if err := gate.Check(&u, gate.ActionWithdrawFunds); err != nil {
		return respondErr(c, err)
	}
	if !u.BankLinked || u.PayoutAccountRef == "" {
		return respondErr(c, escrow.ErrBankNotLinked)
	}

	w, err := h.Withdrawals.Withdraw(c.Context(), &u, req.Amount, strings.TrimSpace(req.RequestID))
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Withdrawal sent",
		"data": fiber.Map{
			"withdrawal_id": w.ID,
			"payout_ref":    w.PayoutRef,
			"amount":        w.Amount,
			"status":        w.Status,
		},
	})
}
