package handlers

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/juniorlance/juniorlance_be/internal/config"
	"github.com/juniorlance/juniorlance_be/internal/utils"
)

// FileHandler serves uploaded deliverables. Bare paths are never served; the
// signature and expiry minted at read time must verify.
type FileHandler struct {
	Cfg config.Config
}

func NewFileHandler(cfg config.Config) *FileHandler {
	return &FileHandler{Cfg: cfg}
}

func (h *FileHandler) Serve(c *fiber.Ctx) error {
	rel := "/" + c.Params("*")
	exp := c.Query("exp")
	sig := c.Query("sig")

	if !utils.VerifySignedPath(h.Cfg.SignedURLKey, rel, exp, sig) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "link is invalid or expired",
		})
	}
	if strings.Contains(rel, "..") {
		return fiber.ErrForbidden
	}

	return c.SendFile(filepath.Join(h.Cfg.UploadDir, filepath.FromSlash(rel)))
}
