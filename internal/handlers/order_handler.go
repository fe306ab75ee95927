package handlers

import (
	"encoding/json"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/config"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/interlock"
	"github.com/juniorlance/juniorlance_be/internal/services/order"
	"github.com/juniorlance/juniorlance_be/internal/utils"
)

type OrderHandler struct {
	DB        *gorm.DB
	Svc       *order.Service
	Interlock *interlock.Service
	Cfg       config.Config
}

func NewOrderHandler(db *gorm.DB, svc *order.Service, il *interlock.Service, cfg config.Config) *OrderHandler {
	return &OrderHandler{DB: db, Svc: svc, Interlock: il, Cfg: cfg}
}

type ApplyReq struct {
	JobID         string `json:"job_id"`
	BidAmount     int64  `json:"bid_amount"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	RevisionCount int    `json:"revision_count"`
}

// Apply creates a pending order: a freelancer's proposal against a job.
func (h *OrderHandler) Apply(c *fiber.Ctx) error {
	freelancerID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req ApplyReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid job_id",
		})
	}

	o, err := h.Svc.Create(c.Context(), order.CreateParams{
		FreelancerID:  freelancerID,
		JobID:         jobID,
		BidAmount:     req.BidAmount,
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		RevisionCount: req.RevisionCount,
	})
	if err != nil {
		return respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Order created",
		"data":    o,
	})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var o models.Order
	if err := h.DB.First(&o, "id = ?", c.Params("id")).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "order not found",
		})
	}
	role, _ := c.Locals("role").(string)
	if o.ClientID != uid && o.FreelancerID != uid && role != string(models.RoleAdmin) {
		return fiber.ErrForbidden
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order":          o,
			"delivery_links": h.signedDeliveryLinks(&o),
		},
	})
}

func (h *OrderHandler) ListMine(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}

	var orders []models.Order
	if err := h.DB.Where("client_id = ? OR freelancer_id = ?", uid, uid).
		Order("created_at DESC").Limit(100).Find(&orders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "failed to load orders",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
	})
}

type transitionReq struct {
	Reason string `json:"reason"`
}

// Accept moves pending -> accepted. Escrow must be captured first; the
// service refuses otherwise.
func (h *OrderHandler) Accept(c *fiber.Ctx) error {
	return h.transition(c, models.OrderStatusAccepted, order.TransitionOpts{})
}

func (h *OrderHandler) Reject(c *fiber.Ctx) error {
	var req transitionReq
	_ = c.BodyParser(&req)
	return h.transition(c, models.OrderStatusRejected, order.TransitionOpts{Reason: req.Reason})
}

func (h *OrderHandler) RequestRevision(c *fiber.Ctx) error {
	var req transitionReq
	_ = c.BodyParser(&req)
	return h.transition(c, models.OrderStatusRevisionRequested, order.TransitionOpts{Reason: req.Reason})
}

func (h *OrderHandler) Complete(c *fiber.Ctx) error {
	return h.transition(c, models.OrderStatusCompleted, order.TransitionOpts{})
}

// Submit uploads the deliverables and moves the order to submitted. Files are
// stored under opaque names; clients only ever see signed URLs.
func (h *OrderHandler) Submit(c *fiber.Ctx) error {
	opts := order.TransitionOpts{
		DeliveryLink: strings.TrimSpace(c.FormValue("delivery_link")),
	}

	if form, err := c.MultipartForm(); err == nil && form != nil {
		var stored []string
		for _, fh := range form.File["files"] {
			name := uuid.New().String() + filepath.Ext(fh.Filename)
			dst := filepath.Join(h.Cfg.UploadDir, "deliveries", name)
			if err := c.SaveFile(fh, dst); err != nil {
				log.Println("Submit: save file:", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"success": false,
					"message": "failed to store deliverable",
				})
			}
			stored = append(stored, "/deliveries/"+name)
		}
		if len(stored) > 0 {
			raw, _ := json.Marshal(stored)
			opts.DeliveryFiles = raw
		}
	}

	return h.transition(c, models.OrderStatusSubmitted, opts)
}

func (h *OrderHandler) Dispute(c *fiber.Ctx) error {
	var req transitionReq
	_ = c.BodyParser(&req)
	return h.transition(c, models.OrderStatusDisputed, order.TransitionOpts{Reason: req.Reason})
}

func (h *OrderHandler) transition(c *fiber.Ctx, to models.OrderStatus, opts order.TransitionOpts) error {
	uid, err := currentUserID(c)
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

	o, err := h.Svc.Transition(c.Context(), uid, orderID, to, opts)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Order updated",
		"data":    o,
	})
}

// Release pays the freelancer out of escrow. Client only.
func (h *OrderHandler) Release(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
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

	// A freelancer trying to pay themselves out is the route-around pattern
	// the interlock exists for. Trip it before touching the order.
	var existing models.Order
	if err := h.DB.First(&existing, "id = ?", orderID).Error; err == nil && existing.FreelancerID == uid {
		if terr := h.Interlock.TripForPolicy(c.Context(), uid, "freelancer attempted self-release on order "+existing.OrderCode); terr != nil {
			log.Println("Release: policy trip:", terr)
		}
		return fiber.ErrForbidden
	}

	o, res, err := h.Svc.Release(c.Context(), uid, orderID)
	if err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Escrow released",
		"data": fiber.Map{
			"order":      o,
			"net_amount": res.NetAmount,
			"fee_amount": res.FeeAmount,
		},
	})
}

type rateReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *OrderHandler) Rate(c *fiber.Ctx) error {
	uid, err := currentUserID(c)
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

	var req rateReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid body",
		})
	}

	if err := h.Svc.Rate(c.Context(), uid, orderID, req.Rating, req.Comment); err != nil {
		return respondErr(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Rating saved",
	})
}

func (h *OrderHandler) signedDeliveryLinks(o *models.Order) []string {
	if len(o.DeliveryFiles) == 0 || h.Cfg.SignedURLKey == "" {
		return nil
	}
	var paths []string
	if err := json.Unmarshal(o.DeliveryFiles, &paths); err != nil {
		return nil
	}
	links := make([]string, 0, len(paths))
	for _, p := range paths {
		links = append(links, h.Cfg.PublicBaseURL+"/files"+utils.SignPath(h.Cfg.SignedURLKey, p, h.Cfg.SignedURLTTL))
	}
	return links
}
