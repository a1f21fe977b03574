package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nhalege/backend/internal/models"
	"github.com/nhalege/backend/pkg/utils"
	"gorm.io/gorm"
)

type StatusHandler struct {
	DB *gorm.DB
}

func NewStatusHandler(db *gorm.DB) *StatusHandler {
	return &StatusHandler{DB: db}
}

func Root(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Hello World"})
}

type createStatusCheckRequest struct {
	ClientName string `json:"clientName"`
}

func (h *StatusHandler) Create(c *fiber.Ctx) error {
	var req createStatusCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "clientName is required")
	}

	check := models.StatusCheck{ClientName: req.ClientName}
	if err := h.DB.Create(&check).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating status check")
	}

	return utils.Success(c, fiber.StatusCreated, check)
}

func (h *StatusHandler) List(c *fiber.Ctx) error {
	var checks []models.StatusCheck
	if err := h.DB.Order("timestamp DESC").Limit(1000).Find(&checks).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing status checks")
	}

	return utils.Success(c, fiber.StatusOK, checks)
}
