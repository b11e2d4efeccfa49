package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"workhub/database"
	"workhub/services"
)

type UpdatePresenceRequest struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

func UpdatePresence(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req UpdatePresenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	presence, err := services.UpdatePresence(c.Context(), database.DB, userID, req.Status)
	if errors.Is(err, services.ErrInvalidStatus) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid presence status"})
	}
	if err != nil {
		log.Printf("Failed to update presence for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update presence"})
	}

	return c.JSON(presence)
}

func GetOnlineUsers(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	users, err := services.ListOnlineUsers(c.Context(), database.DB, userID)
	if err != nil {
		log.Printf("Failed to load online users for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load online users"})
	}

	return c.JSON(users)
}
