package routes

import (
	"github.com/gofiber/fiber/v2"

	"workhub/handlers"
	"workhub/middleware"
)

func UploadRoutes(app *fiber.App) {
	api := app.Group("/api/v1", middleware.Protected())

	api.Post("/uploads/signature", handlers.GenerateUploadSignature)
}
