package routes

import (
	"github.com/gofiber/fiber/v2"

	"workhub/handlers"
	"workhub/middleware"
)

func ProfileRoutes(app *fiber.App) {
	api := app.Group("/api/v1", middleware.Protected())

	api.Get("/profile", handlers.GetProfile)
	api.Put("/profile", handlers.UpdateProfile)
	api.Get("/users/:userId/profile", handlers.GetPublicProfile)
}
