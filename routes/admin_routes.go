package routes

import (
	"github.com/gofiber/fiber/v2"

	"workhub/handlers"
	"workhub/middleware"
)

func AdminRoutes(app *fiber.App) {
	admin := app.Group("/api/v1/admin", middleware.Protected(), middleware.AdminRequired())

	admin.Get("/users", handlers.ListUsers)
	admin.Patch("/users/:userId/active", handlers.SetUserActive)
}
