package routes

import (
	"github.com/gofiber/fiber/v2"

	"workhub/handlers"
	"workhub/middleware"
)

func PresenceRoutes(app *fiber.App) {
	presence := app.Group("/api/v1/presence", middleware.Protected())

	presence.Put("", handlers.UpdatePresence)
	presence.Get("/online", handlers.GetOnlineUsers)
}
