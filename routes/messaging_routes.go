package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"workhub/handlers"
	"workhub/middleware"
)

func MessagingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", handlers.GetUserConversations)
	conversations.Post("", handlers.CreateOrGetConversation)
	conversations.Get("/:conversationId/messages", handlers.GetConversationMessages)
	conversations.Post("/:conversationId/messages", handlers.SendConversationMessage)
	conversations.Post("/:conversationId/read", handlers.MarkConversationRead)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(handlers.ServeWs))
}
