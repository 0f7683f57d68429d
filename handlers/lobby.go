package handlers

import (
	"league-lobby-system/middleware"
	"league-lobby-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLobbyRoutes(app *fiber.App, lobbyService *services.LobbyService, ingestService *services.IngestService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Lobby lifecycle
	secured.Post("/matches/:id/lobby", lobbyService.CreateLobbyForMatch)
	secured.Get("/lobbies/:id", lobbyService.GetLobbyHandler)
	secured.Post("/lobbies/:id/abort", lobbyService.AbortLobbyHandler)

	// Background task inspection
	secured.Get("/tasks/:id", lobbyService.TaskResult)

	// Stat ingestion (manual re-trigger + log upload fallback)
	secured.Post("/lobbies/:id/ingest", ingestService.IngestLobbyHandler)
	secured.Post("/lobbies/:id/log", ingestService.UploadLogHandler)
}
