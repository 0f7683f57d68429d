package handlers

import (
	"league-lobby-system/middleware"
	"league-lobby-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, validationService *services.ValidationService, reviewService *services.ReviewService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/matches/:id/validate", validationService.ValidateMatchHandler)

	// Match reviews (flags)
	secured.Post("/matches/:id/reviews", reviewService.CreateReview)
	secured.Get("/matches/:id/reviews", reviewService.ListReviews)
	secured.Patch("/reviews/:id/resolve", reviewService.ResolveReview)
}
