package services

import (
	"context"
	"errors"
	"log"
	"time"

	"league-lobby-system/models"
	"league-lobby-system/slapapi"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewService manages the human side of match anomalies: raising
// Technical/Forfeit/Report flags, resolving them, and tearing down a live
// lobby when a technical issue requires a restart.
type ReviewService struct {
	DB      *gorm.DB
	Lobbies *LobbyService
}

func NewReviewService(db *gorm.DB, lobbies *LobbyService) *ReviewService {
	return &ReviewService{DB: db, Lobbies: lobbies}
}

// RestartLobby aborts the match's active lobby and creates a replacement
// seeded with the most recent period's score and player stats, resuming at
// the following period.
func (s *ReviewService) RestartLobby(ctx context.Context, match *models.Match) (*models.Lobby, error) {
	active, err := s.Lobbies.ActiveLobby(match.ID)
	if err != nil {
		return nil, err
	}

	opts := GenerateLobbyOptions{}
	if active != nil {
		if _, err := s.Lobbies.AbortLobby(ctx, active.ID); err != nil {
			log.Printf("[REVIEW] match %s: abort of lobby %s failed: %v", match.ID, active.ID, err)
		}

		var latest models.MatchData
		err := s.DB.Where("lobby_id = ?", active.ID).
			Order("created_at DESC").
			Preload("PlayerData.Player").
			First(&latest).Error
		switch {
		case err == nil:
			opts.CurrentPeriod = latest.CurrentPeriod + 1
			opts.InitialScore = &slapapi.Score{Home: latest.HomeScore, Away: latest.AwayScore}
			opts.InitialStats = seedStats(&latest, match)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	return s.Lobbies.GenerateLobby(ctx, match, opts)
}

// --- HTTP handlers ---

// CreateReview handles POST /s/matches/:id/reviews. A Technical review with
// restart_lobby set also tears down the active lobby and spins up a seeded
// replacement.
func (s *ReviewService) CreateReview(c *fiber.Ctx) error {
	type request struct {
		Type         string `json:"type"`
		Reason       string `json:"reason"`
		RestartLobby bool   `json:"restart_lobby"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	switch req.Type {
	case models.ReviewTypeTechnical, models.ReviewTypeForfeit, models.ReviewTypeReport:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "type must be Technical, Forfeit or Report"})
	}
	if req.Reason == "" {
		return c.Status(400).JSON(fiber.Map{"error": "reason is required"})
	}

	match, err := s.Lobbies.LoadMatch(c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	raisedBy, _ := c.Locals("user_id").(string)
	review := models.MatchReview{
		ID:       uuid.NewString(),
		MatchID:  match.ID,
		Type:     req.Type,
		Reason:   req.Reason,
		RaisedBy: raisedBy,
	}
	if err := s.DB.Create(&review).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save review"})
	}

	var replacement *models.Lobby
	if req.Type == models.ReviewTypeTechnical && req.RestartLobby {
		replacement, err = s.RestartLobby(c.Context(), match)
		if err != nil {
			log.Printf("[REVIEW] match %s: lobby restart failed: %v", match.ID, err)
			return c.Status(502).JSON(fiber.Map{
				"review": review,
				"error":  "review recorded but lobby restart failed",
			})
		}
	}

	return c.Status(201).JSON(fiber.Map{"review": review, "replacement_lobby": replacement})
}

// ResolveReview handles PATCH /s/reviews/:id/resolve.
func (s *ReviewService) ResolveReview(c *fiber.Ctx) error {
	var review models.MatchReview
	if err := s.DB.First(&review, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "review not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if review.Resolved {
		return c.Status(400).JSON(fiber.Map{"error": "review already resolved"})
	}

	resolvedBy, _ := c.Locals("user_id").(string)
	now := time.Now()
	err := s.DB.Model(&review).Updates(map[string]any{
		"resolved":    true,
		"resolved_by": resolvedBy,
		"resolved_at": &now,
	}).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve review"})
	}
	return c.JSON(fiber.Map{"message": "review resolved", "review_id": review.ID})
}

// ListReviews handles GET /s/matches/:id/reviews.
func (s *ReviewService) ListReviews(c *fiber.Ctx) error {
	var reviews []models.MatchReview
	err := s.DB.Where("match_id = ?", c.Params("id")).
		Order("created_at ASC").
		Find(&reviews).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"reviews": reviews, "count": len(reviews)})
}

// seedStats converts the latest period's player rows back into the platform's
// seed payload.
func seedStats(latest *models.MatchData, match *models.Match) []slapapi.PlayerSeed {
	seeds := make([]slapapi.PlayerSeed, 0, len(latest.PlayerData))
	for _, row := range latest.PlayerData {
		side := ""
		switch row.TeamID {
		case match.HomeTeamID:
			side = models.SideHome
		case match.AwayTeamID:
			side = models.SideAway
		}
		seeds = append(seeds, slapapi.PlayerSeed{
			SlapID: row.Player.SlapID,
			Team:   side,
			Stats: map[string]float64{
				"goals":           float64(row.Goals),
				"assists":         float64(row.Assists),
				"saves":           float64(row.Saves),
				"shots":           float64(row.Shots),
				"passes":          float64(row.Passes),
				"blocks":          float64(row.Blocks),
				"takeaways":       float64(row.Takeaways),
				"turnovers":       float64(row.Turnovers),
				"faceoffs_won":    float64(row.FaceoffsWon),
				"faceoffs_lost":   float64(row.FaceoffsLost),
				"possession_time": float64(row.PossessionSec),
				"game_time":       float64(row.GameSec),
			},
		})
	}
	return seeds
}
