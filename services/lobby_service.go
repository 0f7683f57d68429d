package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"league-lobby-system/models"
	"league-lobby-system/slapapi"
	"league-lobby-system/utils"
	"league-lobby-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// LobbyService creates in-game lobbies for matches and schedules the monitor
// task that watches them to completion.
type LobbyService struct {
	DB      *gorm.DB
	API     *slapapi.Client
	Tasks   *TaskManager
	Monitor *workers.LobbyMonitor
}

func NewLobbyService(db *gorm.DB, api *slapapi.Client, tasks *TaskManager, monitor *workers.LobbyMonitor) *LobbyService {
	return &LobbyService{DB: db, API: api, Tasks: tasks, Monitor: monitor}
}

// GenerateLobbyOptions carries the optional seed state for a lobby. A
// replacement lobby after a technical teardown resumes from a later period
// with the previous stats and score carried forward.
type GenerateLobbyOptions struct {
	CurrentPeriod int
	InitialScore  *slapapi.Score
	InitialStats  []slapapi.PlayerSeed
	FinalsGame    bool
	Delay         time.Duration
}

// GenerateLobby builds the lobby configuration from the match's resolved
// match-type context, creates the lobby on the game platform, persists the
// Lobby row and schedules its monitor after opts.Delay. A failed platform
// create propagates; the caller decides retry policy. The caller is also
// responsible for cancelling any pre-existing active lobby's monitor before
// calling this again for the same match.
func (s *LobbyService) GenerateLobby(ctx context.Context, match *models.Match, opts GenerateLobbyOptions) (*models.Lobby, error) {
	mt := match.SeasonDivision.Matchtype
	if opts.CurrentPeriod <= 0 {
		opts.CurrentPeriod = 1
	}

	password := utils.NumericPassword(6)
	settings := slapapi.LobbySettings{
		Name:           lobbyName(match, opts.FinalsGame),
		Password:       password,
		Region:         mt.Region,
		GameMode:       mt.GameMode,
		Arena:          mt.Arena,
		PeriodsEnabled: mt.PeriodsEnabled,
		MercyRule:      mt.MercyRule,
		MatchLengthSec: mt.MatchLengthSec,
		CurrentPeriod:  opts.CurrentPeriod,
		InitialScore:   opts.InitialScore,
		InitialStats:   opts.InitialStats,
	}

	slapID, err := s.API.CreateLobby(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("platform lobby create failed for match %s: %w", match.ID, err)
	}

	lobby := &models.Lobby{
		ID:       uuid.NewString(),
		MatchID:  match.ID,
		SlapID:   slapID,
		Password: password,
		Active:   true,
	}
	if err := s.DB.Create(lobby).Error; err != nil {
		return nil, err
	}

	taskID, err := s.Tasks.Submit("lobby-monitor", opts.Delay, func(tctx context.Context) (any, error) {
		return s.Monitor.Run(tctx, lobby.ID)
	})
	if err != nil {
		return nil, err
	}
	if err := s.DB.Model(lobby).Update("task_id", taskID).Error; err != nil {
		return nil, err
	}
	lobby.TaskID = taskID

	log.Printf("[LOBBY] created lobby %s (slap id %d) for match %s, monitor starts in %s",
		lobby.ID, slapID, match.ID, opts.Delay)
	return lobby, nil
}

// AbortLobby cancels the lobby's monitor, deletes the in-game lobby and
// deactivates the row if the platform confirmed the deletion. Cancellation is
// advisory, so the external delete is issued here rather than waiting for the
// monitor loop to reach its own cleanup.
func (s *LobbyService) AbortLobby(ctx context.Context, lobbyID string) (bool, error) {
	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", lobbyID).Error; err != nil {
		return false, err
	}

	if lobby.TaskID != "" {
		if err := s.Tasks.Cancel(lobby.TaskID); err != nil && !errors.Is(err, ErrTaskNotFound) {
			log.Printf("[LOBBY] lobby %s: monitor cancel failed: %v", lobby.ID, err)
		}
	}

	code, err := s.API.DeleteLobby(ctx, lobby.SlapID)
	if err != nil {
		return false, err
	}
	deleted := code == http.StatusOK
	if deleted {
		if err := s.DB.Model(&lobby).Update("active", false).Error; err != nil {
			return deleted, err
		}
	}
	log.Printf("[LOBBY] lobby %s aborted (deleted=%t)", lobby.ID, deleted)
	return deleted, nil
}

// ActiveLobby returns the match's single active lobby, or nil.
func (s *LobbyService) ActiveLobby(matchID string) (*models.Lobby, error) {
	var lobby models.Lobby
	err := s.DB.Where("match_id = ? AND active = ?", matchID, true).
		Order("created_at DESC").
		First(&lobby).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lobby, nil
}

// LoadMatch resolves a match with the full season/division/league/match-type
// context the lobby builder and validation engine expect.
func (s *LobbyService) LoadMatch(matchID string) (*models.Match, error) {
	var match models.Match
	err := s.DB.
		Preload("SeasonDivision.Matchtype").
		Preload("SeasonDivision.Season.League").
		Preload("HomeTeam").
		Preload("AwayTeam").
		First(&match, "id = ?", matchID).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// --- HTTP handlers ---

// CreateLobbyForMatch handles POST /s/matches/:id/lobby.
func (s *LobbyService) CreateLobbyForMatch(c *fiber.Ctx) error {
	type request struct {
		DelaySec   int  `json:"delay_sec"`
		FinalsGame bool `json:"finals_game"`
	}
	var req request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
	}

	match, err := s.LoadMatch(c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	// No two concurrent lobbies for one match: an existing active lobby must
	// be aborted first.
	active, err := s.ActiveLobby(match.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if active != nil {
		return c.Status(409).JSON(fiber.Map{
			"error":    "match already has an active lobby",
			"lobby_id": active.ID,
		})
	}

	lobby, err := s.GenerateLobby(c.Context(), match, GenerateLobbyOptions{
		FinalsGame: req.FinalsGame,
		Delay:      time.Duration(req.DelaySec) * time.Second,
	})
	if err != nil {
		log.Printf("[LOBBY] generate failed for match %s: %v", match.ID, err)
		return c.Status(502).JSON(fiber.Map{"error": "lobby creation failed"})
	}
	return c.Status(201).JSON(lobby)
}

// GetLobbyHandler handles GET /s/lobbies/:id.
func (s *LobbyService) GetLobbyHandler(c *fiber.Ctx) error {
	var lobby models.Lobby
	err := s.DB.Preload("MatchDatas").First(&lobby, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "lobby not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(lobby)
}

// AbortLobbyHandler handles POST /s/lobbies/:id/abort.
func (s *LobbyService) AbortLobbyHandler(c *fiber.Ctx) error {
	deleted, err := s.AbortLobby(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "lobby not found"})
		}
		return c.Status(502).JSON(fiber.Map{"error": "abort failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"lobby_deleted": deleted})
}

// TaskResult handles GET /s/tasks/:id.
func (s *LobbyService) TaskResult(c *fiber.Ctx) error {
	status, err := s.Tasks.Result(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "task not found"})
	}
	return c.JSON(status)
}

func lobbyName(match *models.Match, finals bool) string {
	league := match.SeasonDivision.Season.League
	name := fmt.Sprintf("%s s%d %s vs %s",
		league.Acronym, match.SeasonDivision.Season.Number,
		match.HomeTeam.Acronym, match.AwayTeam.Acronym)
	if finals {
		name += " finals"
	}
	return slug.Make(name)
}
