package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"league-lobby-system/models"
	"league-lobby-system/slapapi"
	"league-lobby-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTelemetryUnavailable wraps a failed telemetry fetch so callers can tell
// a platform outage apart from a persistence error.
var ErrTelemetryUnavailable = errors.New("telemetry unavailable")

// TelemetrySource is the slice of the platform client ingestion needs.
type TelemetrySource interface {
	GetLobbyMatches(ctx context.Context, lobbyID int64) ([]slapapi.TelemetryMatch, error)
}

// IngestService pulls raw per-period telemetry and persists it as
// MatchData/PlayerMatchData rows. Ingestion is idempotent per external match
// id: re-running it is a no-op for already-seen periods, backed by a hard
// uniqueness constraint on slap_match_id.
type IngestService struct {
	DB  *gorm.DB
	API TelemetrySource
}

func NewIngestService(db *gorm.DB, api TelemetrySource) *IngestService {
	return &IngestService{DB: db, API: api}
}

// IngestLobbyStats fetches all recorded periods for a lobby and persists the
// ones not seen before. Returns the ids of newly created MatchData rows.
func (s *IngestService) IngestLobbyStats(ctx context.Context, lobbyID string) ([]string, error) {
	var lobby models.Lobby
	if err := s.DB.Preload("Match.SeasonDivision").First(&lobby, "id = ?", lobbyID).Error; err != nil {
		return nil, err
	}

	periods, err := s.API.GetLobbyMatches(ctx, lobby.SlapID)
	if err != nil {
		var apiErr *slapapi.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: lobby %d returned %d", ErrTelemetryUnavailable, lobby.SlapID, apiErr.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrTelemetryUnavailable, err)
	}

	created, err := s.storePeriods(&lobby, periods, models.SourceSlapAPI)
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		s.archive(lobby.ID, periods)
	}
	log.Printf("[INGEST] lobby %s: %d period(s) reported, %d new", lobby.ID, len(periods), len(created))
	return created, nil
}

// IngestUploadedLog runs a manually uploaded match log through the same
// creation path as live telemetry, tagged with the LogUpload source.
func (s *IngestService) IngestUploadedLog(lobbyID string, payload []byte) ([]string, error) {
	var lobby models.Lobby
	if err := s.DB.Preload("Match.SeasonDivision").First(&lobby, "id = ?", lobbyID).Error; err != nil {
		return nil, err
	}

	var periods []slapapi.TelemetryMatch
	if err := json.Unmarshal(payload, &periods); err != nil {
		return nil, fmt.Errorf("invalid match log: %w", err)
	}

	created, err := s.storePeriods(&lobby, periods, models.SourceLogUpload)
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		key := fmt.Sprintf("logs/%s/%d.json", lobby.ID, time.Now().UnixNano())
		if err := utils.ArchiveBytes(key, payload, "application/json"); err != nil {
			log.Printf("[INGEST] lobby %s: log archive failed: %v", lobby.ID, err)
		}
	}
	return created, nil
}

func (s *IngestService) storePeriods(lobby *models.Lobby, periods []slapapi.TelemetryMatch, source string) ([]string, error) {
	var created []string
	for _, p := range periods {
		var count int64
		if err := s.DB.Model(&models.MatchData{}).Where("slap_match_id = ?", p.ID).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}

		md := models.MatchData{
			ID:             uuid.NewString(),
			LobbyID:        lobby.ID,
			Source:         source,
			SlapMatchID:    p.ID,
			Region:         p.Region,
			GameMode:       p.GameMode,
			Arena:          p.Arena,
			HomeScore:      p.Score.Home,
			AwayScore:      p.Score.Away,
			Winner:         p.Winner,
			EndReason:      p.EndReason,
			CurrentPeriod:  p.CurrentPeriod,
			PeriodsEnabled: p.PeriodsEnabled,
			MercyRule:      p.MercyRule,
		}

		// One transaction per period: a failed player insert must not strand
		// a MatchData row that every later ingestion would skip over.
		inserted := false
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			// The conflict clause backstops the existence check above: if two
			// ingestions race on the same external match id, one of them
			// loses here and skips the period.
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slap_match_id"}},
				DoNothing: true,
			}).Create(&md)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}

			for _, tp := range p.Players {
				player, err := s.resolvePlayer(tx, tp, lobby.Match.SeasonDivision.SeasonID)
				if err != nil {
					return err
				}
				pmd := models.PlayerMatchData{
					ID:          uuid.NewString(),
					MatchDataID: md.ID,
					PlayerID:    player.ID,
					TeamID:      sideToTeam(tp.Team, &lobby.Match),
					Period:      p.CurrentPeriod,
					PlayerStats: statsFromMap(tp.Stats),
				}
				if err := tx.Create(&pmd).Error; err != nil {
					return err
				}
			}
			inserted = true
			return nil
		})
		if err != nil {
			return created, err
		}
		if inserted {
			created = append(created, md.ID)
		}
	}
	return created, nil
}

// resolvePlayer finds a player by game platform id, creating a minimal row on
// first sight. New players default to the match's season as their first
// season.
func (s *IngestService) resolvePlayer(tx *gorm.DB, tp slapapi.TelemetryPlayer, seasonID string) (*models.Player, error) {
	var player models.Player
	err := tx.First(&player, "slap_id = ?", tp.SlapID).Error
	if err == nil {
		return &player, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	player = models.Player{
		ID:     uuid.NewString(),
		SlapID: tp.SlapID,
		Name:   tp.Name,
	}
	if seasonID != "" {
		player.FirstSeasonID = &seasonID
	}
	if err := tx.Create(&player).Error; err != nil {
		return nil, err
	}
	log.Printf("[INGEST] auto-created player %s (slap id %d)", tp.Name, tp.SlapID)
	return &player, nil
}

func (s *IngestService) archive(lobbyID string, periods []slapapi.TelemetryMatch) {
	raw, err := json.Marshal(periods)
	if err != nil {
		return
	}
	key := fmt.Sprintf("telemetry/%s/%d.json", lobbyID, time.Now().UnixNano())
	if err := utils.ArchiveBytes(key, raw, "application/json"); err != nil {
		log.Printf("[INGEST] lobby %s: telemetry archive failed: %v", lobbyID, err)
	}
}

// --- HTTP handlers ---

// IngestLobbyHandler handles POST /s/lobbies/:id/ingest, a manual re-trigger
// of telemetry ingestion. Safe to call repeatedly.
func (s *IngestService) IngestLobbyHandler(c *fiber.Ctx) error {
	created, err := s.IngestLobbyStats(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "lobby not found"})
		}
		if errors.Is(err, ErrTelemetryUnavailable) {
			return c.Status(502).JSON(fiber.Map{"success": false, "error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "ingestion failed"})
	}
	return c.JSON(fiber.Map{"success": true, "created": created})
}

// UploadLogHandler handles POST /s/lobbies/:id/log, manual upload of a match
// log when live telemetry was lost.
func (s *IngestService) UploadLogHandler(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("log")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "log file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "could not open uploaded file"})
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "could not read uploaded file"})
	}

	created, err := s.IngestUploadedLog(c.Params("id"), payload)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "lobby not found"})
		}
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "created": created})
}

func sideToTeam(side string, match *models.Match) string {
	switch side {
	case models.SideHome:
		return match.HomeTeamID
	case models.SideAway:
		return match.AwayTeamID
	default:
		return ""
	}
}

func statsFromMap(m map[string]float64) models.PlayerStats {
	return models.PlayerStats{
		Goals:         int(m["goals"]),
		Assists:       int(m["assists"]),
		Saves:         int(m["saves"]),
		Shots:         int(m["shots"]),
		Passes:        int(m["passes"]),
		Blocks:        int(m["blocks"]),
		Takeaways:     int(m["takeaways"]),
		Turnovers:     int(m["turnovers"]),
		FaceoffsWon:   int(m["faceoffs_won"]),
		FaceoffsLost:  int(m["faceoffs_lost"]),
		PossessionSec: int(m["possession_time"]),
		GameSec:       int(m["game_time"]),
	}
}
