package services

import (
	"log"
	"time"

	"league-lobby-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResultService commits the authoritative outcome of a match once validation
// has run. Periods are always marked processed; they are accepted, and a
// MatchResult written, only when the validation run raised zero flags.
type ResultService struct {
	DB *gorm.DB
}

func NewResultService(db *gorm.DB) *ResultService {
	return &ResultService{DB: db}
}

func (s *ResultService) FinalizeMatch(match *models.Match, flagCount int) error {
	var periods []models.MatchData
	err := s.DB.
		Joins("JOIN lobbies ON lobbies.id = match_data.lobby_id").
		Where("lobbies.match_id = ?", match.ID).
		Order("match_data.created_at ASC").
		Preload("PlayerData").
		Find(&periods).Error
	if err != nil {
		return err
	}

	accepted := flagCount == 0
	for i := range periods {
		err := s.DB.Model(&models.MatchData{}).Where("id = ?", periods[i].ID).Updates(map[string]any{
			"processed": true,
			"accepted":  accepted,
		}).Error
		if err != nil {
			return err
		}
		periods[i].Processed = true
		periods[i].Accepted = accepted
	}

	if !accepted {
		log.Printf("[FINALIZE] match %s processed with %d flag(s), result withheld", match.ID, flagCount)
		return nil
	}
	if len(periods) == 0 {
		return nil
	}

	var existing int64
	if err := s.DB.Model(&models.MatchResult{}).Where("match_id = ?", match.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		log.Printf("[FINALIZE] match %s already has a result, skipping", match.ID)
		return nil
	}

	// The deciding period is the one with the highest period index.
	deciding := periods[0]
	for _, p := range periods[1:] {
		if p.CurrentPeriod >= deciding.CurrentPeriod {
			deciding = p
		}
	}

	result := models.MatchResult{
		ID:        uuid.NewString(),
		MatchID:   match.ID,
		HomeScore: deciding.HomeScore,
		AwayScore: deciding.AwayScore,
		Draw:      deciding.HomeScore == deciding.AwayScore,
		Overtime:  deciding.EndReason == models.EndReasonOvertime,
		CompletedDate: deciding.CreatedAt.Add(
			time.Duration(match.SeasonDivision.Matchtype.MatchLengthSec) * time.Second),
	}
	switch deciding.Winner {
	case models.SideHome:
		result.WinnerTeamID = match.HomeTeamID
		result.LoserTeamID = match.AwayTeamID
	case models.SideAway:
		result.WinnerTeamID = match.AwayTeamID
		result.LoserTeamID = match.HomeTeamID
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		if err := s.markStatTotals(tx, periods); err != nil {
			return err
		}
		log.Printf("[FINALIZE] match %s: result recorded (%d-%d, winner %s)",
			match.ID, result.HomeScore, result.AwayScore, result.WinnerTeamID)
		return nil
	})
}

// markStatTotals selects, per player, the row with the highest period index
// across the whole match and marks it as the canonical stat-total row.
// Exactly one per player per match.
func (s *ResultService) markStatTotals(tx *gorm.DB, periods []models.MatchData) error {
	best := make(map[string]string) // player id -> row id
	bestPeriod := make(map[string]int)
	var all []string

	for _, p := range periods {
		for _, row := range p.PlayerData {
			all = append(all, row.ID)
			if row.Period >= bestPeriod[row.PlayerID] {
				bestPeriod[row.PlayerID] = row.Period
				best[row.PlayerID] = row.ID
			}
		}
	}
	if len(all) == 0 {
		return nil
	}

	// Reset first so re-finalizing after a manual correction cannot leave
	// two canonical rows for one player.
	if err := tx.Model(&models.PlayerMatchData{}).Where("id IN ?", all).Update("stat_total", false).Error; err != nil {
		return err
	}
	ids := make([]string, 0, len(best))
	for _, id := range best {
		ids = append(ids, id)
	}
	return tx.Model(&models.PlayerMatchData{}).Where("id IN ?", ids).Update("stat_total", true).Error
}
