package services

import (
	"errors"
	"fmt"
	"log"

	"league-lobby-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoLobbyData means no lobby for the match produced any match data. That
// is a structural failure: the run aborts without raising flags and is left
// for manual handling.
var ErrNoLobbyData = errors.New("no lobby produced match data for this match")

// ValidationService runs the fixed consistency pipeline over ingested match
// data. Each stage may raise MatchReview flags (type AutoReview, raised by
// System); the only anomaly it corrects on its own is a full home/away swap.
type ValidationService struct {
	DB      *gorm.DB
	Results *ResultService
}

func NewValidationService(db *gorm.DB, results *ResultService) *ValidationService {
	return &ValidationService{DB: db, Results: results}
}

// RunValidation loads the match with its full configuration context, runs the
// pipeline and, unless the run aborted structurally, hands the flag count to
// the result finalizer.
func (s *ValidationService) RunValidation(matchID string) (int, error) {
	var match models.Match
	err := s.DB.
		Preload("SeasonDivision.Matchtype").
		Preload("SeasonDivision.FreeAgents").
		Preload("HomeTeam.Roster").
		Preload("AwayTeam.Roster").
		First(&match, "id = ?", matchID).Error
	if err != nil {
		return 0, err
	}

	flags, err := s.ValidateMatch(&match)
	if err != nil {
		log.Printf("[VALIDATE] match %s aborted: %v", match.ID, err)
		return 0, err
	}
	if err := s.Results.FinalizeMatch(&match, flags); err != nil {
		return flags, err
	}
	return flags, nil
}

// ValidateMatch runs the pipeline stages in order and returns the total
// number of flags raised across all of them.
func (s *ValidationService) ValidateMatch(match *models.Match) (int, error) {
	periods, err := s.matchPeriods(match.ID)
	if err != nil {
		return 0, err
	}

	flags, err := s.checkLobbyCount(match, periods)
	if err != nil {
		return 0, err
	}
	flags += s.checkPeriodSettings(match, periods)
	flags += s.checkPlayerCounts(match, periods)
	flags += s.checkPeriodCount(match, periods)
	flags += s.checkPeriodOrder(match, periods)
	flags += s.checkPlayerTeams(match, periods)

	log.Printf("[VALIDATE] match %s: %d flag(s) raised", match.ID, flags)
	return flags, nil
}

// matchPeriods returns all match data for the match in creation order, with
// player rows attached.
func (s *ValidationService) matchPeriods(matchID string) ([]models.MatchData, error) {
	var periods []models.MatchData
	err := s.DB.
		Joins("JOIN lobbies ON lobbies.id = match_data.lobby_id").
		Where("lobbies.match_id = ?", matchID).
		Order("match_data.created_at ASC").
		Preload("PlayerData.Player").
		Find(&periods).Error
	return periods, err
}

// Stage 1: exactly one lobby should have produced match data.
func (s *ValidationService) checkLobbyCount(match *models.Match, periods []models.MatchData) (int, error) {
	lobbies := make(map[string]struct{})
	for _, p := range periods {
		lobbies[p.LobbyID] = struct{}{}
	}
	if len(lobbies) == 0 {
		return 0, ErrNoLobbyData
	}
	if len(lobbies) > 1 {
		s.flag(match.ID, fmt.Sprintf("multiple lobbies (%d) created match data for this match", len(lobbies)))
		return 1, nil
	}
	return 0, nil
}

// Stage 2: every period's recorded settings must match the configured
// match type. One flag per differing field, naming the period.
func (s *ValidationService) checkPeriodSettings(match *models.Match, periods []models.MatchData) int {
	mt := match.SeasonDivision.Matchtype
	flags := 0
	for _, p := range periods {
		if p.Region != mt.Region {
			s.flag(match.ID, fmt.Sprintf("period %d: region %q does not match expected %q", p.CurrentPeriod, p.Region, mt.Region))
			flags++
		}
		if p.GameMode != mt.GameMode {
			s.flag(match.ID, fmt.Sprintf("period %d: game mode %q does not match expected %q", p.CurrentPeriod, p.GameMode, mt.GameMode))
			flags++
		}
		if p.PeriodsEnabled != mt.PeriodsEnabled {
			s.flag(match.ID, fmt.Sprintf("period %d: periods enabled is %t, expected %t", p.CurrentPeriod, p.PeriodsEnabled, mt.PeriodsEnabled))
			flags++
		}
	}
	return flags
}

// Stage 3: each period must carry exactly the configured player count.
// Before flagging, spectator artifacts are pruned: a row whose full stat
// vector is identical to the same player's row in the immediately preceding
// period is a duplicate and gets deleted.
func (s *ValidationService) checkPlayerCounts(match *models.Match, periods []models.MatchData) int {
	expected := match.SeasonDivision.Matchtype.PlayerCount

	mismatch := false
	for _, p := range periods {
		if len(p.PlayerData) != expected {
			mismatch = true
			break
		}
	}
	if !mismatch {
		return 0
	}

	s.pruneSpectators(periods)

	flags := 0
	for _, p := range periods {
		if len(p.PlayerData) != expected {
			s.flag(match.ID, fmt.Sprintf("period %d has %d players, expected %d", p.CurrentPeriod, len(p.PlayerData), expected))
			flags++
		}
	}
	return flags
}

func (s *ValidationService) pruneSpectators(periods []models.MatchData) {
	type ref struct {
		period int // index into periods
		row    int // index into PlayerData
	}
	byPlayer := make(map[string][]ref)
	for i := range periods {
		for j := range periods[i].PlayerData {
			pid := periods[i].PlayerData[j].PlayerID
			byPlayer[pid] = append(byPlayer[pid], ref{period: i, row: j})
		}
	}

	removed := make(map[string]struct{})
	for _, refs := range byPlayer {
		for k := 1; k < len(refs); k++ {
			prev := periods[refs[k-1].period].PlayerData[refs[k-1].row]
			cur := periods[refs[k].period].PlayerData[refs[k].row]
			if cur.Period != prev.Period+1 {
				continue
			}
			if cur.PlayerStats == prev.PlayerStats {
				removed[cur.ID] = struct{}{}
			}
		}
	}
	if len(removed) == 0 {
		return
	}

	for id := range removed {
		if err := s.DB.Delete(&models.PlayerMatchData{}, "id = ?", id).Error; err != nil {
			log.Printf("[VALIDATE] failed to prune spectator row %s: %v", id, err)
			delete(removed, id)
		}
	}
	log.Printf("[VALIDATE] pruned %d spectator row(s)", len(removed))

	for i := range periods {
		kept := periods[i].PlayerData[:0]
		for _, row := range periods[i].PlayerData {
			if _, gone := removed[row.ID]; !gone {
				kept = append(kept, row)
			}
		}
		periods[i].PlayerData = kept
	}
}

// Stage 4: total period count must equal the match type's expectation.
func (s *ValidationService) checkPeriodCount(match *models.Match, periods []models.MatchData) int {
	expected := match.SeasonDivision.Matchtype.ExpectedPeriods()
	if len(periods) != expected {
		s.flag(match.ID, fmt.Sprintf("match has %d periods, expected %d", len(periods), expected))
		return 1
	}
	return 0
}

// Stage 5: period indices in creation order must be exactly the canonical
// sequence ([1] or [1,2,3]).
func (s *ValidationService) checkPeriodOrder(match *models.Match, periods []models.MatchData) int {
	expected := match.SeasonDivision.Matchtype.ExpectedPeriods()
	got := make([]int, len(periods))
	for i, p := range periods {
		got[i] = p.CurrentPeriod
	}

	ordered := len(got) == expected
	if ordered {
		for i, idx := range got {
			if idx != i+1 {
				ordered = false
				break
			}
		}
	}
	if !ordered {
		s.flag(match.ID, fmt.Sprintf("period indices out of order: got %v", got))
		return 1
	}
	return 0
}

// Stage 6: every player in the data must be on one of the two competing
// teams or a registered free agent. When literally every rostered player is
// recorded against the opposite team, the orientation was swapped at lobby
// time and the data is corrected instead of flagged.
func (s *ValidationService) checkPlayerTeams(match *models.Match, periods []models.MatchData) int {
	home := rosterSet(match.HomeTeam.Roster)
	away := rosterSet(match.AwayTeam.Roster)
	free := make(map[string]struct{}, len(match.SeasonDivision.FreeAgents))
	for _, fa := range match.SeasonDivision.FreeAgents {
		free[fa.PlayerID] = struct{}{}
	}

	type teamMismatch struct {
		name   string
		period int
	}
	var mismatches []teamMismatch

	flags := 0
	rosteredRows := 0
	swapConsistent := true

	for i := range periods {
		p := &periods[i]
		for j := range p.PlayerData {
			row := &p.PlayerData[j]
			if _, isFree := free[row.PlayerID]; isFree {
				continue
			}

			_, onHome := home[row.PlayerID]
			_, onAway := away[row.PlayerID]
			if !onHome && !onAway {
				s.flag(match.ID, fmt.Sprintf("player %s in period %d is not on either team and not a registered free agent", row.Player.Name, p.CurrentPeriod))
				flags++
				swapConsistent = false
				continue
			}
			rosteredRows++

			actual := match.HomeTeamID
			if onAway {
				actual = match.AwayTeamID
			}
			if row.TeamID == actual {
				continue
			}
			// Swap-consistent only when the reported team is the other
			// valid match team, not some third team or no team at all.
			if row.TeamID != match.HomeTeamID && row.TeamID != match.AwayTeamID {
				swapConsistent = false
			}
			mismatches = append(mismatches, teamMismatch{name: row.Player.Name, period: p.CurrentPeriod})
		}
	}

	if len(mismatches) == 0 {
		return flags
	}

	// Decision table for the auto-correction: apply the swap only when
	//   - every mismatch maps between the two valid match teams, and
	//   - no player in the data was off-roster, and
	//   - literally every non-free-agent row is mismatched.
	// Anything short of that is flagged per player instead.
	if swapConsistent && flags == 0 && rosteredRows > 0 && len(mismatches) == rosteredRows {
		if err := s.applySwap(match, periods); err != nil {
			log.Printf("[VALIDATE] match %s: swap correction failed: %v", match.ID, err)
		} else {
			log.Printf("[VALIDATE] match %s: applied home/away swap correction across %d period(s)", match.ID, len(periods))
			return flags
		}
	}

	for _, mm := range mismatches {
		s.flag(match.ID, fmt.Sprintf("player %s recorded on the wrong team in period %d", mm.name, mm.period))
		flags++
	}
	return flags
}

// applySwap flips every player row's team assignment and every period's
// orientation (winner side and home/away scores) in one transaction.
func (s *ValidationService) applySwap(match *models.Match, periods []models.MatchData) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for i := range periods {
			p := &periods[i]
			winner := p.Winner
			switch winner {
			case models.SideHome:
				winner = models.SideAway
			case models.SideAway:
				winner = models.SideHome
			}
			err := tx.Model(&models.MatchData{}).Where("id = ?", p.ID).Updates(map[string]any{
				"home_score": p.AwayScore,
				"away_score": p.HomeScore,
				"winner":     winner,
			}).Error
			if err != nil {
				return err
			}
			p.HomeScore, p.AwayScore = p.AwayScore, p.HomeScore
			p.Winner = winner

			for j := range p.PlayerData {
				row := &p.PlayerData[j]
				var flipped string
				switch row.TeamID {
				case match.HomeTeamID:
					flipped = match.AwayTeamID
				case match.AwayTeamID:
					flipped = match.HomeTeamID
				default:
					continue
				}
				if err := tx.Model(&models.PlayerMatchData{}).Where("id = ?", row.ID).Update("team_id", flipped).Error; err != nil {
					return err
				}
				row.TeamID = flipped
			}
		}
		return nil
	})
}

// ValidateMatchHandler handles POST /s/matches/:id/validate, the manual
// re-trigger used after human intervention.
func (s *ValidationService) ValidateMatchHandler(c *fiber.Ctx) error {
	flags, err := s.RunValidation(c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "match not found"})
		}
		if errors.Is(err, ErrNoLobbyData) {
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "validation failed"})
	}
	return c.JSON(fiber.Map{"flags": flags})
}

func (s *ValidationService) flag(matchID, reason string) {
	review := models.MatchReview{
		ID:       uuid.NewString(),
		MatchID:  matchID,
		Type:     models.ReviewTypeAutoReview,
		Reason:   reason,
		RaisedBy: models.ReviewRaisedBySystem,
	}
	if err := s.DB.Create(&review).Error; err != nil {
		log.Printf("[VALIDATE] failed to persist flag for match %s: %v", matchID, err)
	}
	log.Printf("[VALIDATE] match %s flagged: %s", matchID, reason)
}

func rosterSet(roster []models.TeamPlayer) map[string]struct{} {
	set := make(map[string]struct{}, len(roster))
	for _, tp := range roster {
		set[tp.PlayerID] = struct{}{}
	}
	return set
}
