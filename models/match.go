package models

import "time"

// Matchtype holds the expected lobby configuration for matches played under a
// season/division. The validation engine compares ingested telemetry against
// these fields.
type Matchtype struct {
	ID             string `json:"id" gorm:"primaryKey"`
	Name           string `json:"name" gorm:"not null"`
	GameMode       string `json:"game_mode" gorm:"not null"` // e.g. "hockey"
	Region         string `json:"region" gorm:"not null"`
	Arena          string `json:"arena"`
	PeriodsEnabled bool   `json:"periods_enabled" gorm:"default:true"`
	MercyRule      bool   `json:"mercy_rule" gorm:"default:false"`
	PlayersPerTeam int    `json:"players_per_team" gorm:"default:3"`
	PlayerCount    int    `json:"player_count" gorm:"default:6"` // expected players per period
	MatchLengthSec int    `json:"match_length_sec" gorm:"default:300"`

	Timestamps
}

// ExpectedPeriods is 3 when periods are enabled, otherwise the whole match is
// a single scored segment.
func (mt *Matchtype) ExpectedPeriods() int {
	if mt.PeriodsEnabled {
		return 3
	}
	return 1
}

// Match is one scheduled fixture between two teams.
type Match struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	SeasonDivisionID string     `json:"season_division_id" gorm:"not null;index"`
	HomeTeamID       string     `json:"home_team_id" gorm:"not null;index"`
	AwayTeamID       string     `json:"away_team_id" gorm:"not null;index"`
	Week             int        `json:"week"`
	ScheduledTime    *time.Time `json:"scheduled_time,omitempty"`

	SeasonDivision SeasonDivision `json:"season_division,omitempty" gorm:"foreignKey:SeasonDivisionID"`
	HomeTeam       Team           `json:"home_team,omitempty" gorm:"foreignKey:HomeTeamID"`
	AwayTeam       Team           `json:"away_team,omitempty" gorm:"foreignKey:AwayTeamID"`
	Lobbies        []Lobby        `json:"lobbies,omitempty" gorm:"foreignKey:MatchID"`
	Reviews        []MatchReview  `json:"reviews,omitempty" gorm:"foreignKey:MatchID"`
	Result         *MatchResult   `json:"result,omitempty" gorm:"foreignKey:MatchID"`

	Timestamps
}

// MatchResult is the single authoritative outcome of a match. It is written
// exactly once, by the result finalizer, and only when a validation run
// raised zero flags.
type MatchResult struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	MatchID       string    `json:"match_id" gorm:"uniqueIndex;not null"`
	WinnerTeamID  string    `json:"winner_team_id"`
	LoserTeamID   string    `json:"loser_team_id"`
	HomeScore     int       `json:"home_score"`
	AwayScore     int       `json:"away_score"`
	Draw          bool      `json:"draw" gorm:"default:false"`
	Overtime      bool      `json:"overtime" gorm:"default:false"`
	Forfeit       bool      `json:"forfeit" gorm:"default:false"`
	CompletedDate time.Time `json:"completed_date"`

	Timestamps
}
