package models

const (
	SourceSlapAPI   = "SlapAPI"
	SourceLogUpload = "LogUpload"
)

const (
	SideHome = "home"
	SideAway = "away"
)

// EndReasonOvertime is the telemetry end reason that marks an overtime finish.
const EndReasonOvertime = "Overtime"

// MatchData is one scored segment ("period") of gameplay pulled from
// telemetry or a manual log upload. Rows are immutable after creation except
// for the processed/accepted flags and the home/away swap correction.
// SlapMatchID carries a hard uniqueness constraint so that two concurrent
// ingestions of the same period can never double-insert.
type MatchData struct {
	ID             string `json:"id" gorm:"primaryKey"`
	LobbyID        string `json:"lobby_id" gorm:"not null;index"`
	Source         string `json:"source" gorm:"default:'SlapAPI'"`
	SlapMatchID    string `json:"slap_match_id" gorm:"uniqueIndex;not null"`
	Region         string `json:"region"`
	GameMode       string `json:"game_mode"`
	Arena          string `json:"arena"`
	HomeScore      int    `json:"home_score"`
	AwayScore      int    `json:"away_score"`
	Winner         string `json:"winner"` // "home", "away" or "none"
	EndReason      string `json:"end_reason"`
	CurrentPeriod  int    `json:"current_period"`
	PeriodsEnabled bool   `json:"periods_enabled"`
	MercyRule      bool   `json:"mercy_rule"`
	Processed      bool   `json:"processed" gorm:"default:false;index"`
	Accepted       bool   `json:"accepted" gorm:"default:false"`

	PlayerData []PlayerMatchData `json:"player_data,omitempty" gorm:"foreignKey:MatchDataID"`

	Timestamps
}

func (MatchData) TableName() string { return "match_data" }

// PlayerStats is the full per-period stat vector. It is a comparable struct
// so two rows can be checked for byte-identical stats (spectator pruning).
type PlayerStats struct {
	Goals         int `json:"goals"`
	Assists       int `json:"assists"`
	Saves         int `json:"saves"`
	Shots         int `json:"shots"`
	Passes        int `json:"passes"`
	Blocks        int `json:"blocks"`
	Takeaways     int `json:"takeaways"`
	Turnovers     int `json:"turnovers"`
	FaceoffsWon   int `json:"faceoffs_won"`
	FaceoffsLost  int `json:"faceoffs_lost"`
	PossessionSec int `json:"possession_sec"`
	GameSec       int `json:"game_sec"`
}

// PlayerMatchData is one player's statistics for one period. The row with
// StatTotal set is the canonical row aggregate stat queries read; the
// finalizer marks exactly one per player per match.
type PlayerMatchData struct {
	ID          string `json:"id" gorm:"primaryKey"`
	MatchDataID string `json:"match_data_id" gorm:"not null;index"`
	PlayerID    string `json:"player_id" gorm:"not null;index"`
	TeamID      string `json:"team_id" gorm:"index"`
	Period      int    `json:"period"`
	StatTotal   bool   `json:"stat_total" gorm:"default:false;index"`

	PlayerStats

	Player Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`

	Timestamps
}

func (PlayerMatchData) TableName() string { return "player_match_data" }
