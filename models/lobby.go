package models

// Lobby is one in-game session created to play a match. A match can
// accumulate several lobby rows over time (restarts after technical issues)
// but at most one may be active.
type Lobby struct {
	ID       string `json:"id" gorm:"primaryKey"`
	MatchID  string `json:"match_id" gorm:"not null;index"`
	SlapID   int64  `json:"slap_id" gorm:"index"` // lobby id on the game platform
	Password string `json:"password"`
	Active   bool   `json:"active" gorm:"default:true;index"`
	TaskID   string `json:"task_id"` // monitor task handle, used for abort

	Match      Match       `json:"match,omitempty" gorm:"foreignKey:MatchID"`
	MatchDatas []MatchData `json:"match_datas,omitempty" gorm:"foreignKey:LobbyID"`

	Timestamps
}
