package models

// Player is a league participant. Rows can be auto-created by stat ingestion
// the first time an unknown game-platform id shows up in telemetry; such rows
// carry only the external id, the reported name and the season they first
// appeared in.
type Player struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	SlapID        int64   `json:"slap_id" gorm:"uniqueIndex;not null"` // game platform id
	Name          string  `json:"name" gorm:"index"`
	FirstSeasonID *string `json:"first_season_id,omitempty" gorm:"index"`

	Timestamps
}
