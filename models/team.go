package models

type Team struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"not null"`
	Acronym string `json:"acronym" gorm:"size:16"`
	LogoURL string `json:"logo_url"`

	Roster []TeamPlayer `json:"roster,omitempty" gorm:"foreignKey:TeamID"`

	Timestamps
}

// TeamPlayer is a roster membership row.
type TeamPlayer struct {
	ID       string `json:"id" gorm:"primaryKey"`
	TeamID   string `json:"team_id" gorm:"not null;index"`
	PlayerID string `json:"player_id" gorm:"not null;index"`

	Player Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`

	Timestamps
}
