package models

// League is the top-level competition container.
type League struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"not null"`
	Acronym string `json:"acronym" gorm:"size:16"`

	Seasons []Season `json:"seasons,omitempty" gorm:"foreignKey:LeagueID"`

	Timestamps
}

type Season struct {
	ID       string `json:"id" gorm:"primaryKey"`
	LeagueID string `json:"league_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"not null"`
	Number   int    `json:"number"`
	Current  bool   `json:"current" gorm:"default:false"`

	League League `json:"league,omitempty" gorm:"foreignKey:LeagueID"`

	Timestamps
}

type Division struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"not null"`
	Acronym string `json:"acronym" gorm:"size:16"`

	Timestamps
}

// SeasonDivision binds a Division into a Season and carries the match
// configuration (Matchtype) and the free-agent registry for that split.
type SeasonDivision struct {
	ID          string `json:"id" gorm:"primaryKey"`
	SeasonID    string `json:"season_id" gorm:"not null;index"`
	DivisionID  string `json:"division_id" gorm:"not null;index"`
	MatchtypeID string `json:"matchtype_id" gorm:"not null"`

	Season     Season      `json:"season,omitempty" gorm:"foreignKey:SeasonID"`
	Division   Division    `json:"division,omitempty" gorm:"foreignKey:DivisionID"`
	Matchtype  Matchtype   `json:"matchtype,omitempty" gorm:"foreignKey:MatchtypeID"`
	FreeAgents []FreeAgent `json:"free_agents,omitempty" gorm:"foreignKey:SeasonDivisionID"`

	Timestamps
}

// FreeAgent registers a player to a season/division without a fixed team.
// Free agents may appear on either side of a match without being flagged.
type FreeAgent struct {
	ID               string `json:"id" gorm:"primaryKey"`
	SeasonDivisionID string `json:"season_division_id" gorm:"not null;index"`
	PlayerID         string `json:"player_id" gorm:"not null;index"`

	Player Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`

	Timestamps
}
