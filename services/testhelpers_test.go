package services

import (
	"fmt"
	"testing"
	"time"

	"league-lobby-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.League{},
		&models.Season{},
		&models.Division{},
		&models.SeasonDivision{},
		&models.FreeAgent{},
		&models.Team{},
		&models.TeamPlayer{},
		&models.Player{},
		&models.Matchtype{},
		&models.Match{},
		&models.MatchResult{},
		&models.Lobby{},
		&models.MatchData{},
		&models.PlayerMatchData{},
		&models.MatchReview{},
	))
	return db
}

// fixture is a fully seeded match: league context, two teams with three
// rostered players each, one active lobby.
type fixture struct {
	DB          *gorm.DB
	Matchtype   *models.Matchtype
	Match       *models.Match
	Lobby       *models.Lobby
	HomeTeam    *models.Team
	AwayTeam    *models.Team
	HomePlayers []models.Player
	AwayPlayers []models.Player
	SeasonID    string
}

func seedMatch(t *testing.T, db *gorm.DB, periodsEnabled bool) *fixture {
	t.Helper()

	league := models.League{ID: uuid.NewString(), Name: "Oceanic Hockey League", Acronym: "OHL"}
	require.NoError(t, db.Create(&league).Error)
	season := models.Season{ID: uuid.NewString(), LeagueID: league.ID, Name: "Season 4", Number: 4, Current: true}
	require.NoError(t, db.Create(&season).Error)
	division := models.Division{ID: uuid.NewString(), Name: "Pro", Acronym: "PRO"}
	require.NoError(t, db.Create(&division).Error)

	mt := models.Matchtype{
		ID:             uuid.NewString(),
		Name:           "Pro 3v3",
		GameMode:       "hockey",
		Region:         "eu-west",
		Arena:          "Slapstadium",
		PeriodsEnabled: periodsEnabled,
		PlayersPerTeam: 3,
		PlayerCount:    6,
		MatchLengthSec: 300,
	}
	require.NoError(t, db.Create(&mt).Error)

	sd := models.SeasonDivision{
		ID:          uuid.NewString(),
		SeasonID:    season.ID,
		DivisionID:  division.ID,
		MatchtypeID: mt.ID,
	}
	require.NoError(t, db.Create(&sd).Error)

	home := seedTeam(t, db, "Polar Bears", "PB", []int64{101, 102, 103})
	away := seedTeam(t, db, "Ice Hawks", "IH", []int64{201, 202, 203})

	match := models.Match{
		ID:               uuid.NewString(),
		SeasonDivisionID: sd.ID,
		HomeTeamID:       home.ID,
		AwayTeamID:       away.ID,
		Week:             1,
	}
	require.NoError(t, db.Create(&match).Error)

	lobby := models.Lobby{ID: uuid.NewString(), MatchID: match.ID, SlapID: 9001, Active: true}
	require.NoError(t, db.Create(&lobby).Error)

	homePlayers := loadRosterPlayers(t, db, home.ID)
	awayPlayers := loadRosterPlayers(t, db, away.ID)

	return &fixture{
		DB:          db,
		Matchtype:   &mt,
		Match:       &match,
		Lobby:       &lobby,
		HomeTeam:    home,
		AwayTeam:    away,
		HomePlayers: homePlayers,
		AwayPlayers: awayPlayers,
		SeasonID:    season.ID,
	}
}

func seedTeam(t *testing.T, db *gorm.DB, name, acronym string, slapIDs []int64) *models.Team {
	t.Helper()
	team := models.Team{ID: uuid.NewString(), Name: name, Acronym: acronym}
	require.NoError(t, db.Create(&team).Error)
	for i, sid := range slapIDs {
		player := models.Player{ID: uuid.NewString(), SlapID: sid, Name: fmt.Sprintf("%s-%d", acronym, i+1)}
		require.NoError(t, db.Create(&player).Error)
		require.NoError(t, db.Create(&models.TeamPlayer{ID: uuid.NewString(), TeamID: team.ID, PlayerID: player.ID}).Error)
	}
	return &team
}

func loadRosterPlayers(t *testing.T, db *gorm.DB, teamID string) []models.Player {
	t.Helper()
	var memberships []models.TeamPlayer
	require.NoError(t, db.Where("team_id = ?", teamID).Order("created_at ASC").Preload("Player").Find(&memberships).Error)
	players := make([]models.Player, len(memberships))
	for i, m := range memberships {
		players[i] = m.Player
	}
	return players
}

// loadMatch reloads the fixture match with the preloads RunValidation uses.
func (f *fixture) loadMatch(t *testing.T) *models.Match {
	t.Helper()
	var match models.Match
	require.NoError(t, f.DB.
		Preload("SeasonDivision.Matchtype").
		Preload("SeasonDivision.FreeAgents").
		Preload("HomeTeam.Roster").
		Preload("AwayTeam.Roster").
		First(&match, "id = ?", f.Match.ID).Error)
	return &match
}

type periodOpts struct {
	homeScore int
	awayScore int
	winner    string
	endReason string
	region    string
	gameMode  string
	// swapped records every player row against the opposite team and flips
	// the score orientation, simulating a lobby set up backwards.
	swapped bool
}

// seedPeriod writes one MatchData row with a full set of six player rows.
// createdAt is set explicitly so creation order is deterministic.
func (f *fixture) seedPeriod(t *testing.T, period int, createdAt time.Time, opts periodOpts) *models.MatchData {
	t.Helper()
	if opts.region == "" {
		opts.region = f.Matchtype.Region
	}
	if opts.gameMode == "" {
		opts.gameMode = f.Matchtype.GameMode
	}

	md := models.MatchData{
		ID:             uuid.NewString(),
		LobbyID:        f.Lobby.ID,
		Source:         models.SourceSlapAPI,
		SlapMatchID:    uuid.NewString(),
		Region:         opts.region,
		GameMode:       opts.gameMode,
		Arena:          f.Matchtype.Arena,
		HomeScore:      opts.homeScore,
		AwayScore:      opts.awayScore,
		Winner:         opts.winner,
		EndReason:      opts.endReason,
		CurrentPeriod:  period,
		PeriodsEnabled: f.Matchtype.PeriodsEnabled,
	}
	md.CreatedAt = createdAt
	require.NoError(t, f.DB.Create(&md).Error)

	homeTeam, awayTeam := f.HomeTeam.ID, f.AwayTeam.ID
	if opts.swapped {
		homeTeam, awayTeam = awayTeam, homeTeam
	}
	for i, p := range f.HomePlayers {
		f.seedPlayerRow(t, md.ID, p.ID, homeTeam, period, i)
	}
	for i, p := range f.AwayPlayers {
		f.seedPlayerRow(t, md.ID, p.ID, awayTeam, period, i+3)
	}
	return &md
}

func (f *fixture) seedPlayerRow(t *testing.T, matchDataID, playerID, teamID string, period, salt int) *models.PlayerMatchData {
	t.Helper()
	row := models.PlayerMatchData{
		ID:          uuid.NewString(),
		MatchDataID: matchDataID,
		PlayerID:    playerID,
		TeamID:      teamID,
		Period:      period,
		PlayerStats: models.PlayerStats{
			Goals:   salt % 3,
			Shots:   salt + period,
			Passes:  salt * 2,
			GameSec: period * 300,
		},
	}
	require.NoError(t, f.DB.Create(&row).Error)
	return &row
}

func (f *fixture) reviewCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.DB.Model(&models.MatchReview{}).Where("match_id = ?", f.Match.ID).Count(&count).Error)
	return count
}

func (f *fixture) reviewReasons(t *testing.T) []string {
	t.Helper()
	var reasons []string
	require.NoError(t, f.DB.Model(&models.MatchReview{}).Where("match_id = ?", f.Match.ID).Pluck("reason", &reasons).Error)
	return reasons
}
