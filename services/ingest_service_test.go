package services

import (
	"context"
	"encoding/json"
	"testing"

	"league-lobby-system/models"
	"league-lobby-system/slapapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelemetry struct {
	matches []slapapi.TelemetryMatch
	err     error
	calls   int
}

func (f *fakeTelemetry) GetLobbyMatches(ctx context.Context, lobbyID int64) ([]slapapi.TelemetryMatch, error) {
	f.calls++
	return f.matches, f.err
}

// telemetryPeriod builds a period payload with all six fixture players.
func telemetryPeriod(f *fixture, id string, period, homeScore, awayScore int, winner string) slapapi.TelemetryMatch {
	tm := slapapi.TelemetryMatch{
		ID:             id,
		Region:         f.Matchtype.Region,
		GameMode:       f.Matchtype.GameMode,
		Arena:          f.Matchtype.Arena,
		PeriodsEnabled: f.Matchtype.PeriodsEnabled,
		CurrentPeriod:  period,
		Score:          slapapi.Score{Home: homeScore, Away: awayScore},
		Winner:         winner,
	}
	for _, p := range f.HomePlayers {
		tm.Players = append(tm.Players, slapapi.TelemetryPlayer{
			SlapID: p.SlapID, Name: p.Name, Team: models.SideHome,
			Stats: map[string]float64{"goals": 1, "game_time": float64(period * 300)},
		})
	}
	for _, p := range f.AwayPlayers {
		tm.Players = append(tm.Players, slapapi.TelemetryPlayer{
			SlapID: p.SlapID, Name: p.Name, Team: models.SideAway,
			Stats: map[string]float64{"saves": 2, "game_time": float64(period * 300)},
		})
	}
	return tm
}

func TestIngestLobbyStatsCreatesPeriods(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	api := &fakeTelemetry{matches: []slapapi.TelemetryMatch{
		telemetryPeriod(f, "slap-p1", 1, 3, 2, models.SideHome),
	}}
	svc := NewIngestService(f.DB, api)

	created, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	var md models.MatchData
	require.NoError(t, f.DB.First(&md, "id = ?", created[0]).Error)
	assert.Equal(t, f.Lobby.ID, md.LobbyID)
	assert.Equal(t, models.SourceSlapAPI, md.Source)
	assert.Equal(t, "slap-p1", md.SlapMatchID)
	assert.Equal(t, 3, md.HomeScore)
	assert.Equal(t, 2, md.AwayScore)
	assert.Equal(t, models.SideHome, md.Winner)
	assert.False(t, md.Processed)

	var rows []models.PlayerMatchData
	require.NoError(t, f.DB.Where("match_data_id = ?", md.ID).Find(&rows).Error)
	require.Len(t, rows, 6)
	for _, row := range rows {
		if row.Goals == 1 {
			assert.Equal(t, f.HomeTeam.ID, row.TeamID)
		} else {
			assert.Equal(t, f.AwayTeam.ID, row.TeamID)
			assert.Equal(t, 2, row.Saves)
		}
		assert.Equal(t, 300, row.GameSec)
		assert.Equal(t, 1, row.Period)
	}
}

func TestIngestLobbyStatsIsIdempotent(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	api := &fakeTelemetry{matches: []slapapi.TelemetryMatch{
		telemetryPeriod(f, "slap-p1", 1, 3, 2, models.SideHome),
	}}
	svc := NewIngestService(f.DB, api)

	first, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	var periods, players int64
	require.NoError(t, f.DB.Model(&models.MatchData{}).Count(&periods).Error)
	require.NoError(t, f.DB.Model(&models.PlayerMatchData{}).Count(&players).Error)
	assert.EqualValues(t, 1, periods)
	assert.EqualValues(t, 6, players)
}

func TestIngestAutoCreatesUnknownPlayer(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	tm := telemetryPeriod(f, "slap-p1", 1, 1, 0, models.SideHome)
	tm.Players = append(tm.Players, slapapi.TelemetryPlayer{
		SlapID: 31337, Name: "walk-on", Team: models.SideAway,
		Stats: map[string]float64{"shots": 4},
	})
	api := &fakeTelemetry{matches: []slapapi.TelemetryMatch{tm}}
	svc := NewIngestService(f.DB, api)

	_, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.NoError(t, err)

	var player models.Player
	require.NoError(t, f.DB.First(&player, "slap_id = ?", int64(31337)).Error)
	assert.Equal(t, "walk-on", player.Name)
	require.NotNil(t, player.FirstSeasonID)
	assert.Equal(t, f.SeasonID, *player.FirstSeasonID)
}

func TestIngestWrapsPlatformErrors(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	api := &fakeTelemetry{err: &slapapi.APIError{StatusCode: 503, Body: "maintenance"}}
	svc := NewIngestService(f.DB, api)

	_, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.ErrorIs(t, err, ErrTelemetryUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestIngestRollsBackPartialPeriod(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	api := &fakeTelemetry{matches: []slapapi.TelemetryMatch{
		telemetryPeriod(f, "slap-p1", 1, 3, 2, models.SideHome),
	}}
	svc := NewIngestService(f.DB, api)

	// Player rows cannot be written: the whole period must roll back rather
	// than strand a MatchData row later ingestions would skip.
	require.NoError(t, f.DB.Migrator().DropTable(&models.PlayerMatchData{}))
	_, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.Error(t, err)

	var stranded int64
	require.NoError(t, f.DB.Model(&models.MatchData{}).Count(&stranded).Error)
	assert.EqualValues(t, 0, stranded)

	// Once the fault clears, re-ingestion picks the period up in full.
	require.NoError(t, f.DB.AutoMigrate(&models.PlayerMatchData{}))
	created, err := svc.IngestLobbyStats(context.Background(), f.Lobby.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	var players int64
	require.NoError(t, f.DB.Model(&models.PlayerMatchData{}).Count(&players).Error)
	assert.EqualValues(t, 6, players)
}

func TestIngestUploadedLog(t *testing.T) {
	f := seedMatch(t, newTestDB(t), false)
	svc := NewIngestService(f.DB, &fakeTelemetry{})

	payload, err := json.Marshal([]slapapi.TelemetryMatch{
		telemetryPeriod(f, "log-p1", 1, 2, 2, ""),
	})
	require.NoError(t, err)

	created, err := svc.IngestUploadedLog(f.Lobby.ID, payload)
	require.NoError(t, err)
	require.Len(t, created, 1)

	var md models.MatchData
	require.NoError(t, f.DB.First(&md, "id = ?", created[0]).Error)
	assert.Equal(t, models.SourceLogUpload, md.Source)

	_, err = svc.IngestUploadedLog(f.Lobby.ID, []byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid match log")
}
