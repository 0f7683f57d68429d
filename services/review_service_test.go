package services

import (
	"context"
	"testing"
	"time"

	"league-lobby-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestartLobbySeedsFromLatestPeriod(t *testing.T) {
	db := newTestDB(t)
	f := seedMatch(t, db, true)
	fp := newFakePlatform(t)
	lobbies := newLobbyServiceForTest(t, f, fp)
	svc := NewReviewService(db, lobbies)

	// The live lobby already produced a finished first period when the
	// technical issue hit.
	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", f.Lobby.ID).Update("slap_id", 555).Error)
	f.seedPeriod(t, 1, time.Now().Add(-10*time.Minute), periodOpts{homeScore: 2, awayScore: 1, winner: models.SideHome})

	match, err := lobbies.LoadMatch(f.Match.ID)
	require.NoError(t, err)

	replacement, err := svc.RestartLobby(context.Background(), match)
	require.NoError(t, err)
	require.NotNil(t, replacement)
	assert.NotEqual(t, f.Lobby.ID, replacement.ID)

	// Old lobby torn down.
	var old models.Lobby
	require.NoError(t, db.First(&old, "id = ?", f.Lobby.ID).Error)
	assert.False(t, old.Active)

	// Replacement resumes at period 2 with score and stats carried forward.
	fp.mu.Lock()
	require.Len(t, fp.created, 1)
	settings := fp.created[0]
	fp.mu.Unlock()
	assert.Equal(t, 2, settings.CurrentPeriod)
	require.NotNil(t, settings.InitialScore)
	assert.Equal(t, 2, settings.InitialScore.Home)
	assert.Equal(t, 1, settings.InitialScore.Away)
	require.Len(t, settings.InitialStats, 6)

	homeSeeds, awaySeeds := 0, 0
	for _, seed := range settings.InitialStats {
		switch seed.Team {
		case models.SideHome:
			homeSeeds++
		case models.SideAway:
			awaySeeds++
		}
	}
	assert.Equal(t, 3, homeSeeds)
	assert.Equal(t, 3, awaySeeds)
}

func TestRestartLobbyWithoutActiveLobbyStartsFresh(t *testing.T) {
	db := newTestDB(t)
	f := seedMatch(t, db, true)
	fp := newFakePlatform(t)
	lobbies := newLobbyServiceForTest(t, f, fp)
	svc := NewReviewService(db, lobbies)

	require.NoError(t, db.Model(&models.Lobby{}).Where("id = ?", f.Lobby.ID).Update("active", false).Error)

	match, err := lobbies.LoadMatch(f.Match.ID)
	require.NoError(t, err)

	replacement, err := svc.RestartLobby(context.Background(), match)
	require.NoError(t, err)
	require.NotNil(t, replacement)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.Len(t, fp.created, 1)
	assert.Equal(t, 1, fp.created[0].CurrentPeriod)
	assert.Nil(t, fp.created[0].InitialScore)
	assert.Empty(t, fp.created[0].InitialStats)
}
