package workers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"league-lobby-system/models"
	"league-lobby-system/slapapi"

	"gorm.io/gorm"
)

const (
	EndReasonMaxTime  = "Max time elapsed"
	EndReasonAborted  = "Aborted - Received abort request"
	EndReasonRecorded = "Match results recorded"
)

// MonitorResult is the terminal summary every monitor run produces.
type MonitorResult struct {
	EndReason    string `json:"end_reason"`
	LobbyDeleted bool   `json:"lobby_deleted"`
}

// LobbyAPI is the slice of the game platform client the monitor needs.
type LobbyAPI interface {
	GetLobby(ctx context.Context, lobbyID int64) (*slapapi.LobbyState, error)
	DeleteLobby(ctx context.Context, lobbyID int64) (int, error)
}

// StatIngester pulls and persists period telemetry for a lobby.
type StatIngester interface {
	IngestLobbyStats(ctx context.Context, lobbyID string) ([]string, error)
}

// MatchValidator runs the validation pipeline (and, on a clean pass, the
// result finalizer) for a match.
type MatchValidator interface {
	RunValidation(matchID string) (int, error)
}

// TaskRunner dispatches fire-and-forget background work.
type TaskRunner interface {
	Submit(name string, delay time.Duration, fn func(ctx context.Context) (any, error)) (string, error)
}

type MonitorConfig struct {
	CheckInterval time.Duration // tick length
	MaxTime       time.Duration // hard ceiling on a monitor run
}

// LobbyMonitor polls a live lobby until a terminal condition: max time
// elapsed, an abort request, or confirmation that the match result was
// durably recorded. It loads all state fresh from storage at start and holds
// nothing shared across runs.
type LobbyMonitor struct {
	DB       *gorm.DB
	API      LobbyAPI
	Ingest   StatIngester
	Validate MatchValidator
	Tasks    TaskRunner
	Config   MonitorConfig
}

func NewLobbyMonitor(db *gorm.DB, api LobbyAPI, ingest StatIngester, validate MatchValidator, tasks TaskRunner, cfg MonitorConfig) *LobbyMonitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.MaxTime <= 0 {
		cfg.MaxTime = 45 * time.Minute
	}
	return &LobbyMonitor{DB: db, API: api, Ingest: ingest, Validate: validate, Tasks: tasks, Config: cfg}
}

// Run executes the monitor loop for one lobby. Cancellation is advisory: the
// context is checked once per tick and in-flight platform calls are never
// interrupted by it.
func (m *LobbyMonitor) Run(ctx context.Context, lobbyID string) (*MonitorResult, error) {
	var lobby models.Lobby
	if err := m.DB.Preload("Match.SeasonDivision.Matchtype").First(&lobby, "id = ?", lobbyID).Error; err != nil {
		return nil, err
	}
	mt := lobby.Match.SeasonDivision.Matchtype

	// Poll the platform roughly once per expected period duration, not on
	// every tick.
	pollEvery := int(time.Duration(mt.MatchLengthSec) * time.Second / m.Config.CheckInterval)
	if pollEvery < 1 {
		pollEvery = 1
	}
	maxPeriod := mt.ExpectedPeriods()
	deadline := time.Now().Add(m.Config.MaxTime)

	log.Printf("[MONITOR] lobby %s (slap id %d): polling every %d ticks, max period %d",
		lobby.ID, lobby.SlapID, pollEvery, maxPeriod)

	var ingestInFlight atomic.Bool
	ticker := time.NewTicker(m.Config.CheckInterval)
	defer ticker.Stop()

	endReason := ""
	tick := 0
	for endReason == "" {
		select {
		case <-ctx.Done():
			endReason = EndReasonAborted
			continue
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			endReason = EndReasonAborted
			continue
		}
		if time.Now().After(deadline) {
			endReason = EndReasonMaxTime
			continue
		}
		if m.resultRecorded(lobby.MatchID) {
			endReason = EndReasonRecorded
			continue
		}

		tick++
		if tick%pollEvery != 0 {
			continue
		}

		// Detached context: an abort never severs an in-flight poll,
		// cancellation is observed at tick boundaries only.
		state, err := m.API.GetLobby(context.Background(), lobby.SlapID)
		if err != nil {
			// Transient platform failures are tolerated; terminal conditions
			// are checked independently each tick.
			log.Printf("[MONITOR] lobby %s: poll failed: %v", lobby.ID, err)
			continue
		}
		if state.CurrentPeriod > maxPeriod && ingestInFlight.CompareAndSwap(false, true) {
			// Probable completion. Pull stats on a worker so the poll loop
			// never blocks on ingestion.
			m.dispatchIngestion(&lobby, &ingestInFlight)
		}
	}

	deleted := m.teardown(&lobby)
	if endReason != EndReasonRecorded {
		// Last-chance recovery: whatever telemetry exists is pulled before
		// the monitor goes away. The maintenance sweep validates it later.
		if _, err := m.Ingest.IngestLobbyStats(context.Background(), lobby.ID); err != nil {
			log.Printf("[MONITOR] lobby %s: final ingestion failed: %v", lobby.ID, err)
		}
	}

	log.Printf("[MONITOR] lobby %s finished: %s (deleted=%t)", lobby.ID, endReason, deleted)
	return &MonitorResult{EndReason: endReason, LobbyDeleted: deleted}, nil
}

func (m *LobbyMonitor) dispatchIngestion(lobby *models.Lobby, inFlight *atomic.Bool) {
	matchID := lobby.MatchID
	lobbyID := lobby.ID
	_, err := m.Tasks.Submit("ingest-lobby-stats", 0, func(tctx context.Context) (any, error) {
		defer inFlight.Store(false)
		ids, err := m.Ingest.IngestLobbyStats(tctx, lobbyID)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			flags, verr := m.Validate.RunValidation(matchID)
			if verr != nil {
				log.Printf("[MONITOR] match %s: validation after ingest failed: %v", matchID, verr)
			} else {
				log.Printf("[MONITOR] match %s: validation raised %d flag(s)", matchID, flags)
			}
		}
		return ids, nil
	})
	if err != nil {
		inFlight.Store(false)
		log.Printf("[MONITOR] lobby %s: failed to dispatch ingestion: %v", lobbyID, err)
	}
}

// teardown deletes the in-game lobby and deactivates the row only if the
// platform confirmed the deletion.
func (m *LobbyMonitor) teardown(lobby *models.Lobby) bool {
	code, err := m.API.DeleteLobby(context.Background(), lobby.SlapID)
	if err != nil {
		log.Printf("[MONITOR] lobby %s: delete call failed: %v", lobby.ID, err)
		return false
	}
	deleted := code == http.StatusOK
	if deleted {
		if err := m.DB.Model(lobby).Update("active", false).Error; err != nil {
			log.Printf("[MONITOR] lobby %s: failed to deactivate: %v", lobby.ID, err)
		}
	} else {
		log.Printf("[MONITOR] lobby %s: platform returned %d on delete", lobby.ID, code)
	}
	return deleted
}

func (m *LobbyMonitor) resultRecorded(matchID string) bool {
	var count int64
	err := m.DB.Model(&models.MatchResult{}).Where("match_id = ?", matchID).Count(&count).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[MONITOR] match %s: result lookup failed: %v", matchID, err)
	}
	return count > 0
}
