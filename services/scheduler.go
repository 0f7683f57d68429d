// services/scheduler.go
package services

import (
	"log"
	"time"

	"league-lobby-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the crash-recovery sweeps: validate matches
// with ingested-but-unvalidated data whose lobby is no longer active (the
// monitor died or the final ingestion landed after its validation chance),
// and deactivate lobby rows whose monitor is gone.
func (s *ValidationService) StartMaintenanceScheduler(tasks *TaskManager) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: reap lobbies whose monitor finished or was lost across a
	// restart but never deactivated the row
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() { s.ReapStaleLobbies(tasks) }),
	)

	// Every minute: validate orphaned match data
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() { s.ValidateOrphanedMatches() }),
	)
}

// ReapStaleLobbies deactivates active lobby rows whose monitor task is gone
// (lost across a restart) or already finished without tearing the row down.
func (s *ValidationService) ReapStaleLobbies(tasks *TaskManager) {
	var lobbies []models.Lobby
	if err := s.DB.Where("active = ? AND task_id <> ''", true).Find(&lobbies).Error; err != nil {
		log.Printf("[SWEEP] DB error: %v", err)
		return
	}
	for _, lobby := range lobbies {
		status, err := tasks.Result(lobby.TaskID)
		if err == nil && !status.Ready {
			continue // monitor still pending or running
		}
		if err := s.DB.Model(&models.Lobby{}).Where("id = ?", lobby.ID).Update("active", false).Error; err != nil {
			log.Printf("[SWEEP] failed to deactivate lobby %s: %v", lobby.ID, err)
			continue
		}
		log.Printf("[SWEEP] deactivated stale lobby %s (monitor gone)", lobby.ID)
	}
}

// ValidateOrphanedMatches runs validation for matches that have unprocessed
// match data but no active lobby left to drive it.
func (s *ValidationService) ValidateOrphanedMatches() {
	var matchIDs []string
	err := s.DB.Table("match_data").
		Joins("JOIN lobbies ON lobbies.id = match_data.lobby_id").
		Where("match_data.processed = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM lobbies l2 WHERE l2.match_id = lobbies.match_id AND l2.active)").
		Distinct().
		Pluck("lobbies.match_id", &matchIDs).Error
	if err != nil {
		log.Printf("[SWEEP] DB error: %v", err)
		return
	}

	for _, id := range matchIDs {
		flags, err := s.RunValidation(id)
		if err != nil {
			log.Printf("[SWEEP] match %s validation failed: %v", id, err)
			continue
		}
		log.Printf("✅ [SWEEP] validated match %s (%d flags)", id, flags)
	}
}
