package models

import "time"

const (
	ReviewTypeTechnical  = "Technical"
	ReviewTypeForfeit    = "Forfeit"
	ReviewTypeReport     = "Report"
	ReviewTypeAutoReview = "AutoReview"
)

// ReviewRaisedBySystem is the raised-by value for flags created by the
// validation engine.
const ReviewRaisedBySystem = "System"

// MatchReview is a reported anomaly or issue against a match ("flag").
// Append-only: rows are never deleted, a human reviewer resolves them in
// place.
type MatchReview struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	MatchID    string     `json:"match_id" gorm:"not null;index"`
	Type       string     `json:"type" gorm:"not null"`
	Reason     string     `json:"reason" gorm:"type:text"`
	RaisedBy   string     `json:"raised_by"`
	Resolved   bool       `json:"resolved" gorm:"default:false;index"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Timestamps
}
