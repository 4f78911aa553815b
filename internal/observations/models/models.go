// Package models defines the observation aggregate: compliance findings
// raised against an entity, with evidence files attached over their
// lifecycle.
package models

import (
	"time"

	id "veritrail/pkg/domain"
)

// Status is the observation lifecycle state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Severity ranks an observation's risk.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Observation is a single compliance finding. OwnerID is the user who
// raised it; EntityID binds it to one organizational entity when set.
type Observation struct {
	ID          id.ObservationID `json:"id"`
	EntityID    *id.EntityID     `json:"entity_id,omitempty"`
	OwnerID     id.UserID        `json:"owner_id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Severity    Severity         `json:"severity"`
	Status      Status           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Evidence is one file attached to an observation. The platform stores
// metadata only; file content lives in object storage, addressed by ID.
type Evidence struct {
	ID            id.EvidenceID    `json:"id"`
	ObservationID id.ObservationID `json:"observation_id"`
	FileName      string           `json:"file_name"`
	ContentType   string           `json:"content_type,omitempty"`
	SizeBytes     int64            `json:"size_bytes"`
	UploadedBy    id.UserID        `json:"uploaded_by"`
	UploadedAt    time.Time        `json:"uploaded_at"`
}
