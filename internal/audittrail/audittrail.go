// Package audittrail reconstructs a human-readable, append-only record
// of every mutating action: who did what to whom, phrased for a
// compliance report rather than a technical log line.
package audittrail

import (
	"context"
	"encoding/json"
	"time"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
)

// Action is the fixed enumeration of auditable action kinds.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionLogin            Action = "LOGIN"
	ActionLogout           Action = "LOGOUT"
	ActionStatusChange     Action = "STATUS_CHANGE"
	ActionAssignment       Action = "ASSIGNMENT"
	ActionEvidenceUpload   Action = "EVIDENCE_UPLOAD"
	ActionImport           Action = "IMPORT"
	ActionExport           Action = "EXPORT"
	ActionPermissionChange Action = "PERMISSION_CHANGE"
)

// Entry is one immutable audit record. Entries are created exactly once
// per logged action and never mutated or deleted by the application;
// retention is an operational concern outside this code.
type Entry struct {
	ID          id.AuditEntryID `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	ActorUserID *id.UserID      `json:"actor_user_id,omitempty"` // nil for system-initiated actions
	ActorEmail  string          `json:"actor_email,omitempty"`
	Action      Action          `json:"action"`
	Resource    string          `json:"resource"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Description string          `json:"description"`

	// PreviousValue stays nil for generic CRUD: the system does not
	// snapshot pre-images before a mutation runs. A true before/after
	// trail would need an explicit pre-read step in the handlers.
	PreviousValue json.RawMessage `json:"previous_value,omitempty"`
	NewValue      json.RawMessage `json:"new_value,omitempty"`

	IPAddress string        `json:"ip_address,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	SessionID *id.SessionID `json:"session_id,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// Store is the durable, append-only sink for audit entries. Writers never
// update or delete existing rows.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	ListByActor(ctx context.Context, userID id.UserID, limit int) ([]Entry, error)
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]Entry, error)
}

// Sink receives a copy of every committed entry, best-effort. Used to fan
// entries out to a message broker alongside the primary store.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Actor identifies who performed an audited action. A zero Actor records
// a system-initiated action.
type Actor struct {
	UserID    *id.UserID
	Email     string
	SessionID *id.SessionID
}

// ActorFromIdentity projects a resolved identity into an audit actor.
func ActorFromIdentity(identity *models.Identity) Actor {
	if identity == nil || identity.Anonymous() {
		return Actor{}
	}
	userID := identity.UserID
	sessionID := identity.SessionID
	return Actor{
		UserID:    &userID,
		Email:     identity.Email,
		SessionID: &sessionID,
	}
}
