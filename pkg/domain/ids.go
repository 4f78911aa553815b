// Package domain defines typed identifiers shared across services.
//
// Every aggregate gets its own UUID-backed type so the compiler rejects
// cross-aggregate assignment (a UserID can never be passed where an
// EntityID is expected). Parse helpers enforce the trust-boundary
// invariant: IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "veritrail/pkg/domain-errors"
)

type (
	// UserID identifies a user account.
	UserID uuid.UUID

	// SessionID identifies an active login session.
	SessionID uuid.UUID

	// RoleID identifies a role definition.
	RoleID uuid.UUID

	// EntityID identifies an organizational entity (business unit).
	EntityID uuid.UUID

	// AuditEntryID identifies an audit log entry.
	AuditEntryID uuid.UUID

	// ObservationID identifies a compliance observation (finding).
	ObservationID uuid.UUID

	// EvidenceID identifies an evidence file attached to an observation.
	EvidenceID uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string     { return uuid.UUID(id).String() }
func (id RoleID) String() string        { return uuid.UUID(id).String() }
func (id EntityID) String() string      { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string  { return uuid.UUID(id).String() }
func (id ObservationID) String() string { return uuid.UUID(id).String() }
func (id EvidenceID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RoleID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's marshaling, so each ID
// implements TextMarshaler/TextUnmarshaler explicitly; without these,
// encoding/json would render the raw 16-byte array.

func (id UserID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id RoleID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id EntityID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id AuditEntryID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ObservationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EvidenceID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(raw []byte) error {
	parsed, err := ParseUserID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SessionID) UnmarshalText(raw []byte) error {
	parsed, err := ParseSessionID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RoleID) UnmarshalText(raw []byte) error {
	parsed, err := ParseRoleID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EntityID) UnmarshalText(raw []byte) error {
	parsed, err := ParseEntityID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AuditEntryID) UnmarshalText(raw []byte) error {
	parsed, err := parseUUID(string(raw), "audit_entry_id")
	if err != nil {
		return err
	}
	*id = AuditEntryID(parsed)
	return nil
}

func (id *ObservationID) UnmarshalText(raw []byte) error {
	parsed, err := ParseObservationID(string(raw))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EvidenceID) UnmarshalText(raw []byte) error {
	parsed, err := parseUUID(string(raw), "evidence_id")
	if err != nil {
		return err
	}
	*id = EvidenceID(parsed)
	return nil
}

// NewUserID returns a freshly generated user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a freshly generated session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewRoleID returns a freshly generated role ID.
func NewRoleID() RoleID { return RoleID(uuid.New()) }

// NewEntityID returns a freshly generated entity ID.
func NewEntityID() EntityID { return EntityID(uuid.New()) }

// NewAuditEntryID returns a freshly generated audit entry ID.
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// NewObservationID returns a freshly generated observation ID.
func NewObservationID() ObservationID { return ObservationID(uuid.New()) }

// NewEvidenceID returns a freshly generated evidence ID.
func NewEvidenceID() EvidenceID { return EvidenceID(uuid.New()) }

// parseUUID is the single gate for string-to-ID conversion. Rejects empty
// strings, malformed UUIDs, and the nil UUID.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

// ParseUserID parses and validates a user ID from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseSessionID parses and validates a session ID from its string form.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw, "session_id")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

// ParseRoleID parses and validates a role ID from its string form.
func ParseRoleID(raw string) (RoleID, error) {
	parsed, err := parseUUID(raw, "role_id")
	if err != nil {
		return RoleID{}, err
	}
	return RoleID(parsed), nil
}

// ParseEntityID parses and validates an entity ID from its string form.
func ParseEntityID(raw string) (EntityID, error) {
	parsed, err := parseUUID(raw, "entity_id")
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(parsed), nil
}

// ParseObservationID parses and validates an observation ID from its string form.
func ParseObservationID(raw string) (ObservationID, error) {
	parsed, err := parseUUID(raw, "observation_id")
	if err != nil {
		return ObservationID{}, err
	}
	return ObservationID(parsed), nil
}

// ParseEvidenceID parses and validates an evidence ID from its string form.
func ParseEvidenceID(raw string) (EvidenceID, error) {
	parsed, err := parseUUID(raw, "evidence_id")
	if err != nil {
		return EvidenceID{}, err
	}
	return EvidenceID(parsed), nil
}
