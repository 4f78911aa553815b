// Package resource defines the closed set of resource types the
// authorization engine and audit synthesizer can dereference, together
// with the loaders that project a stored instance into the minimal shape
// both need: owner, entity binding, and display name.
//
// The set is deliberately closed. Dispatching on an arbitrary
// resource-name string would make a missing loader a silent runtime
// no-op; with an enum and an explicit switch, adding a type without
// wiring its loader is caught immediately.
package resource

import (
	"context"

	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Type identifies one resource kind the platform tracks.
type Type string

const (
	TypeObservation Type = "observation"
	TypeAudit       Type = "audit"
	TypeEvidence    Type = "evidence"
	TypeDocument    Type = "document"
	TypeUser        Type = "user"
	TypeEntity      Type = "entity"
	TypeRole        Type = "role"
)

// ParseType maps a resource-name string onto the closed type set.
func ParseType(raw string) (Type, error) {
	switch t := Type(raw); t {
	case TypeObservation, TypeAudit, TypeEvidence, TypeDocument, TypeUser, TypeEntity, TypeRole:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown resource type: "+raw)
	}
}

// Record is the minimal projection of a stored resource instance.
// OwnerID is the zero value when the type has no ownership notion;
// EntityID is nil when the instance is not bound to an entity.
type Record struct {
	ID          string
	OwnerID     id.UserID
	EntityID    *id.EntityID
	DisplayName string
}

// LoadFunc loads one instance of a single resource type. Implementations
// return sentinel.ErrNotFound when the instance does not exist.
type LoadFunc func(ctx context.Context, rawID string) (Record, error)

// Loaders carries one loader per resource type. A nil field means
// instances of that type cannot be dereferenced (no ownership fallback,
// no name lookup); the type itself remains valid for permission checks.
type Loaders struct {
	Observation LoadFunc
	Audit       LoadFunc
	Evidence    LoadFunc
	Document    LoadFunc
	User        LoadFunc
	Entity      LoadFunc
	Role        LoadFunc
}

// Registry resolves resource instances through the per-type loaders.
type Registry struct {
	loaders Loaders
}

func NewRegistry(loaders Loaders) *Registry {
	return &Registry{loaders: loaders}
}

func (r *Registry) loaderFor(t Type) LoadFunc {
	switch t {
	case TypeObservation:
		return r.loaders.Observation
	case TypeAudit:
		return r.loaders.Audit
	case TypeEvidence:
		return r.loaders.Evidence
	case TypeDocument:
		return r.loaders.Document
	case TypeUser:
		return r.loaders.User
	case TypeEntity:
		return r.loaders.Entity
	case TypeRole:
		return r.loaders.Role
	default:
		return nil
	}
}

// Load dereferences one resource instance.
func (r *Registry) Load(ctx context.Context, t Type, rawID string) (Record, error) {
	load := r.loaderFor(t)
	if load == nil {
		return Record{}, dErrors.New(dErrors.CodeInvalidInput, "resource type cannot be dereferenced: "+string(t))
	}
	return load(ctx, rawID)
}

// DisplayName resolves a human-readable name for an instance, reporting
// false when the type has no loader, the instance is missing, or the
// loaded record carries no name.
func (r *Registry) DisplayName(ctx context.Context, t Type, rawID string) (string, bool) {
	load := r.loaderFor(t)
	if load == nil {
		return "", false
	}
	record, err := load(ctx, rawID)
	if err != nil || record.DisplayName == "" {
		return "", false
	}
	return record.DisplayName, true
}
