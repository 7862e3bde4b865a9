package world

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDuplicateIdentity = errors.New("world: identity already assigned")
	ErrNilIdentity       = errors.New("world: nil identity")
	ErrEntityNotAlive    = errors.New("world: entity not alive")
)

// IdentityRegistry maps entity handles to stable 128-bit identities and back.
// An identity is bound before the entity is visible to any system and released
// only after every observer has seen the entity leave.
type IdentityRegistry struct {
	byEntity map[EntityID]uuid.UUID
	byUUID   map[uuid.UUID]EntityID
}

func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{
		byEntity: make(map[EntityID]uuid.UUID, 256),
		byUUID:   make(map[uuid.UUID]EntityID, 256),
	}
}

// Assign binds u to id.
//
// Parameters:
//   - id: the entity handle
//   - u: the identity to bind, must not be uuid.Nil
//
// Returns:
//   - error: ErrNilIdentity, or ErrDuplicateIdentity if either side is already bound
func (r *IdentityRegistry) Assign(id EntityID, u uuid.UUID) error {
	if u == uuid.Nil {
		return ErrNilIdentity
	}
	if _, ok := r.byUUID[u]; ok {
		return ErrDuplicateIdentity
	}
	if _, ok := r.byEntity[id]; ok {
		return ErrDuplicateIdentity
	}
	r.byEntity[id] = u
	r.byUUID[u] = id
	return nil
}

// Identity resolves the stable identity of an entity.
func (r *IdentityRegistry) Identity(id EntityID) (uuid.UUID, bool) {
	u, ok := r.byEntity[id]
	return u, ok
}

// Entity resolves the entity currently bound to an identity.
func (r *IdentityRegistry) Entity(u uuid.UUID) (EntityID, bool) {
	id, ok := r.byUUID[u]
	return id, ok
}

// Release unbinds the entity's identity. Releasing an unbound entity is a no-op.
func (r *IdentityRegistry) Release(id EntityID) {
	u, ok := r.byEntity[id]
	if !ok {
		return
	}
	delete(r.byEntity, id)
	delete(r.byUUID, u)
}

func (r *IdentityRegistry) Len() int {
	return len(r.byEntity)
}
