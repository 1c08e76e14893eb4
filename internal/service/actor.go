package service

import (
	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// SystemActor is used by webhooks and workers.
func SystemActor() Actor {
	return Actor{Role: domain.RoleService}
}

// IsService reports whether the caller acts for the platform itself.
func (a Actor) IsService() bool {
	return a.Role == domain.RoleService
}

// Is reports whether the caller is the given user or the platform.
func (a Actor) Is(userID uuid.UUID) bool {
	return a.IsService() || (a.UserID != uuid.Nil && a.UserID == userID)
}

// ID returns the user id for audit rows, nil for the platform.
func (a Actor) ID() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
