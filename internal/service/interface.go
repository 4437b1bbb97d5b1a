package service

import (
	"context"

	"shiftledger/backend/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_interface.go -package=mocks -source=interface.go

// RoleProvider resolves the role of a user id for close and edit checks.
type RoleProvider interface {
	RoleOf(ctx context.Context, userID string) (domain.Role, error)
}

// EventPublisher receives an event after each committed mutation. It must not
// block.
type EventPublisher interface {
	Enqueue(event domain.LedgerEvent)
}
