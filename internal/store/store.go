package store

import (
	"context"
	"errors"
	"time"

	"shiftledger/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrActiveShiftExists  = errors.New("terminal already has an active shift")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// ShiftStore persists whole shift aggregates. SaveShift replaces the stored
// shift with the given one; transactions are append-only, so a save never
// removes records a previous save wrote.
type ShiftStore interface {
	SaveShift(ctx context.Context, shift domain.Shift) error
	LoadShift(ctx context.Context, id string) (*domain.Shift, error)
	FindActiveByTerminal(ctx context.Context, terminalID string) (*domain.Shift, error)
	ListShiftsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Shift, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	// RoleOf returns ErrNotFound for unknown users.
	RoleOf(ctx context.Context, userID string) (domain.Role, error)
}

type CatalogStore interface {
	ListCatalog(ctx context.Context) ([]domain.CatalogItem, error)
}

type Repository interface {
	ShiftStore
	AuditStore
	UserStore
	CatalogStore
}
