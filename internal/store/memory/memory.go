package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/store"
	"shiftledger/backend/internal/xid"
)

type Store struct {
	mu                    sync.RWMutex
	shiftsByID            map[string]domain.Shift
	activeShiftByTerminal map[string]string
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.UserAccount
	catalog               []domain.CatalogItem
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     domain.Role
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      string(u.role),
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		shiftsByID:            make(map[string]domain.Shift),
		activeShiftByTerminal: make(map[string]string),
		auditLogs:             make([]domain.AuditLog, 0, 128),
		usersByUsername:       make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	s.catalog = []domain.CatalogItem{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery"},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery"},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy"},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery"},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage"},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery"},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage"},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage"},
		{SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack"},
		{SKU: "SKU-COKLAT-01", Name: "Coklat Batang", Category: "snack"},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household"},
		{SKU: "SKU-SHAMPOO-01", Name: "Shampoo Sachet", Category: "household"},
	}
	return s
}

// SaveShift stores a deep copy of shift. It refuses a second active shift on
// the same terminal and any save that would drop stored transactions.
func (s *Store) SaveShift(_ context.Context, shift domain.Shift) error {
	if strings.TrimSpace(shift.ID) == "" || strings.TrimSpace(shift.TerminalID) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.shiftsByID[shift.ID]; ok {
		if existing.TerminalID != shift.TerminalID {
			return fmt.Errorf("%w: terminal of shift %s cannot change", store.ErrInvalidTransaction, shift.ID)
		}
		if len(shift.Transactions) < len(existing.Transactions) {
			return fmt.Errorf("%w: save would drop transactions of shift %s", store.ErrInvalidTransaction, shift.ID)
		}
	}

	activeID, hasActive := s.activeShiftByTerminal[shift.TerminalID]
	if shift.IsActive() {
		if hasActive && activeID != shift.ID {
			return store.ErrActiveShiftExists
		}
		s.activeShiftByTerminal[shift.TerminalID] = shift.ID
	} else if hasActive && activeID == shift.ID {
		delete(s.activeShiftByTerminal, shift.TerminalID)
	}

	s.shiftsByID[shift.ID] = shift.Clone()
	return nil
}

func (s *Store) LoadShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := shift.Clone()
	return &out, nil
}

func (s *Store) FindActiveByTerminal(_ context.Context, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.activeShiftByTerminal[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift, ok := s.shiftsByID[shiftID]
	if !ok || !shift.IsActive() {
		return nil, store.ErrNotFound
	}
	out := shift.Clone()
	return &out, nil
}

// ListShiftsByDateRange returns shifts started in [from, to), oldest first.
func (s *Store) ListShiftsByDateRange(_ context.Context, from time.Time, to time.Time) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, 16)
	for _, shift := range s.shiftsByID {
		if shift.StartTime.Before(from) || !shift.StartTime.Before(to) {
			continue
		}
		result = append(result, shift.Clone())
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = string(domain.RoleCashier)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) RoleOf(_ context.Context, userID string) (domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(userID))]
	if !ok || !user.Active {
		return "", store.ErrNotFound
	}
	return domain.Role(user.Role), nil
}

func (s *Store) ListCatalog(_ context.Context) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CatalogItem(nil), s.catalog...), nil
}

// SetCatalog replaces the product display data. Used by tests and demo setup.
func (s *Store) SetCatalog(items []domain.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = append([]domain.CatalogItem(nil), items...)
}
