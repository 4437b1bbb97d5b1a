package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/store"
	"shiftledger/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// SaveShift upserts the shift row and appends any transactions and balance
// edits not yet stored, all in one transaction. The partial unique index on
// open shifts turns a second active shift per terminal into ErrActiveShiftExists.
func (s *Store) SaveShift(ctx context.Context, shift domain.Shift) error {
	if strings.TrimSpace(shift.ID) == "" || strings.TrimSpace(shift.TerminalID) == "" {
		return store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = pgTx.Rollback()
	}()

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO shifts (
			id, user_id, terminal_id, opening_balance_cents, closing_balance_cents,
			start_time, end_time, notes, closed_remotely, closed_by, close_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			closing_balance_cents = EXCLUDED.closing_balance_cents,
			end_time = EXCLUDED.end_time,
			notes = EXCLUDED.notes,
			closed_remotely = EXCLUDED.closed_remotely,
			closed_by = EXCLUDED.closed_by,
			close_reason = EXCLUDED.close_reason
		WHERE shifts.terminal_id = EXCLUDED.terminal_id
	`, shift.ID, shift.UserID, shift.TerminalID, shift.OpeningBalanceCents, nullInt64(shift.ClosingBalanceCents),
		shift.StartTime.UTC(), nullTime(shift.EndTime), shift.Notes, shift.ClosedRemotely, shift.ClosedBy, shift.CloseReason)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrActiveShiftExists
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: terminal of shift %s cannot change", store.ErrInvalidTransaction, shift.ID)
	}

	var stored int
	if err := pgTx.QueryRowContext(ctx, `SELECT count(*) FROM shift_transactions WHERE shift_id = $1`, shift.ID).Scan(&stored); err != nil {
		return err
	}
	if len(shift.Transactions) < stored {
		return fmt.Errorf("%w: save would drop transactions of shift %s", store.ErrInvalidTransaction, shift.ID)
	}

	for seq := stored; seq < len(shift.Transactions); seq++ {
		rec := shift.Transactions[seq]
		items, err := json.Marshal(itemsOrEmpty(rec.Items))
		if err != nil {
			return err
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO shift_transactions (
				shift_id, seq, id, type, amount_cents, occurred_at, user_id,
				payment_method, order_ref, ref_transaction_id, is_training_mode, items
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (shift_id, id) DO NOTHING
		`, shift.ID, seq, rec.ID, string(rec.Type), rec.AmountCents, rec.Timestamp.UTC(), rec.UserID,
			string(rec.PaymentMethod), rec.OrderRef, rec.RefTransactionID, rec.IsTrainingMode, items); err != nil {
			return err
		}
	}

	for seq, edit := range shift.BalanceEdits {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO shift_balance_edits (shift_id, seq, previous_cents, new_cents, editor_id, note, edited_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (shift_id, seq) DO NOTHING
		`, shift.ID, seq, edit.PreviousCents, edit.NewCents, edit.EditorID, edit.Note, edit.EditedAt.UTC()); err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

const shiftColumns = `
	id, user_id, terminal_id, opening_balance_cents, closing_balance_cents,
	start_time, end_time, notes, closed_remotely, closed_by, close_reason
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (domain.Shift, error) {
	var shift domain.Shift
	var closing sql.NullInt64
	var endTime sql.NullTime
	if err := row.Scan(
		&shift.ID,
		&shift.UserID,
		&shift.TerminalID,
		&shift.OpeningBalanceCents,
		&closing,
		&shift.StartTime,
		&endTime,
		&shift.Notes,
		&shift.ClosedRemotely,
		&shift.ClosedBy,
		&shift.CloseReason,
	); err != nil {
		return domain.Shift{}, err
	}
	shift.StartTime = shift.StartTime.UTC()
	if closing.Valid {
		v := closing.Int64
		shift.ClosingBalanceCents = &v
	}
	if endTime.Valid {
		at := endTime.Time.UTC()
		shift.EndTime = &at
	}
	shift.Transactions = []domain.TransactionRecord{}
	return shift, nil
}

func (s *Store) LoadShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadChildren(ctx, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) FindActiveByTerminal(ctx context.Context, terminalID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE terminal_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1
	`, terminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadChildren(ctx, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ListShiftsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Shift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC, id ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	shifts := make([]domain.Shift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range shifts {
		if err := s.loadChildren(ctx, &shifts[i]); err != nil {
			return nil, err
		}
	}
	return shifts, nil
}

func (s *Store) loadChildren(ctx context.Context, shift *domain.Shift) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, occurred_at, user_id, payment_method,
			order_ref, ref_transaction_id, is_training_mode, items
		FROM shift_transactions
		WHERE shift_id = $1
		ORDER BY seq ASC
	`, shift.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.TransactionRecord
		var txType, method string
		var items []byte
		if err := rows.Scan(&rec.ID, &txType, &rec.AmountCents, &rec.Timestamp, &rec.UserID, &method,
			&rec.OrderRef, &rec.RefTransactionID, &rec.IsTrainingMode, &items); err != nil {
			return err
		}
		rec.Type = domain.TransactionType(txType)
		rec.PaymentMethod = domain.PaymentMethod(method)
		rec.Timestamp = rec.Timestamp.UTC()
		if len(items) > 0 {
			if err := json.Unmarshal(items, &rec.Items); err != nil {
				return fmt.Errorf("decode items of %s: %w", rec.ID, err)
			}
			if len(rec.Items) == 0 {
				rec.Items = nil
			}
		}
		shift.Transactions = append(shift.Transactions, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	editRows, err := s.db.QueryContext(ctx, `
		SELECT previous_cents, new_cents, editor_id, note, edited_at
		FROM shift_balance_edits
		WHERE shift_id = $1
		ORDER BY seq ASC
	`, shift.ID)
	if err != nil {
		return err
	}
	defer editRows.Close()

	for editRows.Next() {
		var edit domain.BalanceEdit
		if err := editRows.Scan(&edit.PreviousCents, &edit.NewCents, &edit.EditorID, &edit.Note, &edit.EditedAt); err != nil {
			return err
		}
		edit.EditedAt = edit.EditedAt.UTC()
		shift.BalanceEdits = append(shift.BalanceEdits, edit)
	}
	return editRows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = string(domain.RoleCashier)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RoleOf(ctx context.Context, userID string) (domain.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM app_users WHERE username = $1 AND active = true
	`, strings.ToLower(strings.TrimSpace(userID))).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return domain.Role(role), nil
}

func (s *Store) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0, 128)
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.SKU, &item.Name, &item.Category); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func itemsOrEmpty(items []domain.TransactionItem) []domain.TransactionItem {
	if items == nil {
		return []domain.TransactionItem{}
	}
	return items
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
