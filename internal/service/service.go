package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/ledger"
	"shiftledger/backend/internal/lock"
	"shiftledger/backend/internal/store"
	"shiftledger/backend/internal/xid"
)

const defaultLockWait = 2 * time.Second

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Roles    RoleProvider
	Engine   *ledger.Engine
	Locker   lock.Locker
	Events   EventPublisher
	LockWait time.Duration
	Now      func() time.Time
}

// Service is the shift manager. Every mutation of one shift runs under the
// "shift:<id>" lock and opening runs under "terminal:<id>", so unrelated
// shifts never wait on each other. Mutations work on a clone and commit with
// a single SaveShift, so a failed or timed-out call leaves nothing behind.
type Service struct {
	repo     store.Repository
	roles    RoleProvider
	engine   *ledger.Engine
	locker   lock.Locker
	events   EventPublisher
	lockWait time.Duration
	now      func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:     repo,
		roles:    opts.Roles,
		engine:   opts.Engine,
		locker:   opts.Locker,
		events:   opts.Events,
		lockWait: opts.LockWait,
		now:      opts.Now,
	}
	if s.roles == nil {
		s.roles = repo
	}
	if s.engine == nil {
		s.engine = ledger.NewEngine(ledger.DefaultToleranceCents)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.lockWait <= 0 {
		s.lockWait = defaultLockWait
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) Engine() *ledger.Engine {
	return s.engine
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.TerminalID == "" || req.UserID == "" {
		return domain.ShiftResponse{}, fmt.Errorf("%w: terminal_id and user_id are required", domain.ErrInvalidRequest)
	}
	if req.OpeningBalanceCents < 0 {
		return domain.ShiftResponse{}, fmt.Errorf("%w: opening balance %d", domain.ErrInvalidBalance, req.OpeningBalanceCents)
	}

	release, err := s.acquire(ctx, "terminal:"+req.TerminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	defer release()

	active, err := s.repo.FindActiveByTerminal(ctx, req.TerminalID)
	switch {
	case err == nil:
		return domain.ShiftResponse{}, fmt.Errorf("%w: terminal %s has shift %s", domain.ErrShiftAlreadyOpen, req.TerminalID, active.ID)
	case !errors.Is(err, store.ErrNotFound):
		return domain.ShiftResponse{}, err
	}

	shift := domain.Shift{
		ID:                  xid.New("shift"),
		UserID:              req.UserID,
		TerminalID:          req.TerminalID,
		OpeningBalanceCents: req.OpeningBalanceCents,
		StartTime:           s.now(),
		Transactions:        []domain.TransactionRecord{},
	}
	if err := s.repo.SaveShift(ctx, shift); err != nil {
		if errors.Is(err, store.ErrActiveShiftExists) {
			return domain.ShiftResponse{}, fmt.Errorf("%w: terminal %s", domain.ErrShiftAlreadyOpen, req.TerminalID)
		}
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_open", shift.ID, fmt.Sprintf("terminal=%s,user=%s,opening=%d", shift.TerminalID, shift.UserID, shift.OpeningBalanceCents))
	s.publish(ctx, domain.EventShiftOpened, shift, map[string]any{"opening_balance_cents": shift.OpeningBalanceCents})

	return domain.ShiftResponse{Shift: shift}, nil
}

// RecordTransaction appends one record to an active shift. A caller-supplied
// id that is already on the shift makes the call a no-op, so clients may
// retry after a timeout.
func (s *Service) RecordTransaction(ctx context.Context, shiftID string, req domain.RecordTransactionRequest) (domain.RecordTransactionResponse, error) {
	rec := domain.TransactionRecord{
		ID:               strings.TrimSpace(req.ID),
		Type:             req.Type,
		AmountCents:      req.AmountCents,
		PaymentMethod:    req.PaymentMethod,
		OrderRef:         strings.TrimSpace(req.OrderRef),
		RefTransactionID: strings.TrimSpace(req.RefTransactionID),
		IsTrainingMode:   req.IsTrainingMode,
	}
	if len(req.Items) > 0 {
		rec.Items = append([]domain.TransactionItem(nil), req.Items...)
	}
	if err := ledger.ValidateRecord(rec); err != nil {
		return domain.RecordTransactionResponse{}, err
	}

	release, err := s.acquire(ctx, "shift:"+shiftID)
	if err != nil {
		return domain.RecordTransactionResponse{}, err
	}
	defer release()

	shift, err := s.loadShift(ctx, shiftID)
	if err != nil {
		return domain.RecordTransactionResponse{}, err
	}
	if !shift.IsActive() {
		return domain.RecordTransactionResponse{}, fmt.Errorf("%w: %s", domain.ErrShiftClosed, shiftID)
	}

	if rec.ID != "" {
		if _, exists := shift.FindTransaction(rec.ID); exists {
			return domain.RecordTransactionResponse{ShiftID: shift.ID, TransactionID: rec.ID, TransactionCount: len(shift.Transactions)}, nil
		}
	} else {
		rec.ID = xid.New("tx")
	}
	if rec.Type == domain.TxTypeVoid && rec.RefTransactionID != "" {
		if err := checkVoidable(shift, &rec); err != nil {
			return domain.RecordTransactionResponse{}, err
		}
	}

	rec.UserID = shift.UserID
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		rec.UserID = actor.Username
	}
	rec.Timestamp = s.now()
	if n := len(shift.Transactions); n > 0 && rec.Timestamp.Before(shift.Transactions[n-1].Timestamp) {
		rec.Timestamp = shift.Transactions[n-1].Timestamp
	}

	updated := shift.Clone()
	updated.Transactions = append(updated.Transactions, rec)
	if err := s.repo.SaveShift(ctx, updated); err != nil {
		return domain.RecordTransactionResponse{}, err
	}

	switch rec.Type {
	case domain.TxTypeVoid:
		s.logAudit(ctx, "transaction_void", shift.ID, fmt.Sprintf("tx=%s,ref=%s,amount=%d,training=%t", rec.ID, rec.RefTransactionID, rec.AmountCents, rec.IsTrainingMode))
	case domain.TxTypeNoSale:
		s.logAudit(ctx, "drawer_no_sale", shift.ID, fmt.Sprintf("tx=%s,training=%t", rec.ID, rec.IsTrainingMode))
	}
	s.publish(ctx, domain.EventTransactionRecorded, updated, rec)

	return domain.RecordTransactionResponse{
		ShiftID:          shift.ID,
		TransactionID:    rec.ID,
		TransactionCount: len(updated.Transactions),
	}, nil
}

// checkVoidable accepts a void only against a live record of the same mode,
// for no more than the original amount. An empty tender inherits the original's.
func checkVoidable(shift domain.Shift, void *domain.TransactionRecord) error {
	refID := void.RefTransactionID
	orig, ok := shift.FindTransaction(refID)
	if !ok {
		return fmt.Errorf("%w: %w: %s", domain.ErrInvalidRecord, domain.ErrUnknownTransaction, refID)
	}
	if orig.Type == domain.TxTypeVoid {
		return fmt.Errorf("%w: %s is itself a void", domain.ErrInvalidRecord, refID)
	}
	if orig.IsTrainingMode != void.IsTrainingMode {
		return fmt.Errorf("%w: training mode of void does not match %s", domain.ErrInvalidRecord, refID)
	}
	if void.AmountCents > orig.AmountCents {
		return fmt.Errorf("%w: void of %d exceeds %s amount %d", domain.ErrInvalidRecord, void.AmountCents, refID, orig.AmountCents)
	}
	if void.PaymentMethod == "" {
		void.PaymentMethod = orig.PaymentMethod
	} else if void.PaymentMethod.IsCash() != orig.PaymentMethod.IsCash() || (!orig.PaymentMethod.IsCash() && void.PaymentMethod != orig.PaymentMethod) {
		return fmt.Errorf("%w: void tender %q does not match %s tender %q", domain.ErrInvalidRecord, void.PaymentMethod, refID, orig.PaymentMethod)
	}
	for _, rec := range shift.Transactions {
		if rec.Type == domain.TxTypeVoid && rec.RefTransactionID == refID && rec.IsTrainingMode == orig.IsTrainingMode {
			return fmt.Errorf("%w: %s already voided by %s", domain.ErrInvalidRecord, refID, rec.ID)
		}
	}
	return nil
}

// CloseShift closes a shift on behalf of its owner or a manager/admin.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.CloseShiftResponse, error) {
	req.OperatorID = strings.TrimSpace(req.OperatorID)
	if req.OperatorID == "" {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: operator_id is required", domain.ErrInvalidRequest)
	}
	if req.ClosingBalanceCents < 0 {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: closing balance %d", domain.ErrInvalidBalance, req.ClosingBalanceCents)
	}

	release, err := s.acquire(ctx, "shift:"+req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	defer release()

	shift, err := s.loadShift(ctx, req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if !shift.IsActive() {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s", domain.ErrShiftClosed, req.ShiftID)
	}
	if req.OperatorID != shift.UserID {
		role, err := s.roleOf(ctx, req.OperatorID)
		if err != nil {
			return domain.CloseShiftResponse{}, err
		}
		if !role.CanOverride() {
			return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s is not the owner of %s", domain.ErrUnauthorizedClose, req.OperatorID, shift.ID)
		}
	}

	updated := s.closed(shift, req.ClosingBalanceCents, req.OperatorID)
	updated.Notes = appendNote(updated.Notes, req.Notes)

	resp, err := s.commitClose(ctx, updated)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	s.logAudit(ctx, "shift_close", shift.ID, fmt.Sprintf("closing=%d,expected=%d,status=%s", req.ClosingBalanceCents, resp.Reconciliation.ExpectedClosingCents, resp.Reconciliation.Status))
	s.publish(ctx, domain.EventShiftClosed, updated, resp.Reconciliation)
	return resp, nil
}

// RemoteCloseShift lets a manager close someone else's shift, e.g. a drawer
// left open overnight. The role is checked before the reason.
func (s *Service) RemoteCloseShift(ctx context.Context, req domain.RemoteCloseRequest) (domain.CloseShiftResponse, error) {
	req.ManagerID = strings.TrimSpace(req.ManagerID)
	if req.ManagerID == "" {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: manager_id is required", domain.ErrInvalidRequest)
	}
	if req.ClosingBalanceCents < 0 {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: closing balance %d", domain.ErrInvalidBalance, req.ClosingBalanceCents)
	}
	role, err := s.roleOf(ctx, req.ManagerID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if !role.CanOverride() {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s has role %q", domain.ErrUnauthorizedClose, req.ManagerID, role)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.CloseShiftResponse{}, domain.ErrReasonRequired
	}

	release, err := s.acquire(ctx, "shift:"+req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	defer release()

	shift, err := s.loadShift(ctx, req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if !shift.IsActive() {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s", domain.ErrShiftClosed, req.ShiftID)
	}
	if shift.UserID == req.ManagerID {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: owner must use a normal close", domain.ErrUnauthorizedClose)
	}

	updated := s.closed(shift, req.ClosingBalanceCents, req.ManagerID)
	updated.ClosedRemotely = true
	updated.CloseReason = reason
	updated.Notes = appendNote(updated.Notes, "remote close: "+reason)

	resp, err := s.commitClose(ctx, updated)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	s.logAudit(ctx, "shift_remote_close", shift.ID, fmt.Sprintf("closed_by=%s,closing=%d,status=%s,reason=%s", req.ManagerID, req.ClosingBalanceCents, resp.Reconciliation.Status, reason))
	s.publish(ctx, domain.EventShiftRemoteClosed, updated, resp.Reconciliation)
	return resp, nil
}

// EditClosedShiftBalance corrects the counted closing balance after the fact.
// The previous value, editor and time are kept in BalanceEdits.
func (s *Service) EditClosedShiftBalance(ctx context.Context, req domain.BalanceEditRequest) (domain.CloseShiftResponse, error) {
	req.EditorID = strings.TrimSpace(req.EditorID)
	if req.EditorID == "" {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: editor_id is required", domain.ErrInvalidRequest)
	}
	if req.NewBalanceCents < 0 {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: new balance %d", domain.ErrInvalidBalance, req.NewBalanceCents)
	}
	role, err := s.roleOf(ctx, req.EditorID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if !role.CanOverride() {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s has role %q", domain.ErrUnauthorizedEdit, req.EditorID, role)
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return domain.CloseShiftResponse{}, domain.ErrReasonRequired
	}

	release, err := s.acquire(ctx, "shift:"+req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	defer release()

	shift, err := s.loadShift(ctx, req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if shift.IsActive() {
		return domain.CloseShiftResponse{}, fmt.Errorf("%w: %s", domain.ErrShiftStillOpen, req.ShiftID)
	}

	var previous int64
	if shift.ClosingBalanceCents != nil {
		previous = *shift.ClosingBalanceCents
	}
	updated := shift.Clone()
	newBalance := req.NewBalanceCents
	updated.ClosingBalanceCents = &newBalance
	updated.BalanceEdits = append(updated.BalanceEdits, domain.BalanceEdit{
		PreviousCents: previous,
		NewCents:      newBalance,
		EditorID:      req.EditorID,
		Note:          note,
		EditedAt:      s.now(),
	})
	updated.Notes = appendNote(updated.Notes, fmt.Sprintf("balance %d -> %d by %s: %s", previous, newBalance, req.EditorID, note))

	resp, err := s.commitClose(ctx, updated)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	s.logAudit(ctx, "shift_balance_edit", shift.ID, fmt.Sprintf("previous=%d,new=%d,editor=%s,note=%s", previous, newBalance, req.EditorID, note))
	s.publish(ctx, domain.EventShiftBalanceEdited, updated, updated.BalanceEdits[len(updated.BalanceEdits)-1])
	return resp, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (domain.ShiftResponse, error) {
	shift, err := s.loadShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: shift}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, terminalID string) (domain.ShiftResponse, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.ShiftResponse{}, fmt.Errorf("%w: terminal_id is required", domain.ErrInvalidRequest)
	}

	shift, err := s.repo.FindActiveByTerminal(ctx, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, fmt.Errorf("%w: no active shift on terminal %s", domain.ErrShiftNotFound, terminalID)
		}
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// ShiftSummary reconciles a shift in any state. Open shifts report pending.
func (s *Service) ShiftSummary(ctx context.Context, shiftID string) (domain.ReconciliationResult, error) {
	shift, err := s.loadShift(ctx, shiftID)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}
	return s.engine.ComputeSummary(shift)
}

// ListShifts returns shifts started between the from and to dates, both
// inclusive, in YYYY-MM-DD. Empty dates default to today.
func (s *Service) ListShifts(ctx context.Context, fromDate string, toDate string) (domain.ShiftListResponse, error) {
	from, to, err := domain.ParseDateRange(fromDate, toDate, s.now())
	if err != nil {
		return domain.ShiftListResponse{}, err
	}
	shifts, err := s.repo.ListShiftsByDateRange(ctx, from, to)
	if err != nil {
		return domain.ShiftListResponse{}, err
	}
	if shifts == nil {
		shifts = []domain.Shift{}
	}
	return domain.ShiftListResponse{Shifts: shifts}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidRequest)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) closed(shift domain.Shift, closingCents int64, closedBy string) domain.Shift {
	updated := shift.Clone()
	end := s.now()
	if n := len(updated.Transactions); n > 0 && end.Before(updated.Transactions[n-1].Timestamp) {
		end = updated.Transactions[n-1].Timestamp
	}
	closing := closingCents
	updated.EndTime = &end
	updated.ClosingBalanceCents = &closing
	updated.ClosedBy = closedBy
	return updated
}

func (s *Service) commitClose(ctx context.Context, updated domain.Shift) (domain.CloseShiftResponse, error) {
	result, err := s.engine.ComputeSummary(updated)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}
	if err := s.repo.SaveShift(ctx, updated); err != nil {
		return domain.CloseShiftResponse{}, err
	}
	return domain.CloseShiftResponse{Shift: updated, Reconciliation: result}, nil
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key, s.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConflict, key)
		}
		return nil, err
	}
	return release, nil
}

func (s *Service) loadShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	if strings.TrimSpace(shiftID) == "" {
		return domain.Shift{}, fmt.Errorf("%w: shift id is required", domain.ErrInvalidRequest)
	}
	shift, err := s.repo.LoadShift(ctx, shiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Shift{}, fmt.Errorf("%w: %s", domain.ErrShiftNotFound, shiftID)
		}
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) roleOf(ctx context.Context, userID string) (domain.Role, error) {
	role, err := s.roles.RoleOf(ctx, userID)
	if err != nil {
		// Unknown users hold no role and fail the caller's permission check.
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", domain.ErrRoleLookupFailed, err)
	}
	return role, nil
}

func (s *Service) logAudit(ctx context.Context, action string, shiftID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    "shift",
		EntityID:      shiftID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s shift=%s: %v", action, shiftID, err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, shift domain.Shift, payload any) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[service] WARN: failed to encode %s event for shift %s: %v", kind, shift.ID, err)
		return
	}
	actorID := shift.UserID
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		actorID = actor.Username
	}
	s.events.Enqueue(domain.LedgerEvent{
		ID:         xid.New("evt"),
		Kind:       kind,
		ShiftID:    shift.ID,
		TerminalID: shift.TerminalID,
		ActorID:    actorID,
		Payload:    string(body),
		OccurredAt: s.now(),
	})
}

func appendNote(notes string, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return notes
	}
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
