package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/events"
	"shiftledger/backend/internal/lock"
	"shiftledger/backend/internal/service/mocks"
	"shiftledger/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	_ = repo.CreateUser(context.Background(), domain.UserAccount{Username: "cashier2", Password: "x", Role: "cashier"})
	return New(repo, Options{}), repo
}

func openTestShift(t *testing.T, svc *Service, terminal string, opening int64) domain.Shift {
	t.Helper()
	resp, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{
		TerminalID:          terminal,
		UserID:              "cashier",
		OpeningBalanceCents: opening,
	})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return resp.Shift
}

func record(t *testing.T, svc *Service, shiftID string, req domain.RecordTransactionRequest) domain.RecordTransactionResponse {
	t.Helper()
	resp, err := svc.RecordTransaction(context.Background(), shiftID, req)
	if err != nil {
		t.Fatalf("record %s failed: %v", req.Type, err)
	}
	return resp
}

func TestOpenShiftRejectsSecondActiveShiftOnTerminal(t *testing.T) {
	svc, _ := newTestService()
	openTestShift(t, svc, "T1", 20000)

	_, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{TerminalID: "T1", UserID: "cashier2"})
	if !errors.Is(err, domain.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}

	if _, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{TerminalID: "T2", UserID: "cashier2"}); err != nil {
		t.Fatalf("other terminal should open: %v", err)
	}
}

func TestOpenShiftRejectsNegativeBalance(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{TerminalID: "T1", UserID: "cashier", OpeningBalanceCents: -1})
	if !errors.Is(err, domain.ErrInvalidBalance) {
		t.Fatalf("expected ErrInvalidBalance, got %v", err)
	}
}

func TestConcurrentOpensOnOneTerminalYieldSingleShift(t *testing.T) {
	svc, repo := newTestService()
	const callers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{
				TerminalID: "T1",
				UserID:     fmt.Sprintf("cashier-%d", i),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrShiftAlreadyOpen) && !domain.IsRetryable(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one open to succeed, got %d", succeeded)
	}
	active, err := repo.FindActiveByTerminal(context.Background(), "T1")
	if err != nil || active == nil {
		t.Fatalf("expected one active shift, got err=%v", err)
	}
}

func TestBalancedCloseScenario(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 20000)

	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 5420, PaymentMethod: domain.PaymentCash})
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 3000, PaymentMethod: domain.PaymentCard})
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeCashOut, AmountCents: 2000})

	resp, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 23420})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if resp.Reconciliation.ExpectedClosingCents != 23420 || resp.Reconciliation.Status != domain.DiscrepancyBalanced {
		t.Fatalf("unexpected reconciliation: %+v", resp.Reconciliation)
	}
	if resp.Shift.IsActive() {
		t.Fatalf("expected shift to be closed")
	}
}

func TestShortCloseScenario(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 20000)

	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 5420, PaymentMethod: domain.PaymentCash})
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 3000, PaymentMethod: domain.PaymentCard})
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeCashOut, AmountCents: 2000})

	resp, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 23000})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if resp.Reconciliation.DiscrepancyCents == nil || *resp.Reconciliation.DiscrepancyCents != -420 {
		t.Fatalf("expected discrepancy -420, got %+v", resp.Reconciliation.DiscrepancyCents)
	}
	if resp.Reconciliation.Status != domain.DiscrepancyShort {
		t.Fatalf("expected short, got %s", resp.Reconciliation.Status)
	}
}

func TestRecordAfterCloseIsRejected(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 10000)

	if _, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 10000}); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_, err := svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 100})
	if !errors.Is(err, domain.ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed, got %v", err)
	}
	_, err = svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 10000})
	if !errors.Is(err, domain.ErrShiftClosed) {
		t.Fatalf("expected second close to fail with ErrShiftClosed, got %v", err)
	}
}

func TestAppendRacingCloseNeverLandsAfterClose(t *testing.T) {
	for round := 0; round < 20; round++ {
		svc, repo := newTestService()
		shift := openTestShift(t, svc, "T1", 10000)

		var wg sync.WaitGroup
		var closeResp domain.CloseShiftResponse
		var closeErr error
		accepted := make(chan string, 32)

		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 100})
				if err == nil {
					accepted <- resp.TransactionID
					return
				}
				if !errors.Is(err, domain.ErrShiftClosed) && !domain.IsRetryable(err) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			closeResp, closeErr = svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 10000})
		}()
		wg.Wait()
		close(accepted)

		if closeErr != nil {
			t.Fatalf("close failed: %v", closeErr)
		}
		stored, err := repo.LoadShift(context.Background(), shift.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(stored.Transactions) != len(closeResp.Shift.Transactions) {
			t.Fatalf("transactions changed after close: closed with %d, stored %d", len(closeResp.Shift.Transactions), len(stored.Transactions))
		}
		count := 0
		for range accepted {
			count++
		}
		if count != len(stored.Transactions) {
			t.Fatalf("accepted %d appends but stored %d", count, len(stored.Transactions))
		}
	}
}

func TestRecordTransactionIsIdempotentOnCallerID(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 0)

	first := record(t, svc, shift.ID, domain.RecordTransactionRequest{ID: "pos-1", Type: domain.TxTypeSale, AmountCents: 500})
	second := record(t, svc, shift.ID, domain.RecordTransactionRequest{ID: "pos-1", Type: domain.TxTypeSale, AmountCents: 500})
	if first.TransactionCount != 1 || second.TransactionCount != 1 {
		t.Fatalf("expected retry to be a no-op, got counts %d and %d", first.TransactionCount, second.TransactionCount)
	}
}

func TestRecordTransactionRejectsInvalidInputBeforeMutation(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 0)

	_, err := svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: -5})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: "refund", AmountCents: 5})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	_, err = svc.RecordTransaction(context.Background(), "missing", domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 5})
	if !errors.Is(err, domain.ErrShiftNotFound) {
		t.Fatalf("expected ErrShiftNotFound, got %v", err)
	}

	got, _ := svc.GetShift(context.Background(), shift.ID)
	if len(got.Shift.Transactions) != 0 {
		t.Fatalf("rejected records must not be stored")
	}
}

func TestVoidMustReferenceUnvoidedRecord(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 0)
	sale := record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 700})

	_, err := svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 700, RefTransactionID: "nope"})
	if !errors.Is(err, domain.ErrInvalidRecord) || !errors.Is(err, domain.ErrUnknownTransaction) {
		t.Fatalf("expected unknown reference error, got %v", err)
	}

	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 700, RefTransactionID: sale.TransactionID})
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 700, RefTransactionID: sale.TransactionID})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected double void to be rejected, got %v", err)
	}

	summary, err := svc.ShiftSummary(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.ExpectedClosingCents != 0 || summary.Status != domain.DiscrepancyPending {
		t.Fatalf("unexpected summary after void: %+v", summary)
	}

	// A training void must not consume a real sale.
	realSale := record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 1000})
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 1000, RefTransactionID: realSale.TransactionID, IsTrainingMode: true})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected training void of real sale to be rejected, got %v", err)
	}
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 1000, RefTransactionID: realSale.TransactionID})

	// A real void must not reach a training sale.
	trainingSale := record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 1000, IsTrainingMode: true})
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 1000, RefTransactionID: trainingSale.TransactionID})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected real void of training sale to be rejected, got %v", err)
	}
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 1000, RefTransactionID: trainingSale.TransactionID, IsTrainingMode: true})

	summary, err = svc.ShiftSummary(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.ExpectedClosingCents != 0 {
		t.Fatalf("training records moved the drawer: %+v", summary)
	}
}

func TestVoidIsBoundByOriginalAmountAndTender(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 20000)
	card := record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 3000, PaymentMethod: domain.PaymentCard})

	_, err := svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 99999, RefTransactionID: card.TransactionID})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected oversized void to be rejected, got %v", err)
	}
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 3000, RefTransactionID: card.TransactionID, PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected cash void of card sale to be rejected, got %v", err)
	}

	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeVoid, AmountCents: 3000, RefTransactionID: card.TransactionID})
	got, err := svc.GetShift(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("get shift failed: %v", err)
	}
	if pm := got.Shift.Transactions[1].PaymentMethod; pm != domain.PaymentCard {
		t.Fatalf("expected void to inherit card tender, got %q", pm)
	}

	summary, err := svc.ShiftSummary(context.Background(), shift.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.ExpectedClosingCents != 20000 || summary.TotalVoidsCents != 0 {
		t.Fatalf("card void touched the drawer: %+v", summary)
	}
}

func TestRecordTimestampsNeverDecrease(t *testing.T) {
	repo := memory.NewSeeded()
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := New(repo, Options{Now: func() time.Time { return clock }})
	shift := openTestShift(t, svc, "T1", 0)

	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 1})
	clock = clock.Add(-time.Minute)
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 1})

	got, _ := svc.GetShift(context.Background(), shift.ID)
	if got.Shift.Transactions[1].Timestamp.Before(got.Shift.Transactions[0].Timestamp) {
		t.Fatalf("timestamps decreased: %v", got.Shift.Transactions)
	}
}

func TestCloseShiftRequiresOwnerOrManager(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 0)

	_, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier2", ClosingBalanceCents: 0})
	if !errors.Is(err, domain.ErrUnauthorizedClose) {
		t.Fatalf("expected ErrUnauthorizedClose, got %v", err)
	}
	_, err = svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "ghost", ClosingBalanceCents: 0})
	if !errors.Is(err, domain.ErrUnauthorizedClose) {
		t.Fatalf("expected ErrUnauthorizedClose for unknown user, got %v", err)
	}
	resp, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "manager", ClosingBalanceCents: 0, Notes: "end of day"})
	if err != nil {
		t.Fatalf("manager close failed: %v", err)
	}
	if resp.Shift.ClosedRemotely || resp.Shift.ClosedBy != "manager" || resp.Shift.Notes != "end of day" {
		t.Fatalf("unexpected close fields: %+v", resp.Shift)
	}
}

func TestRemoteCloseExamples(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 5000)

	_, err := svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: shift.ID, ManagerID: "cashier2", ClosingBalanceCents: 5000, Reason: "left open"})
	if !errors.Is(err, domain.ErrUnauthorizedClose) {
		t.Fatalf("expected ErrUnauthorizedClose for cashier, got %v", err)
	}
	_, err = svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: shift.ID, ManagerID: "cashier2", ClosingBalanceCents: 5000})
	if !errors.Is(err, domain.ErrUnauthorizedClose) {
		t.Fatalf("role must be checked before reason, got %v", err)
	}
	_, err = svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: shift.ID, ManagerID: "manager", ClosingBalanceCents: 5000, Reason: "   "})
	if !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	resp, err := svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: shift.ID, ManagerID: "manager", ClosingBalanceCents: 5000, Reason: "drawer left open overnight"})
	if err != nil {
		t.Fatalf("remote close failed: %v", err)
	}
	if !resp.Reconciliation.ClosedRemotely || resp.Reconciliation.ClosedBy != "manager" {
		t.Fatalf("expected remote close flags, got %+v", resp.Reconciliation)
	}

	logs, err := svc.ListAuditLogs(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "shift_remote_close" && entry.EntityID == shift.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a shift_remote_close audit entry, got %+v", logs)
	}
}

func TestRemoteCloseRejectsOwnerManager(t *testing.T) {
	svc, _ := newTestService()
	resp, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{TerminalID: "T9", UserID: "manager"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_, err = svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: resp.Shift.ID, ManagerID: "manager", Reason: "x"})
	if !errors.Is(err, domain.ErrUnauthorizedClose) {
		t.Fatalf("expected ErrUnauthorizedClose for owner, got %v", err)
	}
}

func TestEditClosedShiftBalanceKeepsHistory(t *testing.T) {
	svc, _ := newTestService()
	shift := openTestShift(t, svc, "T1", 20000)

	_, err := svc.EditClosedShiftBalance(context.Background(), domain.BalanceEditRequest{ShiftID: shift.ID, NewBalanceCents: 1, EditorID: "manager", Note: "recount"})
	if !errors.Is(err, domain.ErrShiftStillOpen) {
		t.Fatalf("expected ErrShiftStillOpen, got %v", err)
	}

	if _, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier", ClosingBalanceCents: 19000}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	_, err = svc.EditClosedShiftBalance(context.Background(), domain.BalanceEditRequest{ShiftID: shift.ID, NewBalanceCents: 20000, EditorID: "cashier", Note: "recount"})
	if !errors.Is(err, domain.ErrUnauthorizedEdit) {
		t.Fatalf("expected ErrUnauthorizedEdit, got %v", err)
	}
	_, err = svc.EditClosedShiftBalance(context.Background(), domain.BalanceEditRequest{ShiftID: shift.ID, NewBalanceCents: 20000, EditorID: "manager"})
	if !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	_, err = svc.EditClosedShiftBalance(context.Background(), domain.BalanceEditRequest{ShiftID: shift.ID, NewBalanceCents: -1, EditorID: "manager", Note: "x"})
	if !errors.Is(err, domain.ErrInvalidBalance) {
		t.Fatalf("expected ErrInvalidBalance, got %v", err)
	}

	resp, err := svc.EditClosedShiftBalance(context.Background(), domain.BalanceEditRequest{ShiftID: shift.ID, NewBalanceCents: 20000, EditorID: "manager", Note: "found 10.00 under tray"})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if resp.Reconciliation.Status != domain.DiscrepancyBalanced {
		t.Fatalf("expected balanced after edit, got %s", resp.Reconciliation.Status)
	}
	if len(resp.Shift.BalanceEdits) != 1 {
		t.Fatalf("expected one balance edit, got %d", len(resp.Shift.BalanceEdits))
	}
	edit := resp.Shift.BalanceEdits[0]
	if edit.PreviousCents != 19000 || edit.NewCents != 20000 || edit.EditorID != "manager" {
		t.Fatalf("unexpected edit entry: %+v", edit)
	}
	if resp.Shift.IsActive() {
		t.Fatalf("edit must not reopen the shift")
	}
}

func TestLockTimeoutIsRetryableAndAppliesNothing(t *testing.T) {
	repo := memory.NewSeeded()
	locker := lock.NewLocal()
	svc := New(repo, Options{Locker: locker, LockWait: 20 * time.Millisecond})
	shift := openTestShift(t, svc, "T1", 0)

	release, err := locker.Acquire(context.Background(), "shift:"+shift.ID, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = svc.RecordTransaction(context.Background(), shift.ID, domain.RecordTransactionRequest{ID: "pos-1", Type: domain.TxTypeSale, AmountCents: 100})
	release()
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable conflict, got %v", err)
	}

	got, _ := svc.GetShift(context.Background(), shift.ID)
	if len(got.Shift.Transactions) != 0 {
		t.Fatalf("timed-out call must not apply")
	}
	resp := record(t, svc, shift.ID, domain.RecordTransactionRequest{ID: "pos-1", Type: domain.TxTypeSale, AmountCents: 100})
	if resp.TransactionCount != 1 {
		t.Fatalf("retry should apply once, got count %d", resp.TransactionCount)
	}
}

func TestRoleLookupFailureIsSurfaced(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	roles := mocks.NewMockRoleProvider(ctrl)
	roles.EXPECT().RoleOf(gomock.Any(), "manager").Return(domain.Role(""), errors.New("directory offline"))

	svc := New(memory.NewSeeded(), Options{Roles: roles})
	shift := openTestShift(t, svc, "T1", 0)

	_, err := svc.RemoteCloseShift(context.Background(), domain.RemoteCloseRequest{ShiftID: shift.ID, ManagerID: "manager", Reason: "x"})
	if !errors.Is(err, domain.ErrRoleLookupFailed) {
		t.Fatalf("expected ErrRoleLookupFailed, got %v", err)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	publisher := mocks.NewMockEventPublisher(ctrl)
	var kinds []string
	publisher.EXPECT().Enqueue(gomock.Any()).Do(func(ev domain.LedgerEvent) {
		kinds = append(kinds, ev.Kind)
	}).Times(3)

	svc := New(memory.NewSeeded(), Options{Events: publisher})
	shift := openTestShift(t, svc, "T1", 0)
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeNoSale})
	if _, err := svc.CloseShift(context.Background(), domain.ShiftCloseRequest{ShiftID: shift.ID, OperatorID: "cashier"}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	want := []string{domain.EventShiftOpened, domain.EventTransactionRecorded, domain.EventShiftClosed}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestOutboxReceivesEventsInOrder(t *testing.T) {
	outbox := events.NewOutbox(16)
	svc := New(memory.NewSeeded(), Options{Events: outbox})
	shift := openTestShift(t, svc, "T1", 0)
	record(t, svc, shift.ID, domain.RecordTransactionRequest{Type: domain.TxTypeSale, AmountCents: 100})

	got := outbox.Drain(0)
	if len(got) != 2 || got[0].Kind != domain.EventShiftOpened || got[1].ShiftID != shift.ID {
		t.Fatalf("unexpected events: %+v", got)
	}
}
