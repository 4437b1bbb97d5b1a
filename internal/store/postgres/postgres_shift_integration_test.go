package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/store"
)

func TestShiftRoundTripAndActiveIndex(t *testing.T) {
	databaseURL := os.Getenv("SHIFTLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHIFTLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	terminal := fmt.Sprintf("T-IT-%d", stamp)
	shiftID := fmt.Sprintf("shift-it-%d", stamp)
	otherID := shiftID + "-b"

	t.Cleanup(func() {
		for _, id := range []string{shiftID, otherID} {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM shift_balance_edits WHERE shift_id = $1`, id)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM shift_transactions WHERE shift_id = $1`, id)
			_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
		}
	})

	start := time.Now().UTC().Truncate(time.Microsecond)
	shift := domain.Shift{
		ID:                  shiftID,
		UserID:              "cashier",
		TerminalID:          terminal,
		OpeningBalanceCents: 20000,
		StartTime:           start,
		Transactions:        []domain.TransactionRecord{},
	}
	if err := s.SaveShift(ctx, shift); err != nil {
		t.Fatalf("save open shift: %v", err)
	}

	second := shift
	second.ID = otherID
	if err := s.SaveShift(ctx, second); !errors.Is(err, store.ErrActiveShiftExists) {
		t.Fatalf("expected ErrActiveShiftExists, got %v", err)
	}

	shift.Transactions = append(shift.Transactions,
		domain.TransactionRecord{ID: "tx-1", Type: domain.TxTypeSale, AmountCents: 5420, Timestamp: start, UserID: "cashier", PaymentMethod: domain.PaymentCash,
			Items: []domain.TransactionItem{{SKU: "SKU-MIE-01", Qty: 2, AmountCents: 5420}}},
		domain.TransactionRecord{ID: "tx-2", Type: domain.TxTypeCashOut, AmountCents: 2000, Timestamp: start.Add(time.Minute), UserID: "cashier"},
	)
	if err := s.SaveShift(ctx, shift); err != nil {
		t.Fatalf("save transactions: %v", err)
	}

	end := start.Add(time.Hour)
	closing := int64(23420)
	shift.EndTime = &end
	shift.ClosingBalanceCents = &closing
	if err := s.SaveShift(ctx, shift); err != nil {
		t.Fatalf("close shift: %v", err)
	}

	loaded, err := s.LoadShift(ctx, shiftID)
	if err != nil {
		t.Fatalf("load shift: %v", err)
	}
	if loaded.IsActive() || loaded.ClosingBalanceCents == nil || *loaded.ClosingBalanceCents != closing {
		t.Fatalf("unexpected closed state: %+v", loaded)
	}
	if len(loaded.Transactions) != 2 || loaded.Transactions[0].ID != "tx-1" || len(loaded.Transactions[0].Items) != 1 {
		t.Fatalf("unexpected transactions: %+v", loaded.Transactions)
	}

	if _, err := s.FindActiveByTerminal(ctx, terminal); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active shift, got %v", err)
	}
	if err := s.SaveShift(ctx, second); err != nil {
		t.Fatalf("reopen terminal after close: %v", err)
	}

	truncated := *loaded
	truncated.Transactions = truncated.Transactions[:1]
	if err := s.SaveShift(ctx, truncated); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for dropped records, got %v", err)
	}
}
