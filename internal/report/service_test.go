package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/ledger"
	"shiftledger/backend/internal/store/memory"
)

type countingCache struct {
	mu    sync.Mutex
	items map[string]domain.SalesReport
	sets  int
	gets  int
}

func newCountingCache() *countingCache {
	return &countingCache{items: map[string]domain.SalesReport{}}
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.items[key] = *value
	return nil
}

func cents(v int64) *int64 {
	return &v
}

func closedShift(id string, terminal string, start time.Time, opening int64, closing int64, txs ...domain.TransactionRecord) domain.Shift {
	end := start.Add(8 * time.Hour)
	return domain.Shift{
		ID:                  id,
		UserID:              "cashier",
		TerminalID:          terminal,
		OpeningBalanceCents: opening,
		ClosingBalanceCents: cents(closing),
		StartTime:           start,
		EndTime:             &end,
		Transactions:        txs,
		ClosedBy:            "cashier",
	}
}

func newReportFixture(t *testing.T, now time.Time, shifts ...domain.Shift) (*Service, *countingCache) {
	t.Helper()
	repo := memory.New()
	repo.SetCatalog([]domain.CatalogItem{
		{SKU: "COF-01", Name: "Kopi Susu", Category: "beverage"},
		{SKU: "BRD-01", Name: "Roti Bakar", Category: "food"},
	})
	for _, shift := range shifts {
		require.NoError(t, repo.SaveShift(context.Background(), shift))
	}
	c := newCountingCache()
	svc := NewService(repo, ledger.NewEngine(1), Options{
		Cache: c,
		Now:   func() time.Time { return now },
	})
	return svc, c
}

func TestDailyReportTotalsAndReconciliation(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	balanced := closedShift("shf_a", "T1", day, 20000, 23000,
		domain.TransactionRecord{ID: "a1", Type: domain.TxTypeSale, AmountCents: 3000, Timestamp: day.Add(time.Hour), UserID: "cashier",
			Items: []domain.TransactionItem{{SKU: "COF-01", Qty: 2, AmountCents: 3000}}},
		domain.TransactionRecord{ID: "a2", Type: domain.TxTypeSale, AmountCents: 5000, PaymentMethod: domain.PaymentCard, Timestamp: day.Add(2 * time.Hour), UserID: "cashier",
			Items: []domain.TransactionItem{{SKU: "BRD-01", Qty: 1, AmountCents: 5000}}},
	)
	short := closedShift("shf_b", "T2", day, 10000, 10500,
		domain.TransactionRecord{ID: "b1", Type: domain.TxTypeSale, AmountCents: 1200, Timestamp: day.Add(time.Hour), UserID: "cashier"},
		domain.TransactionRecord{ID: "b2", Type: domain.TxTypeReturn, AmountCents: 200, Timestamp: day.Add(2 * time.Hour), UserID: "cashier"},
	)
	svc, _ := newReportFixture(t, day.Add(72*time.Hour), balanced, short)

	report, err := svc.DailyReport(context.Background(), "2026-03-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-02", report.From)
	assert.Equal(t, "2026-03-02", report.To)
	assert.Equal(t, 2, report.ShiftCount)
	assert.Zero(t, report.OpenShiftCount)
	assert.Equal(t, int64(9200), report.GrossSalesCents)
	assert.Equal(t, int64(200), report.ReturnsCents)
	assert.Equal(t, int64(9000), report.NetSalesCents)
	assert.Equal(t, map[string]int{"balanced": 1, "short": 1}, report.StatusCounts)
	require.Len(t, report.Reconciliations, 2)
	assert.Equal(t, int64(23000), report.Reconciliations[0].Reconciliation.ExpectedClosingCents)
	assert.Equal(t, int64(-500), *report.Reconciliations[1].Reconciliation.DiscrepancyCents)

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, "cash_short", report.Alerts[0].Code)
	assert.Equal(t, "shf_b", report.Alerts[0].ShiftID)
	assert.Equal(t, int64(500), report.Alerts[0].MetricValue)

	require.Len(t, report.TopProducts, 2)
	assert.Equal(t, "BRD-01", report.TopProducts[0].SKU)
	assert.Len(t, report.ByHour, 24)
}

func TestRangeReportCachesOnlyClosedPastRanges(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	closed := closedShift("shf_a", "T1", day, 0, 0)
	open := domain.Shift{ID: "shf_c", UserID: "cashier", TerminalID: "T3", StartTime: day.Add(24 * time.Hour)}
	svc, c := newReportFixture(t, day.Add(72*time.Hour), closed, open)
	ctx := context.Background()

	_, err := svc.RangeReport(ctx, "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	_, err = svc.RangeReport(ctx, "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 1, c.sets, "closed past day should be cached once")

	withOpen, err := svc.RangeReport(ctx, "2026-03-02", "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, 1, withOpen.OpenShiftCount)
	assert.Equal(t, 1, c.sets, "range with an open shift must not be cached")
}

func TestRangeReportDoesNotCacheToday(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, c := newReportFixture(t, day.Add(4*time.Hour), closedShift("shf_a", "T1", day, 0, 0))

	_, err := svc.DailyReport(context.Background(), "2026-03-02")
	require.NoError(t, err)
	assert.Zero(t, c.sets)
}

func TestRangeReportRejectsBadDates(t *testing.T) {
	svc, _ := newReportFixture(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	_, err := svc.RangeReport(context.Background(), "2026-03-05", "2026-03-01")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestReportAlertsOrderedBySeverity(t *testing.T) {
	day := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	voids := make([]domain.TransactionRecord, 0, 6)
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		voids = append(voids,
			domain.TransactionRecord{ID: "s" + id, Type: domain.TxTypeSale, AmountCents: 100, Timestamp: day.Add(time.Minute), UserID: "cashier"},
			domain.TransactionRecord{ID: "v" + id, Type: domain.TxTypeVoid, AmountCents: 100, RefTransactionID: "s" + id, Timestamp: day.Add(2 * time.Minute), UserID: "cashier"},
		)
	}
	spiky := closedShift("shf_a", "T1", day, 0, 0, voids...)

	over := closedShift("shf_b", "T2", day, 0, 900)
	over.ClosedRemotely = true
	over.ClosedBy = "manager"
	over.CloseReason = "cashier left"
	over.BalanceEdits = []domain.BalanceEdit{{PreviousCents: 800, NewCents: 900, EditorID: "manager", Note: "recount"}}

	svc, _ := newReportFixture(t, day.Add(72*time.Hour), spiky, over)
	report, err := svc.DailyReport(context.Background(), "2026-03-02")
	require.NoError(t, err)

	codes := make([]string, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		codes = append(codes, a.Code)
	}
	assert.Equal(t, []string{"void_spike", "cash_over", "remote_close", "balance_edited"}, codes)
}
