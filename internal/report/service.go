package report

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"shiftledger/backend/internal/cache"
	"shiftledger/backend/internal/domain"
	"shiftledger/backend/internal/ledger"
	"shiftledger/backend/internal/store"
)

const (
	defaultCacheTTL  = 30 * time.Second
	defaultTopN      = 10
	voidSpikeMinimum = 3
	cacheKeyVersion  = "v1"
)

// Source is the read side a report needs.
type Source interface {
	store.ShiftStore
	store.CatalogStore
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Options struct {
	Cache    cache.ReportCache
	CacheTTL time.Duration
	TopN     int
	Now      func() time.Time
}

// Service builds sales and reconciliation reports over closed and open
// shifts. A report is cached only once every shift in the range is closed
// and the range lies fully in the past.
type Service struct {
	repo     Source
	engine   *ledger.Engine
	cache    cache.ReportCache
	cacheTTL time.Duration
	topN     int
	now      func() time.Time
	group    singleflight.Group
}

func NewService(repo Source, engine *ledger.Engine, opts Options) *Service {
	s := &Service{
		repo:     repo,
		engine:   engine,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		topN:     opts.TopN,
		now:      opts.Now,
	}
	if s.engine == nil {
		s.engine = ledger.NewEngine(ledger.DefaultToleranceCents)
	}
	if s.cache == nil {
		s.cache = cache.NoopReportCache{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	if s.topN <= 0 {
		s.topN = defaultTopN
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) DailyReport(ctx context.Context, date string) (domain.SalesReport, error) {
	return s.RangeReport(ctx, date, date)
}

func (s *Service) RangeReport(ctx context.Context, fromDate string, toDate string) (domain.SalesReport, error) {
	from, to, err := domain.ParseDateRange(fromDate, toDate, s.now())
	if err != nil {
		return domain.SalesReport{}, err
	}
	key := fmt.Sprintf("%s:%s:%s", cacheKeyVersion, from.Format("2006-01-02"), to.Add(-24*time.Hour).Format("2006-01-02"))

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Printf("[report] WARN: cache get %s failed: %v", key, err)
	} else if ok && cached != nil {
		return *cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		report, err := s.build(ctx, from, to)
		if err != nil {
			return nil, err
		}
		if report.OpenShiftCount == 0 && !to.After(s.now()) {
			if err := s.cache.Set(ctx, key, &report, s.cacheTTL); err != nil {
				log.Printf("[report] WARN: cache set %s failed: %v", key, err)
			}
		}
		return report, nil
	})
	if err != nil {
		return domain.SalesReport{}, err
	}
	return v.(domain.SalesReport), nil
}

func (s *Service) build(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	shifts, err := s.repo.ListShiftsByDateRange(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}
	items, err := s.repo.ListCatalog(ctx)
	if err != nil {
		return domain.SalesReport{}, err
	}
	catalog := NewCatalog(items)
	users := s.userLookup(ctx)

	report := domain.SalesReport{
		From:            from.Format("2006-01-02"),
		To:              to.Add(-24 * time.Hour).Format("2006-01-02"),
		ShiftCount:      len(shifts),
		Reconciliations: make([]domain.ShiftReconciliationRow, 0, len(shifts)),
		StatusCounts:    map[string]int{},
		Alerts:          make([]domain.ShiftAlert, 0, 8),
	}

	all := make([]domain.TransactionRecord, 0, 64)
	for _, shift := range shifts {
		all = append(all, shift.Transactions...)
		if shift.IsActive() {
			report.OpenShiftCount++
		}

		summary, err := s.engine.ComputeSummary(shift)
		if err != nil {
			log.Printf("[report] WARN: shift %s has invalid ledger: %v", shift.ID, err)
			report.StatusCounts["invalid"]++
			report.Alerts = append(report.Alerts, domain.ShiftAlert{
				Code:        "invalid_ledger",
				Severity:    "high",
				ShiftID:     shift.ID,
				TerminalID:  shift.TerminalID,
				Description: fmt.Sprintf("Shift %s has records the ledger cannot reconcile: %v", shift.ID, err),
			})
			continue
		}

		report.StatusCounts[string(summary.Status)]++
		report.Reconciliations = append(report.Reconciliations, domain.ShiftReconciliationRow{
			ShiftID:        shift.ID,
			TerminalID:     shift.TerminalID,
			UserID:         shift.UserID,
			Status:         shift.Status(),
			Reconciliation: summary,
		})
		report.Alerts = append(report.Alerts, shiftAlerts(shift, summary)...)
	}
	for _, rec := range all {
		if !countable(rec) {
			continue
		}
		switch rec.Type {
		case domain.TxTypeSale:
			report.GrossSalesCents += rec.AmountCents
		case domain.TxTypeReturn:
			report.ReturnsCents += rec.AmountCents
		case domain.TxTypeVoid:
			report.VoidsCents += rec.AmountCents
		}
	}
	report.NetSalesCents = report.GrossSalesCents - report.ReturnsCents - report.VoidsCents

	report.ByHour = SalesByHour(all)
	report.ByCategory = SalesByCategory(all, catalog)
	report.ByPaymentMethod = SalesByPaymentMethod(all)
	report.ByStaff = SalesByStaff(all, users)
	report.TopProducts = TopProducts(all, s.topN, catalog)
	report.Alerts = append(report.Alerts, voidSpikeAlerts(shifts)...)

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		a, b := report.Alerts[i], report.Alerts[j]
		if a.Severity != b.Severity {
			return severityRank(a.Severity) < severityRank(b.Severity)
		}
		if a.MetricValue != b.MetricValue {
			return a.MetricValue > b.MetricValue
		}
		return a.ShiftID < b.ShiftID
	})
	return report, nil
}

func (s *Service) userLookup(ctx context.Context) UserLookup {
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		log.Printf("[report] WARN: list users failed: %v", err)
		return nil
	}
	names := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		names[acc.Username] = fmt.Sprintf("%s (%s)", acc.Username, acc.Role)
	}
	return func(userID string) (string, bool) {
		name, ok := names[userID]
		return name, ok
	}
}

func shiftAlerts(shift domain.Shift, summary domain.ReconciliationResult) []domain.ShiftAlert {
	alerts := make([]domain.ShiftAlert, 0, 2)
	if summary.DiscrepancyCents != nil {
		diff := *summary.DiscrepancyCents
		switch summary.Status {
		case domain.DiscrepancyShort:
			alerts = append(alerts, domain.ShiftAlert{
				Code:        "cash_short",
				Severity:    "high",
				ShiftID:     shift.ID,
				TerminalID:  shift.TerminalID,
				Description: fmt.Sprintf("Drawer on %s counted %d cents short of expected.", shift.TerminalID, -diff),
				MetricValue: -diff,
			})
		case domain.DiscrepancyOver:
			alerts = append(alerts, domain.ShiftAlert{
				Code:        "cash_over",
				Severity:    "medium",
				ShiftID:     shift.ID,
				TerminalID:  shift.TerminalID,
				Description: fmt.Sprintf("Drawer on %s counted %d cents over expected.", shift.TerminalID, diff),
				MetricValue: diff,
			})
		}
	}
	if shift.ClosedRemotely {
		alerts = append(alerts, domain.ShiftAlert{
			Code:        "remote_close",
			Severity:    "medium",
			ShiftID:     shift.ID,
			TerminalID:  shift.TerminalID,
			Description: fmt.Sprintf("Shift closed remotely by %s: %s", shift.ClosedBy, shift.CloseReason),
		})
	}
	if n := len(shift.BalanceEdits); n > 0 {
		alerts = append(alerts, domain.ShiftAlert{
			Code:        "balance_edited",
			Severity:    "low",
			ShiftID:     shift.ID,
			TerminalID:  shift.TerminalID,
			Description: fmt.Sprintf("Closing balance edited %d time(s) after close.", n),
			MetricValue: int64(n),
		})
	}
	return alerts
}

func voidSpikeAlerts(shifts []domain.Shift) []domain.ShiftAlert {
	type key struct{ shiftID, userID string }
	counts := map[key]int64{}
	terminals := map[string]string{}
	order := make([]key, 0, 8)
	for _, shift := range shifts {
		terminals[shift.ID] = shift.TerminalID
		for _, rec := range shift.Transactions {
			if rec.IsTrainingMode || rec.Type != domain.TxTypeVoid {
				continue
			}
			k := key{shift.ID, rec.UserID}
			if _, ok := counts[k]; !ok {
				order = append(order, k)
			}
			counts[k]++
		}
	}

	alerts := make([]domain.ShiftAlert, 0)
	for _, k := range order {
		if counts[k] < voidSpikeMinimum {
			continue
		}
		alerts = append(alerts, domain.ShiftAlert{
			Code:        "void_spike",
			Severity:    "high",
			ShiftID:     k.shiftID,
			TerminalID:  terminals[k.shiftID],
			Description: fmt.Sprintf("User %s voided %d transactions in one shift.", k.userID, counts[k]),
			MetricValue: counts[k],
		})
	}
	return alerts
}

func severityRank(severity string) int {
	switch severity {
	case "high":
		return 1
	case "medium":
		return 2
	default:
		return 3
	}
}
