package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shiftledger/backend/internal/domain"
)

// DefaultToleranceCents absorbs single-cent rounding at the drawer.
const DefaultToleranceCents int64 = 1

// Engine derives reconciliation figures from a shift. It holds no state
// besides its tolerance and is safe for concurrent use.
type Engine struct {
	toleranceCents int64
}

func NewEngine(toleranceCents int64) *Engine {
	if toleranceCents < 0 {
		toleranceCents = DefaultToleranceCents
	}
	return &Engine{toleranceCents: toleranceCents}
}

func (e *Engine) ToleranceCents() int64 {
	return e.toleranceCents
}

// ValidateRecord checks the sign convention and enumerations of a record.
func ValidateRecord(rec domain.TransactionRecord) error {
	if !rec.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidRecord, rec.Type)
	}
	if !rec.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidRecord, rec.PaymentMethod)
	}
	if rec.AmountCents < 0 {
		return fmt.Errorf("%w: %s amount %d is negative", domain.ErrInvalidAmount, rec.Type, rec.AmountCents)
	}
	for _, item := range rec.Items {
		if item.AmountCents < 0 || item.Qty < 0 {
			return fmt.Errorf("%w: item %s has negative qty or amount", domain.ErrInvalidAmount, item.SKU)
		}
	}
	return nil
}

// ComputeSummary reconciles the drawer for shift. Training records are
// ignored entirely; only cash records enter the expected balance:
//
//	expected = opening + sales - returns - voids + exchanges + cashIn - cashOut
func (e *Engine) ComputeSummary(shift domain.Shift) (domain.ReconciliationResult, error) {
	result := domain.ReconciliationResult{
		ShiftID:             shift.ID,
		OpeningBalanceCents: shift.OpeningBalanceCents,
		ClosedRemotely:      shift.ClosedRemotely,
		ClosedBy:            shift.ClosedBy,
		Status:              domain.DiscrepancyPending,
	}
	if shift.OpeningBalanceCents < 0 {
		return result, fmt.Errorf("%w: opening balance %d", domain.ErrInvalidBalance, shift.OpeningBalanceCents)
	}

	for _, rec := range shift.Transactions {
		if err := ValidateRecord(rec); err != nil {
			return domain.ReconciliationResult{}, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if rec.IsTrainingMode {
			result.TrainingCount++
			continue
		}
		result.TransactionCount++

		if !rec.PaymentMethod.IsCash() {
			if rec.Type == domain.TxTypeSale {
				result.NonCashSalesCents += rec.AmountCents
			}
			continue
		}

		switch rec.Type {
		case domain.TxTypeSale:
			result.TotalSalesCents += rec.AmountCents
		case domain.TxTypeReturn:
			result.TotalReturnsCents += rec.AmountCents
		case domain.TxTypeVoid:
			result.TotalVoidsCents += rec.AmountCents
		case domain.TxTypeExchange:
			result.TotalExchangesCents += rec.AmountCents
		case domain.TxTypeCashIn:
			result.TotalCashInCents += rec.AmountCents
		case domain.TxTypeCashOut:
			result.TotalCashOutCents += rec.AmountCents
		case domain.TxTypeNoSale:
			result.NoSaleCount++
		}
	}

	result.ExpectedClosingCents = result.OpeningBalanceCents +
		result.TotalSalesCents -
		result.TotalReturnsCents -
		result.TotalVoidsCents +
		result.TotalExchangesCents +
		result.TotalCashInCents -
		result.TotalCashOutCents

	if shift.ClosingBalanceCents == nil {
		return result, nil
	}

	closing := *shift.ClosingBalanceCents
	discrepancy := closing - result.ExpectedClosingCents
	result.ClosingBalanceCents = &closing
	result.DiscrepancyCents = &discrepancy
	result.DiscrepancyPercent = discrepancyPercent(discrepancy, result.ExpectedClosingCents)
	result.Status = e.Classify(discrepancy)
	return result, nil
}

// Classify maps a discrepancy to the status used for alerting.
func (e *Engine) Classify(discrepancyCents int64) domain.DiscrepancyStatus {
	abs := discrepancyCents
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= e.toleranceCents:
		return domain.DiscrepancyBalanced
	case discrepancyCents > 0:
		return domain.DiscrepancyOver
	default:
		return domain.DiscrepancyShort
	}
}

func discrepancyPercent(discrepancy int64, expected int64) string {
	if expected == 0 {
		return ""
	}
	return decimal.NewFromInt(discrepancy).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(expected), 2).
		StringFixed(2)
}
