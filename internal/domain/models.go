package domain

import "time"

type TransactionType string

const (
	TxTypeSale     TransactionType = "sale"
	TxTypeReturn   TransactionType = "return"
	TxTypeCashIn   TransactionType = "cashIn"
	TxTypeCashOut  TransactionType = "cashOut"
	TxTypeVoid     TransactionType = "void"
	TxTypeNoSale   TransactionType = "noSale"
	TxTypeExchange TransactionType = "exchange"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxTypeSale, TxTypeReturn, TxTypeCashIn, TxTypeCashOut, TxTypeVoid, TxTypeNoSale, TxTypeExchange:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentGiftCard PaymentMethod = "gift_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case "", PaymentCash, PaymentCard, PaymentGiftCard:
		return true
	default:
		return false
	}
}

// IsCash reports whether the method moves the physical drawer. An empty
// method is recorded as cash.
func (m PaymentMethod) IsCash() bool {
	return m == "" || m == PaymentCash
}

type Role string

const (
	RoleCashier Role = "cashier"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// CanOverride reports whether the role may close or edit shifts it does not own.
func (r Role) CanOverride() bool {
	return r == RoleManager || r == RoleAdmin
}

type TransactionItem struct {
	SKU         string `json:"sku"`
	Qty         int    `json:"qty"`
	AmountCents int64  `json:"amount_cents"`
}

// TransactionRecord is one monetary event on a shift. Amounts are stored as
// non-negative magnitudes; the type decides the direction.
type TransactionRecord struct {
	ID               string            `json:"id"`
	Type             TransactionType   `json:"type"`
	AmountCents      int64             `json:"amount_cents"`
	Timestamp        time.Time         `json:"timestamp"`
	UserID           string            `json:"user_id"`
	PaymentMethod    PaymentMethod     `json:"payment_method,omitempty"`
	OrderRef         string            `json:"order_ref,omitempty"`
	RefTransactionID string            `json:"ref_transaction_id,omitempty"`
	IsTrainingMode   bool              `json:"is_training_mode"`
	Items            []TransactionItem `json:"items,omitempty"`
}

func (r TransactionRecord) Clone() TransactionRecord {
	out := r
	if r.Items != nil {
		out.Items = append([]TransactionItem(nil), r.Items...)
	}
	return out
}

type BalanceEdit struct {
	PreviousCents int64     `json:"previous_cents"`
	NewCents      int64     `json:"new_cents"`
	EditorID      string    `json:"editor_id"`
	Note          string    `json:"note"`
	EditedAt      time.Time `json:"edited_at"`
}

type Shift struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"user_id"`
	TerminalID          string              `json:"terminal_id"`
	OpeningBalanceCents int64               `json:"opening_balance_cents"`
	ClosingBalanceCents *int64              `json:"closing_balance_cents,omitempty"`
	StartTime           time.Time           `json:"start_time"`
	EndTime             *time.Time          `json:"end_time,omitempty"`
	Transactions        []TransactionRecord `json:"transactions"`
	Notes               string              `json:"notes,omitempty"`
	ClosedRemotely      bool                `json:"closed_remotely"`
	ClosedBy            string              `json:"closed_by,omitempty"`
	CloseReason         string              `json:"close_reason,omitempty"`
	BalanceEdits        []BalanceEdit       `json:"balance_edits,omitempty"`
}

func (s Shift) IsActive() bool {
	return s.EndTime == nil
}

func (s Shift) Status() string {
	if s.IsActive() {
		return ShiftStatusOpen
	}
	return ShiftStatusClosed
}

// Clone returns a copy that shares no slices or pointers with s.
func (s Shift) Clone() Shift {
	out := s
	if s.ClosingBalanceCents != nil {
		v := *s.ClosingBalanceCents
		out.ClosingBalanceCents = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		out.EndTime = &v
	}
	out.Transactions = make([]TransactionRecord, len(s.Transactions))
	for i, rec := range s.Transactions {
		out.Transactions[i] = rec.Clone()
	}
	if s.BalanceEdits != nil {
		out.BalanceEdits = append([]BalanceEdit(nil), s.BalanceEdits...)
	}
	return out
}

func (s Shift) FindTransaction(id string) (TransactionRecord, bool) {
	for _, rec := range s.Transactions {
		if rec.ID == id {
			return rec, true
		}
	}
	return TransactionRecord{}, false
}

type DiscrepancyStatus string

const (
	DiscrepancyPending  DiscrepancyStatus = "pending"
	DiscrepancyBalanced DiscrepancyStatus = "balanced"
	DiscrepancyOver     DiscrepancyStatus = "over"
	DiscrepancyShort    DiscrepancyStatus = "short"
)

// ReconciliationResult is derived from a shift and never stored.
type ReconciliationResult struct {
	ShiftID              string            `json:"shift_id"`
	OpeningBalanceCents  int64             `json:"opening_balance_cents"`
	TotalSalesCents      int64             `json:"total_sales_cents"`
	TotalReturnsCents    int64             `json:"total_returns_cents"`
	TotalVoidsCents      int64             `json:"total_voids_cents"`
	TotalExchangesCents  int64             `json:"total_exchanges_cents"`
	TotalCashInCents     int64             `json:"total_cash_in_cents"`
	TotalCashOutCents    int64             `json:"total_cash_out_cents"`
	NonCashSalesCents    int64             `json:"non_cash_sales_cents"`
	TransactionCount     int               `json:"transaction_count"`
	TrainingCount        int               `json:"training_count"`
	NoSaleCount          int               `json:"no_sale_count"`
	ExpectedClosingCents int64             `json:"expected_closing_cents"`
	ClosingBalanceCents  *int64            `json:"closing_balance_cents,omitempty"`
	DiscrepancyCents     *int64            `json:"discrepancy_cents,omitempty"`
	DiscrepancyPercent   string            `json:"discrepancy_percent,omitempty"`
	Status               DiscrepancyStatus `json:"status"`
	ClosedRemotely       bool              `json:"closed_remotely"`
	ClosedBy             string            `json:"closed_by,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

type ShiftOpenRequest struct {
	TerminalID          string `json:"terminal_id"`
	UserID              string `json:"user_id"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
}

type RecordTransactionRequest struct {
	ID               string            `json:"id,omitempty"`
	Type             TransactionType   `json:"type"`
	AmountCents      int64             `json:"amount_cents"`
	PaymentMethod    PaymentMethod     `json:"payment_method,omitempty"`
	OrderRef         string            `json:"order_ref,omitempty"`
	RefTransactionID string            `json:"ref_transaction_id,omitempty"`
	IsTrainingMode   bool              `json:"is_training_mode"`
	Items            []TransactionItem `json:"items,omitempty"`
}

type ShiftCloseRequest struct {
	ShiftID             string `json:"shift_id"`
	OperatorID          string `json:"operator_id"`
	ClosingBalanceCents int64  `json:"closing_balance_cents"`
	Notes               string `json:"notes"`
}

type RemoteCloseRequest struct {
	ShiftID             string `json:"shift_id"`
	ManagerID           string `json:"manager_id"`
	ClosingBalanceCents int64  `json:"closing_balance_cents"`
	Reason              string `json:"reason"`
}

type BalanceEditRequest struct {
	ShiftID         string `json:"shift_id"`
	NewBalanceCents int64  `json:"new_balance_cents"`
	EditorID        string `json:"editor_id"`
	Note            string `json:"note"`
	ManagerPIN      string `json:"manager_pin,omitempty"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ShiftListResponse struct {
	Shifts []Shift `json:"shifts"`
}

type RecordTransactionResponse struct {
	ShiftID          string `json:"shift_id"`
	TransactionID    string `json:"transaction_id"`
	TransactionCount int    `json:"transaction_count"`
}

type CloseShiftResponse struct {
	Shift          Shift                `json:"shift"`
	Reconciliation ReconciliationResult `json:"reconciliation"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// CatalogItem is display data for a product, owned by the catalog screens.
type CatalogItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type LedgerEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ShiftID    string    `json:"shift_id"`
	TerminalID string    `json:"terminal_id"`
	ActorID    string    `json:"actor_id"`
	Payload    string    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	EventShiftOpened         = "shift_opened"
	EventTransactionRecorded = "transaction_recorded"
	EventShiftClosed         = "shift_closed"
	EventShiftRemoteClosed   = "shift_remote_closed"
	EventShiftBalanceEdited  = "shift_balance_edited"
)
