package domain

type HourlySales struct {
	Hour         int   `json:"hour"`
	Transactions int64 `json:"transactions"`
	TotalCents   int64 `json:"total_cents"`
}

type CategorySales struct {
	Category   string `json:"category"`
	Quantity   int64  `json:"quantity"`
	TotalCents int64  `json:"total_cents"`
}

type PaymentMethodSales struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Transactions  int64         `json:"transactions"`
	TotalCents    int64         `json:"total_cents"`
}

type StaffSales struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Transactions int64  `json:"transactions"`
	SalesCents   int64  `json:"sales_cents"`
	ReturnsCents int64  `json:"returns_cents"`
	VoidsCents   int64  `json:"voids_cents"`
}

type ProductSales struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ShiftReconciliationRow struct {
	ShiftID        string               `json:"shift_id"`
	TerminalID     string               `json:"terminal_id"`
	UserID         string               `json:"user_id"`
	Status         string               `json:"status"`
	Reconciliation ReconciliationResult `json:"reconciliation"`
}

type ShiftAlert struct {
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	ShiftID     string `json:"shift_id"`
	TerminalID  string `json:"terminal_id"`
	Description string `json:"description"`
	MetricValue int64  `json:"metric_value"`
}

type SalesReport struct {
	From            string                   `json:"from"`
	To              string                   `json:"to"`
	ShiftCount      int                      `json:"shift_count"`
	OpenShiftCount  int                      `json:"open_shift_count"`
	GrossSalesCents int64                    `json:"gross_sales_cents"`
	ReturnsCents    int64                    `json:"returns_cents"`
	VoidsCents      int64                    `json:"voids_cents"`
	NetSalesCents   int64                    `json:"net_sales_cents"`
	ByHour          []HourlySales            `json:"by_hour"`
	ByCategory      []CategorySales          `json:"by_category"`
	ByPaymentMethod []PaymentMethodSales     `json:"by_payment_method"`
	ByStaff         []StaffSales             `json:"by_staff"`
	TopProducts     []ProductSales           `json:"top_products"`
	Reconciliations []ShiftReconciliationRow `json:"reconciliations"`
	StatusCounts    map[string]int           `json:"status_counts"`
	Alerts          []ShiftAlert             `json:"alerts"`
}
