package report

import (
	"sort"

	"shiftledger/backend/internal/domain"
)

const uncategorized = "uncategorized"

// Catalog labels SKUs for rollups and fixes their display order. Position is
// the index in the slice the catalog was built from.
type Catalog struct {
	items    map[string]domain.CatalogItem
	position map[string]int
}

func NewCatalog(items []domain.CatalogItem) Catalog {
	c := Catalog{
		items:    make(map[string]domain.CatalogItem, len(items)),
		position: make(map[string]int, len(items)),
	}
	for i, item := range items {
		if _, dup := c.items[item.SKU]; dup {
			continue
		}
		c.items[item.SKU] = item
		c.position[item.SKU] = i
	}
	return c
}

func (c Catalog) Lookup(sku string) (domain.CatalogItem, bool) {
	item, ok := c.items[sku]
	return item, ok
}

func (c Catalog) Position(sku string) (int, bool) {
	pos, ok := c.position[sku]
	return pos, ok
}

func (c Catalog) Len() int {
	return len(c.items)
}

// UserLookup returns a display name for a user id.
type UserLookup func(userID string) (string, bool)

func countable(rec domain.TransactionRecord) bool {
	return !rec.IsTrainingMode
}

func isSale(rec domain.TransactionRecord) bool {
	return countable(rec) && rec.Type == domain.TxTypeSale
}

func methodOf(rec domain.TransactionRecord) domain.PaymentMethod {
	if rec.PaymentMethod == "" {
		return domain.PaymentCash
	}
	return rec.PaymentMethod
}

// SalesByHour returns 24 buckets of sale totals keyed by UTC hour.
func SalesByHour(txs []domain.TransactionRecord) []domain.HourlySales {
	buckets := make([]domain.HourlySales, 24)
	for h := range buckets {
		buckets[h].Hour = h
	}
	for _, rec := range txs {
		if !isSale(rec) {
			continue
		}
		h := rec.Timestamp.UTC().Hour()
		buckets[h].Transactions++
		buckets[h].TotalCents += rec.AmountCents
	}
	return buckets
}

// SalesByCategory sums sold items by catalog category. Sales without items, or
// with SKUs missing from the catalog, land in "uncategorized". Ordered by
// total descending; ties keep first-seen order.
func SalesByCategory(txs []domain.TransactionRecord, catalog Catalog) []domain.CategorySales {
	index := map[string]int{}
	out := make([]domain.CategorySales, 0, 8)
	add := func(category string, qty int64, cents int64) {
		i, ok := index[category]
		if !ok {
			i = len(out)
			index[category] = i
			out = append(out, domain.CategorySales{Category: category})
		}
		out[i].Quantity += qty
		out[i].TotalCents += cents
	}

	for _, rec := range txs {
		if !isSale(rec) {
			continue
		}
		if len(rec.Items) == 0 {
			add(uncategorized, 0, rec.AmountCents)
			continue
		}
		for _, item := range rec.Items {
			category := uncategorized
			if ci, ok := catalog.Lookup(item.SKU); ok && ci.Category != "" {
				category = ci.Category
			}
			add(category, int64(item.Qty), item.AmountCents)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalCents > out[j].TotalCents
	})
	return out
}

// SalesByPaymentMethod groups sales by tender. Empty methods count as cash.
func SalesByPaymentMethod(txs []domain.TransactionRecord) []domain.PaymentMethodSales {
	index := map[domain.PaymentMethod]int{}
	out := make([]domain.PaymentMethodSales, 0, 3)
	for _, rec := range txs {
		if !isSale(rec) {
			continue
		}
		method := methodOf(rec)
		i, ok := index[method]
		if !ok {
			i = len(out)
			index[method] = i
			out = append(out, domain.PaymentMethodSales{PaymentMethod: method})
		}
		out[i].Transactions++
		out[i].TotalCents += rec.AmountCents
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalCents > out[j].TotalCents
	})
	return out
}

// SalesByStaff totals sales, returns and voids per recording user.
func SalesByStaff(txs []domain.TransactionRecord, users UserLookup) []domain.StaffSales {
	index := map[string]int{}
	out := make([]domain.StaffSales, 0, 8)
	for _, rec := range txs {
		if !countable(rec) {
			continue
		}
		switch rec.Type {
		case domain.TxTypeSale, domain.TxTypeReturn, domain.TxTypeVoid:
		default:
			continue
		}
		i, ok := index[rec.UserID]
		if !ok {
			i = len(out)
			index[rec.UserID] = i
			name := rec.UserID
			if users != nil {
				if display, found := users(rec.UserID); found {
					name = display
				}
			}
			out = append(out, domain.StaffSales{UserID: rec.UserID, DisplayName: name})
		}
		switch rec.Type {
		case domain.TxTypeSale:
			out[i].Transactions++
			out[i].SalesCents += rec.AmountCents
		case domain.TxTypeReturn:
			out[i].ReturnsCents += rec.AmountCents
		case domain.TxTypeVoid:
			out[i].VoidsCents += rec.AmountCents
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SalesCents > out[j].SalesCents
	})
	return out
}

// TopProducts ranks sold SKUs by revenue and returns at most n. Equal revenue
// keeps catalog order; SKUs unknown to the catalog follow in first-seen order.
func TopProducts(orders []domain.TransactionRecord, n int, catalog Catalog) []domain.ProductSales {
	if n <= 0 {
		return []domain.ProductSales{}
	}

	index := map[string]int{}
	seen := map[string]int{}
	out := make([]domain.ProductSales, 0, 16)
	for _, rec := range orders {
		if !isSale(rec) {
			continue
		}
		for _, item := range rec.Items {
			if item.SKU == "" {
				continue
			}
			i, ok := index[item.SKU]
			if !ok {
				i = len(out)
				index[item.SKU] = i
				seen[item.SKU] = i
				ps := domain.ProductSales{SKU: item.SKU, Name: item.SKU, Category: uncategorized}
				if ci, found := catalog.Lookup(item.SKU); found {
					ps.Name = ci.Name
					ps.Category = ci.Category
				}
				out = append(out, ps)
			}
			out[i].Quantity += int64(item.Qty)
			out[i].RevenueCents += item.AmountCents
		}
	}

	rank := func(sku string) (int, int) {
		if pos, ok := catalog.Position(sku); ok {
			return 0, pos
		}
		return 1, seen[sku]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RevenueCents != out[j].RevenueCents {
			return out[i].RevenueCents > out[j].RevenueCents
		}
		gi, pi := rank(out[i].SKU)
		gj, pj := rank(out[j].SKU)
		if gi != gj {
			return gi < gj
		}
		return pi < pj
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}
