/*
stats.go - Read-only aggregate queries for the dashboard

PURPOSE:
  The query/aggregation side of the store: overview totals, per-store
  and per-day breakdowns, top products, recent sales, store diagnosis
  and data-coverage reports. Everything here only reads the tables the
  sync engine writes.

DAY GROUPING:
  created_at is stored as RFC3339 text (the normalizer rewrites
  parseable vendor timestamps), so "the day" is substr(created_at,1,10)
  and date-range filters are lexicographic comparisons. substr() exists
  on both backends, which keeps these queries single-sourced.

SEE ALSO:
  - store.go: Writers and schema
  - api/handlers.go: HTTP surface over these queries
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Filter narrows aggregate queries by day range and store ids. Empty
// fields are unbounded. Days are YYYY-MM-DD.
type Filter struct {
	FromDay  string
	ToDay    string
	StoreIDs []int64
}

func (f Filter) whereClause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.FromDay != "" {
		conds = append(conds, "substr(created_at, 1, 10) >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		conds = append(conds, "substr(created_at, 1, 10) <= ?")
		args = append(args, f.ToDay)
	}
	if len(f.StoreIDs) > 0 {
		placeholders := make([]string, len(f.StoreIDs))
		for i, id := range f.StoreIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, fmt.Sprintf("store_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// OverviewTotals is the headline order count and revenue for a filter.
type OverviewTotals struct {
	Orders int64
	Amount float64
}

// PaymentMethodStat is one raw payment method's count and total.
type PaymentMethodStat struct {
	Method string
	Count  int64
	Total  float64
}

// StoreStat is one store's order count and total.
type StoreStat struct {
	StoreID int64
	Count   int64
	Total   float64
}

// DayStat is one day's order count and total.
type DayStat struct {
	Day   string
	Count int64
	Total float64
}

// ProductStat is one product's aggregated revenue and quantity.
type ProductStat struct {
	Name     string
	Total    float64
	Quantity float64
}

// RecentSaleRow is one order joined with one of its line items.
type RecentSaleRow struct {
	OrderID       int64
	StoreID       int64
	TotalAmount   float64
	PaymentMethod string
	CreatedAt     string
	ProductName   string
	ProductAmount float64
}

// DiagnosisStats summarizes one store's orders over some scope.
type DiagnosisStats struct {
	Orders   int64
	Amount   float64
	Earliest string
	Latest   string
}

// ValidationStats is the read-only local drift/staleness snapshot.
type ValidationStats struct {
	Orders    int64
	Products  int64
	Sessions  int64
	Accounts  int64
	LastOrder string
}

// Overview returns headline totals for the filter.
func (s *Store) Overview(ctx context.Context, f Filter) (OverviewTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM sale_orders %s`, where))

	var out OverviewTotals
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&out.Orders, &out.Amount); err != nil {
		return OverviewTotals{}, fmt.Errorf("overview totals: %w", err)
	}
	return out, nil
}

// ByPaymentMethod returns per-method counts and totals for the filter.
// Bucketing into display groups is the caller's concern.
func (s *Store) ByPaymentMethod(ctx context.Context, f Filter) ([]PaymentMethodStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT COALESCE(payment_method, 'unknown'), COUNT(*), COALESCE(SUM(total_amount), 0)
		 FROM sale_orders %s
		 GROUP BY payment_method`, where))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("by payment method: %w", err)
	}
	defer rows.Close()

	var out []PaymentMethodStat
	for rows.Next() {
		var stat PaymentMethodStat
		if err := rows.Scan(&stat.Method, &stat.Count, &stat.Total); err != nil {
			return nil, err
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

// ByStore returns per-store counts and totals for the filter.
func (s *Store) ByStore(ctx context.Context, f Filter) ([]StoreStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT COALESCE(store_id, 0), COUNT(*), COALESCE(SUM(total_amount), 0)
		 FROM sale_orders %s
		 GROUP BY store_id`, where))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("by store: %w", err)
	}
	defer rows.Close()

	var out []StoreStat
	for rows.Next() {
		var stat StoreStat
		if err := rows.Scan(&stat.StoreID, &stat.Count, &stat.Total); err != nil {
			return nil, err
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

// Daily returns per-day counts and totals for the filter, ordered by day.
func (s *Store) Daily(ctx context.Context, f Filter) ([]DayStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT substr(created_at, 1, 10) AS day, COUNT(*), COALESCE(SUM(total_amount), 0)
		 FROM sale_orders %s
		 GROUP BY substr(created_at, 1, 10)
		 ORDER BY day`, where))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily: %w", err)
	}
	defer rows.Close()

	var out []DayStat
	for rows.Next() {
		var (
			day  sql.NullString
			stat DayStat
		)
		if err := rows.Scan(&day, &stat.Count, &stat.Total); err != nil {
			return nil, err
		}
		stat.Day = day.String
		out = append(out, stat)
	}
	return out, rows.Err()
}

// TopProducts returns the highest-revenue products for the filter.
func (s *Store) TopProducts(ctx context.Context, f Filter, limit int) ([]ProductStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT COALESCE(product_name, 'unknown'), COALESCE(SUM(total_amount), 0), COALESCE(SUM(quantity), 0)
		 FROM sale_products %s
		 GROUP BY product_name
		 ORDER BY COALESCE(SUM(total_amount), 0) DESC
		 LIMIT ?`, where))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	var out []ProductStat
	for rows.Next() {
		var stat ProductStat
		if err := rows.Scan(&stat.Name, &stat.Total, &stat.Quantity); err != nil {
			return nil, err
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

// StoreIDs returns the distinct store ids present in the data.
func (s *Store) StoreIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT store_id FROM sale_orders WHERE store_id IS NOT NULL ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("store ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecentSales returns the latest limit orders with their line items,
// newest orders and largest items first. Two queries: orders first,
// then the items of exactly those orders, so an order with many line
// items never crowds later orders out of the window. The caller
// reduces each order to its main product.
func (s *Store) RecentSales(ctx context.Context, storeIDs []int64, limit int) ([]RecentSaleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where string
		args  []any
	)
	if len(storeIDs) > 0 {
		placeholders := make([]string, len(storeIDs))
		for i, id := range storeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = fmt.Sprintf("WHERE store_id IN (%s)", strings.Join(placeholders, ","))
	}

	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT id, COALESCE(store_id, 0), COALESCE(total_amount, 0),
		       COALESCE(payment_method, ''), COALESCE(created_at, '')
		FROM sale_orders
		%s
		ORDER BY created_at DESC
		LIMIT ?`, where))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent sales: %w", err)
	}
	defer rows.Close()

	type orderHead struct {
		id            int64
		storeID       int64
		totalAmount   float64
		paymentMethod string
		createdAt     string
	}
	var heads []orderHead
	for rows.Next() {
		var h orderHead
		if err := rows.Scan(&h.id, &h.storeID, &h.totalAmount, &h.paymentMethod, &h.createdAt); err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(heads))
	for i, h := range heads {
		ids[i] = h.id
	}
	items, err := s.lineItemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []RecentSaleRow
	for _, h := range heads {
		base := RecentSaleRow{
			OrderID:       h.id,
			StoreID:       h.storeID,
			TotalAmount:   h.totalAmount,
			PaymentMethod: h.paymentMethod,
			CreatedAt:     h.createdAt,
		}
		lines := items[h.id]
		if len(lines) == 0 {
			out = append(out, base)
			continue
		}
		for _, line := range lines {
			row := base
			row.ProductName = line.name
			row.ProductAmount = line.amount
			out = append(out, row)
		}
	}
	return out, nil
}

type lineItem struct {
	name   string
	amount float64
}

// lineItemsFor loads the line items of the given orders, largest first
// per order.
func (s *Store) lineItemsFor(ctx context.Context, orderIDs []int64) (map[int64][]lineItem, error) {
	placeholders := make([]string, len(orderIDs))
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT order_id, COALESCE(product_name, ''), COALESCE(total_amount, 0)
		FROM sale_products
		WHERE order_id IN (%s)
		ORDER BY total_amount DESC`, strings.Join(placeholders, ",")))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent sale items: %w", err)
	}
	defer rows.Close()

	out := map[int64][]lineItem{}
	for rows.Next() {
		var (
			orderID int64
			item    lineItem
		)
		if err := rows.Scan(&orderID, &item.name, &item.amount); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

// StoreOrderCount returns how many orders exist for one store.
func (s *Store) StoreOrderCount(ctx context.Context, storeID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := s.dialect.Rebind(`SELECT COUNT(*) FROM sale_orders WHERE store_id = ?`)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, storeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store order count: %w", err)
	}
	return n, nil
}

// StoreDiagnosis summarizes one store's orders, optionally narrowed to
// a day range.
func (s *Store) StoreDiagnosis(ctx context.Context, storeID int64, fromDay, toDay string) (DiagnosisStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conds := []string{"store_id = ?"}
	args := []any{storeID}
	if fromDay != "" {
		conds = append(conds, "substr(created_at, 1, 10) >= ?")
		args = append(args, fromDay)
	}
	if toDay != "" {
		conds = append(conds, "substr(created_at, 1, 10) <= ?")
		args = append(args, toDay)
	}

	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(total_amount), 0),
		        COALESCE(MIN(created_at), ''), COALESCE(MAX(created_at), '')
		 FROM sale_orders WHERE %s`, strings.Join(conds, " AND ")))

	var out DiagnosisStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&out.Orders, &out.Amount, &out.Earliest, &out.Latest); err != nil {
		return DiagnosisStats{}, fmt.Errorf("store diagnosis: %w", err)
	}
	return out, nil
}

// AvailableDates returns the distinct days with orders for the filter.
func (s *Store) AvailableDates(ctx context.Context, f Filter) ([]DayStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(
		`SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		 FROM sale_orders %s
		 GROUP BY substr(created_at, 1, 10)
		 ORDER BY day`, where))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("available dates: %w", err)
	}
	defer rows.Close()

	var out []DayStat
	for rows.Next() {
		var (
			day  sql.NullString
			stat DayStat
		)
		if err := rows.Scan(&day, &stat.Count); err != nil {
			return nil, err
		}
		stat.Day = day.String
		out = append(out, stat)
	}
	return out, rows.Err()
}

// ProductCount returns how many line items match the filter.
func (s *Store) ProductCount(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	query := s.dialect.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM sale_products %s`, where))

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("product count: %w", err)
	}
	return n, nil
}

// CountOrders returns the total number of persisted orders.
func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sale_orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// Validation computes the read-only drift/staleness snapshot used by
// the local validation job. Makes no upstream calls.
func (s *Store) Validation(ctx context.Context) (ValidationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out ValidationStats
	query := `
		SELECT
			(SELECT COUNT(*) FROM sale_orders),
			(SELECT COUNT(*) FROM sale_products),
			(SELECT COUNT(*) FROM psessions),
			(SELECT COUNT(DISTINCT account_email) FROM sale_orders),
			(SELECT COALESCE(MAX(created_at), '') FROM sale_orders)
	`
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&out.Orders, &out.Products, &out.Sessions, &out.Accounts, &out.LastOrder); err != nil {
		return ValidationStats{}, fmt.Errorf("validation stats: %w", err)
	}
	return out, nil
}
