package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"krishikendra/backend/internal/domain"
	"krishikendra/backend/internal/invoice"
	"krishikendra/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &store.StorageUnavailableError{Err: err}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, cost_price, stock, unit, min_stock_alert, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR category = $1)
		ORDER BY name
	`, category)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, cost_price, stock, unit, min_stock_alert, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, pgError(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, cost_price, stock, unit, min_stock_alert, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Category, product.Price, product.CostPrice,
		product.Stock, product.Unit, product.MinStockAlert, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("name", "product name already exists")
		}
		return nil, pgError(err)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, cost_price = $5, unit = $6, min_stock_alert = $7, updated_at = $8
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.CostPrice,
		product.Unit, product.MinStockAlert, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("name", "product name already exists")
		}
		return nil, pgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, pgError(err)
	}
	if affected == 0 {
		return nil, store.NotFound("product", product.ID)
	}

	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return pgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return pgError(err)
	}
	if referenced {
		return store.Invalid("id", "product is referenced by existing sales")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return pgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return pgError(err)
	}
	if affected == 0 {
		return store.NotFound("product", id)
	}

	if err := tx.Commit(); err != nil {
		return pgError(err)
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, pgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var stock int
	err = tx.QueryRowContext(ctx, `
		SELECT name, stock
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, pgError(err)
	}
	if stock+delta < 0 {
		return nil, &store.InsufficientStockError{ProductName: name, Requested: -delta, Available: stock}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return nil, pgError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, pgError(err)
	}

	return s.GetProduct(ctx, id)
}

func (s *Store) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, cost_price, stock, unit, min_stock_alert, created_at, updated_at
		FROM products
		WHERE stock <= min_stock_alert
		ORDER BY name
	`)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}

	return products, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.Invalid("items", "no items")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, pgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := uniqueProductIDs(sale.Items)
	productRows, err := tx.QueryContext(ctx, `
		SELECT id, name, price, cost_price, stock, unit
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, pgError(err)
	}
	productMap := make(map[string]domain.Product, len(ids))
	remaining := make(map[string]int, len(ids))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.Price, &p.CostPrice, &p.Stock, &p.Unit); err != nil {
			_ = productRows.Close()
			return nil, pgError(err)
		}
		productMap[p.ID] = p
		remaining[p.ID] = p.Stock
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, pgError(err)
	}
	_ = productRows.Close()

	resolved := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.Invalid("quantity", "must be at least 1")
		}
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, store.NotFound("product", item.ProductID)
		}
		if remaining[item.ProductID] < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   remaining[item.ProductID],
			}
		}
		remaining[item.ProductID] -= item.Quantity

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, pgError(err)
		}

		price := item.PricePerUnit
		if price <= 0 {
			price = product.Price
		}
		resolved = append(resolved, domain.SaleItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     item.Quantity,
			Unit:         product.Unit,
			PricePerUnit: price,
			CostPerUnit:  product.CostPrice,
		})
	}
	sale.Items = resolved

	if err := store.FinalizeSale(&sale); err != nil {
		return nil, err
	}

	// Atomic per-period reservation: the counter increment commits or rolls
	// back with the rest of the sale, so aborted sales never consume a
	// sequence and concurrent sales never share one.
	period := invoice.Period(sale.SaleDate)
	var seq int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (period, seq)
		VALUES ($1, 1)
		ON CONFLICT (period)
		DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`, period).Scan(&seq)
	if err != nil {
		return nil, pgError(err)
	}
	if seq > invoice.MaxSequence {
		return nil, &store.SequenceExhaustedError{Period: period}
	}
	sale.InvoiceNumber = invoice.Number(sale.SaleDate, seq)

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, customer_name, customer_phone, subtotal, discount,
			tax, total_amount, profit, payment_method, payment_status,
			pending_amount, sale_date, notes
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.InvoiceNumber, sale.CustomerName, nullIfEmpty(sale.CustomerPhone),
		sale.Subtotal, sale.Discount, sale.Tax, sale.TotalAmount, sale.Profit,
		sale.PaymentMethod, sale.PaymentStatus, sale.PendingAmount, sale.SaleDate,
		nullIfEmpty(sale.Notes))
	if err != nil {
		return nil, pgError(err)
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit, price_per_unit, cost_per_unit, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, item.ProductID, item.ProductName, item.Quantity, item.Unit,
			item.PricePerUnit, item.CostPerUnit, item.TotalPrice)
		if err != nil {
			return nil, pgError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, pgError(err)
	}

	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) GetSaleByInvoice(ctx context.Context, invoiceNumber string) (*domain.Sale, error) {
	return s.findSale(ctx, "invoice_number", invoiceNumber)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "invoice_number" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, invoice_number, customer_name, COALESCE(customer_phone, ''),
			subtotal, discount, tax, total_amount, profit, payment_method,
			payment_status, pending_amount, sale_date, COALESCE(notes, '')
		FROM sales
		WHERE %s = $1
	`, column)

	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&sale.ID,
		&sale.InvoiceNumber,
		&sale.CustomerName,
		&sale.CustomerPhone,
		&sale.Subtotal,
		&sale.Discount,
		&sale.Tax,
		&sale.TotalAmount,
		&sale.Profit,
		&sale.PaymentMethod,
		&sale.PaymentStatus,
		&sale.PendingAmount,
		&sale.SaleDate,
		&sale.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("sale", value)
		}
		return nil, pgError(err)
	}
	sale.SaleDate = sale.SaleDate.UTC()

	items, err := s.loadItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]

	return &sale, nil
}

func (s *Store) loadItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit, price_per_unit, cost_per_unit, total_price
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.Unit, &item.PricePerUnit, &item.CostPerUnit, &item.TotalPrice); err != nil {
			return nil, pgError(err)
		}
		result[saleID] = append(result[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}
	return result, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return pgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var saleID string
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.NotFound("sale", id)
		}
		return pgError(err)
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return pgError(err)
	}
	type restore struct {
		productID string
		qty       int
	}
	restores := make([]restore, 0, 8)
	for itemRows.Next() {
		var r restore
		if err := itemRows.Scan(&r.productID, &r.qty); err != nil {
			_ = itemRows.Close()
			return pgError(err)
		}
		restores = append(restores, r)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return pgError(err)
	}
	_ = itemRows.Close()

	for _, r := range restores {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, r.qty, r.productID)
		if err != nil {
			return pgError(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return pgError(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return pgError(err)
	}

	if err := tx.Commit(); err != nil {
		return pgError(err)
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter, page domain.Pagination) (*domain.SaleListResult, error) {
	where, args := buildSaleFilter(filter)

	var result domain.SaleListResult
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(profit), 0), COALESCE(SUM(pending_amount), 0)
		FROM sales
	`+where, args...).Scan(&result.Total, &result.Summary.TotalSales, &result.Summary.TotalProfit, &result.Summary.PendingAmount)
	if err != nil {
		return nil, pgError(err)
	}
	if result.Total > 0 {
		result.Summary.AverageSale = result.Summary.TotalSales / int64(result.Total)
	}

	limitArgs := append(args, page.PageSize, (page.Page-1)*page.PageSize)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, invoice_number, customer_name, COALESCE(customer_phone, ''),
			subtotal, discount, tax, total_amount, profit, payment_method,
			payment_status, pending_amount, sale_date, COALESCE(notes, '')
		FROM sales
		%s
		ORDER BY sale_date DESC, invoice_number DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2), limitArgs...)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, page.PageSize)
	saleIDs := make([]string, 0, page.PageSize)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerName, &sale.CustomerPhone,
			&sale.Subtotal, &sale.Discount, &sale.Tax, &sale.TotalAmount, &sale.Profit,
			&sale.PaymentMethod, &sale.PaymentStatus, &sale.PendingAmount, &sale.SaleDate, &sale.Notes); err != nil {
			return nil, pgError(err)
		}
		sale.SaleDate = sale.SaleDate.UTC()
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}

	items, err := s.loadItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	result.Sales = sales

	return &result, nil
}

func buildSaleFilter(filter domain.SaleFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("sale_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("sale_date <= $%d", len(args)))
	}
	if filter.CustomerName != "" {
		args = append(args, "%"+filter.CustomerName+"%")
		clauses = append(clauses, fmt.Sprintf("customer_name ILIKE $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		clauses = append(clauses, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status string, pendingAmount int64) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, pgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	err = tx.QueryRowContext(ctx, `
		SELECT total_amount
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("sale", id)
		}
		return nil, pgError(err)
	}

	pending, err := store.NormalizePending(status, pendingAmount, total)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET payment_status = $2, pending_amount = $3
		WHERE id = $1
	`, id, status, pending)
	if err != nil {
		return nil, pgError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, pgError(err)
	}

	return s.GetSale(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.CostPrice,
		&p.Stock, &p.Unit, &p.MinStockAlert, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// pgError classifies raw database errors: serialization and deadlock
// failures become retryable conflicts, dead connections become storage
// unavailability. Everything else passes through.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return &store.TransactionConflictError{Err: err}
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return &store.StorageUnavailableError{Err: err}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
