// Package memory implements store.Repository with mutex-guarded maps. It
// backs dev/demo mode when DATABASE_URL is unset and the service and HTTP
// tests. The single mutex gives every sale operation the same all-or-nothing
// behavior the Postgres transaction provides.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"krishikendra/backend/internal/domain"
	"krishikendra/backend/internal/invoice"
	"krishikendra/backend/internal/store"
)

type Store struct {
	mu              sync.Mutex
	products        map[string]domain.Product
	sales           map[string]domain.Sale
	salesByInvoice  map[string]string
	invoiceCounters map[string]int
	now             func() time.Time
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		sales:           make(map[string]domain.Sale),
		salesByInvoice:  make(map[string]string),
		invoiceCounters: make(map[string]int),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store preloaded with the demo catalog for dev mode.
func NewSeeded() *Store {
	s := New()
	now := s.now()
	for _, p := range []domain.Product{
		{Name: "Wheat Seeds Premium", Category: "Seeds", Price: 12000, CostPrice: 9000, Stock: 100, Unit: "kg", MinStockAlert: 20},
		{Name: "NPK Fertilizer", Category: "Fertilizers", Price: 85000, CostPrice: 70000, Stock: 50, Unit: "kg", MinStockAlert: 10},
		{Name: "Weed Control Plus", Category: "Herbicides", Price: 45000, CostPrice: 35000, Stock: 30, Unit: "l", MinStockAlert: 5},
		{Name: "Insect Shield", Category: "Pesticides", Price: 55000, CostPrice: 42000, Stock: 25, Unit: "l", MinStockAlert: 5},
	} {
		p.ID = uuid.NewString()
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// SetClock overrides the store's clock. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.Invalid("name", "product name already exists")
		}
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.NotFound("product", product.ID)
	}
	for id, other := range s.products {
		if id != product.ID && strings.EqualFold(other.Name, product.Name) {
			return nil, store.Invalid("name", "product name already exists")
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.Stock = existing.Stock
	product.UpdatedAt = s.now()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.NotFound("product", id)
	}
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.Invalid("id", "product is referenced by existing sales")
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	if p.Stock+delta < 0 {
		return nil, &store.InsufficientStockError{ProductName: p.Name, Requested: -delta, Available: p.Stock}
	}
	p.Stock += delta
	p.UpdatedAt = s.now()
	s.products[id] = p

	adjusted := p
	return &adjusted, nil
}

func (s *Store) LowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	low := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Stock <= p.MinStockAlert {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Name < low[j].Name })
	return low, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.Invalid("items", "no items")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = s.now()
	}

	// Resolve and check every line before touching any stock so a failing
	// line leaves the catalog untouched. The remaining map carries the
	// running balance so duplicate-product lines are checked cumulatively.
	resolved := make([]domain.SaleItem, 0, len(sale.Items))
	remaining := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.Invalid("quantity", "must be at least 1")
		}
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, store.NotFound("product", item.ProductID)
		}
		if _, seen := remaining[item.ProductID]; !seen {
			remaining[item.ProductID] = product.Stock
		}
		if remaining[item.ProductID] < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   remaining[item.ProductID],
			}
		}
		remaining[item.ProductID] -= item.Quantity
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

	period := invoice.Period(sale.SaleDate)
	next := s.invoiceCounters[period] + 1
	if next > invoice.MaxSequence {
		return nil, &store.SequenceExhaustedError{Period: period}
	}

	// Every check passed; apply all effects together.
	s.invoiceCounters[period] = next
	for _, item := range sale.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		p.UpdatedAt = s.now()
		s.products[item.ProductID] = p
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	sale.InvoiceNumber = invoice.Number(sale.SaleDate, next)
	s.sales[sale.ID] = cloneSale(sale)
	s.salesByInvoice[sale.InvoiceNumber] = sale.ID

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) GetSaleByInvoice(_ context.Context, invoiceNumber string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.salesByInvoice[invoiceNumber]
	if !ok {
		return nil, store.NotFound("sale", invoiceNumber)
	}
	found := cloneSale(s.sales[id])
	return &found, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.NotFound("sale", id)
	}

	for _, item := range sale.Items {
		p, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		p.Stock += item.Quantity
		p.UpdatedAt = s.now()
		s.products[item.ProductID] = p
	}

	delete(s.sales, id)
	delete(s.salesByInvoice, sale.InvoiceNumber)
	return nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter, page domain.Pagination) (*domain.SaleListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !matches(sale, filter) {
			continue
		}
		matched = append(matched, cloneSale(sale))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SaleDate.Equal(matched[j].SaleDate) {
			return matched[i].SaleDate.After(matched[j].SaleDate)
		}
		return matched[i].InvoiceNumber > matched[j].InvoiceNumber
	})

	summary := domain.SaleSummary{}
	for _, sale := range matched {
		summary.TotalSales += sale.TotalAmount
		summary.TotalProfit += sale.Profit
		summary.PendingAmount += sale.PendingAmount
	}
	if len(matched) > 0 {
		summary.AverageSale = summary.TotalSales / int64(len(matched))
	}

	total := len(matched)
	start := (page.Page - 1) * page.PageSize
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}

	return &domain.SaleListResult{
		Sales:   matched[start:end],
		Total:   total,
		Summary: summary,
	}, nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id string, status string, pendingAmount int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}

	pending, err := store.NormalizePending(status, pendingAmount, sale.TotalAmount)
	if err != nil {
		return nil, err
	}
	sale.PaymentStatus = status
	sale.PendingAmount = pending
	s.sales[id] = cloneSale(sale)

	updated := cloneSale(sale)
	return &updated, nil
}

func matches(sale domain.Sale, filter domain.SaleFilter) bool {
	if filter.From != nil && sale.SaleDate.Before(*filter.From) {
		return false
	}
	if filter.To != nil && sale.SaleDate.After(*filter.To) {
		return false
	}
	if filter.CustomerName != "" &&
		!strings.Contains(strings.ToLower(sale.CustomerName), strings.ToLower(filter.CustomerName)) {
		return false
	}
	if filter.PaymentStatus != "" && sale.PaymentStatus != filter.PaymentStatus {
		return false
	}
	return true
}

func cloneSale(sale domain.Sale) domain.Sale {
	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	sale.Items = items
	return sale
}
