package store

import (
	"context"

	"krishikendra/backend/internal/domain"
)

// Repository is the storage contract shared by the Postgres and in-memory
// implementations. Sale creation and deletion are atomic: either every stock
// adjustment, the invoice-sequence reservation and the sale record commit
// together, or none of them do.
type Repository interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
	LowStockProducts(ctx context.Context) ([]domain.Product, error)

	// CreateSale resolves every line item against the catalog, checks and
	// decrements stock, reserves the next invoice number for the sale's
	// period and persists the record, all in one transaction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByInvoice(ctx context.Context, invoiceNumber string) (*domain.Sale, error)
	// DeleteSale restores every line item's quantity to stock and removes
	// the sale record in one transaction.
	DeleteSale(ctx context.Context, id string) error
	ListSales(ctx context.Context, filter domain.SaleFilter, page domain.Pagination) (*domain.SaleListResult, error)
	UpdatePaymentStatus(ctx context.Context, id string, status string, pendingAmount int64) (*domain.Sale, error)
}
