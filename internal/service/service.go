package service

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"krishikendra/backend/internal/cache"
	"krishikendra/backend/internal/domain"
	"krishikendra/backend/internal/store"
)

const dashboardCacheKey = "dashboard:v1"

// maxTxAttempts bounds automatic retries of storage-level transaction
// conflicts. Only TransactionConflictError is retried; everything else
// surfaces immediately.
const maxTxAttempts = 3

const (
	defaultPageSize = 20
	maxPageSize     = 100
	recentSalesN    = 5
)

type Service struct {
	repo      store.Repository
	cache     cache.DashboardCache
	log       *zap.Logger
	validate  *validator.Validate
	cacheTTL  time.Duration
	retryBase time.Duration
}

func New(repo store.Repository, dashCache cache.DashboardCache, logger *zap.Logger, cacheTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return &Service{
		repo:      repo,
		cache:     dashCache,
		log:       logger,
		validate:  validate,
		cacheTTL:  cacheTTL,
		retryBase: 50 * time.Millisecond,
	}
}

func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	if category != "" && !slices.Contains(domain.Categories, category) {
		return nil, store.Invalid("category", "unknown category")
	}
	return s.repo.ListProducts(ctx, category)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	if req.MinStockAlert == 0 {
		req.MinStockAlert = domain.DefaultMinStockAlert
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		Stock:         req.Stock,
		Unit:          req.Unit,
		MinStockAlert: req.MinStockAlert,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("id", created.ID),
		zap.String("name", created.Name),
		zap.Int("stock", created.Stock))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.Invalid("name", "must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.Unit != nil {
		updated.Unit = *req.Unit
	}
	if req.MinStockAlert != nil {
		updated.MinStockAlert = *req.MinStockAlert
	}

	return s.repo.UpdateProduct(ctx, updated)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

// AdjustStock applies a direct catalog stock correction outside any sale.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (*domain.Product, error) {
	if req.Delta == 0 {
		return nil, store.Invalid("delta", "must not be zero")
	}

	var adjusted *domain.Product
	err := s.withRetry(ctx, "adjust_stock", func() error {
		var err error
		adjusted, err = s.repo.AdjustStock(ctx, id, req.Delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx)
	return adjusted, nil
}

// CreateSale runs the whole sale as one atomic unit: if any line item fails
// validation or stock is insufficient, no stock changes, no sale record and
// no invoice sequence survive.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = domain.PaymentStatusPaid
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.SaleItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
		})
	}

	sale := domain.Sale{
		CustomerName:  req.CustomerName,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Items:         items,
		Discount:      req.Discount,
		Tax:           req.Tax,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
		PendingAmount: req.PendingAmount,
		Notes:         strings.TrimSpace(req.Notes),
	}

	var created *domain.Sale
	err := s.withRetry(ctx, "create_sale", func() error {
		var err error
		created, err = s.repo.CreateSale(ctx, sale)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx)
	s.log.Info("sale created",
		zap.String("invoice", created.InvoiceNumber),
		zap.String("customer", created.CustomerName),
		zap.Int64("total", created.TotalAmount),
		zap.Int("items", len(created.Items)))
	return created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) GetSaleByInvoice(ctx context.Context, invoiceNumber string) (*domain.Sale, error) {
	return s.repo.GetSaleByInvoice(ctx, invoiceNumber)
}

// DeleteSale is the compensating action: every line item's quantity returns
// to stock and the sale record disappears, atomically.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	err := s.withRetry(ctx, "delete_sale", func() error {
		return s.repo.DeleteSale(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	s.log.Info("sale deleted", zap.String("id", id))
	return nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter, page domain.Pagination) (*domain.SaleListResult, error) {
	if filter.PaymentStatus != "" && !slices.Contains(domain.PaymentStatuses, filter.PaymentStatus) {
		return nil, store.Invalid("paymentStatus", "unknown payment status")
	}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = defaultPageSize
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}
	return s.repo.ListSales(ctx, filter, page)
}

func (s *Service) UpdatePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (*domain.Sale, error) {
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, req.PaymentStatus, req.PendingAmount)
	if err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx)
	return updated, nil
}

// Dashboard aggregates the store totals, the most recent sales and the
// low-stock alerts. Served from cache when fresh.
func (s *Service) Dashboard(ctx context.Context) (*domain.DashboardResponse, error) {
	if cached, ok, err := s.cache.Get(ctx, dashboardCacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.log.Warn("dashboard cache read failed", zap.Error(err))
	}

	recent, err := s.repo.ListSales(ctx, domain.SaleFilter{}, domain.Pagination{Page: 1, PageSize: recentSalesN})
	if err != nil {
		return nil, err
	}
	lowStock, err := s.repo.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}

	resp := &domain.DashboardResponse{
		Summary:          recent.Summary,
		RecentSales:      recent.Sales,
		LowStockProducts: lowStock,
	}

	if err := s.cache.Set(ctx, dashboardCacheKey, resp, s.cacheTTL); err != nil {
		s.log.Warn("dashboard cache write failed", zap.Error(err))
	}
	return resp, nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.log.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = fn()
		var conflict *store.TransactionConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		if attempt < maxTxAttempts {
			s.log.Warn("transaction conflict, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return err
			case <-time.After(s.retryBase * time.Duration(attempt)):
			}
		}
	}
	return err
}

// checkStruct runs validator tags and converts the first failure into a
// ValidationError naming the offending field.
func (s *Service) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return store.Invalid(first.Field(), "failed "+first.Tag()+" validation")
	}
	return err
}
