package domain

import "time"

// All monetary amounts are integer paise. Quantities are whole units of the
// product's unit of measure.

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Price         int64     `json:"price"`
	CostPrice     int64     `json:"costPrice"`
	Stock         int       `json:"stock"`
	Unit          string    `json:"unit"`
	MinStockAlert int       `json:"minStockAlert"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Name          string `json:"name" validate:"required"`
	Category      string `json:"category" validate:"required,oneof=Seeds Fertilizers Herbicides Pesticides"`
	Price         int64  `json:"price" validate:"min=0"`
	CostPrice     int64  `json:"costPrice" validate:"min=0"`
	Stock         int    `json:"stock" validate:"min=0"`
	Unit          string `json:"unit" validate:"required,oneof=kg g l ml packet"`
	MinStockAlert int    `json:"minStockAlert" validate:"min=0"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Category      *string `json:"category,omitempty" validate:"omitempty,oneof=Seeds Fertilizers Herbicides Pesticides"`
	Price         *int64  `json:"price,omitempty" validate:"omitempty,min=0"`
	CostPrice     *int64  `json:"costPrice,omitempty" validate:"omitempty,min=0"`
	Unit          *string `json:"unit,omitempty" validate:"omitempty,oneof=kg g l ml packet"`
	MinStockAlert *int    `json:"minStockAlert,omitempty" validate:"omitempty,min=0"`
}

type StockAdjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// SaleItem is owned by its parent Sale. Name, unit and both prices are
// captured from the catalog at sale time so later catalog edits never alter
// historical sales.
type SaleItem struct {
	ProductID    string `json:"product"`
	ProductName  string `json:"productName"`
	Quantity     int    `json:"quantity"`
	Unit         string `json:"unit"`
	PricePerUnit int64  `json:"pricePerUnit"`
	CostPerUnit  int64  `json:"costPerUnit"`
	TotalPrice   int64  `json:"totalPrice"`
}

type Sale struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoiceNumber"`
	CustomerName  string     `json:"customerName"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	Items         []SaleItem `json:"items"`
	Subtotal      int64      `json:"subtotal"`
	Discount      int64      `json:"discount"`
	Tax           int64      `json:"tax"`
	TotalAmount   int64      `json:"totalAmount"`
	Profit        int64      `json:"profit"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentStatus string     `json:"paymentStatus"`
	PendingAmount int64      `json:"pendingAmount"`
	SaleDate      time.Time  `json:"saleDate"`
	Notes         string     `json:"notes,omitempty"`
}

type SaleItemRequest struct {
	ProductID string `json:"product" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	// PricePerUnit overrides the catalog price when positive; zero means
	// "charge the current catalog price".
	PricePerUnit int64 `json:"pricePerUnit" validate:"min=0"`
}

type SaleCreateRequest struct {
	CustomerName  string            `json:"customerName" validate:"required"`
	CustomerPhone string            `json:"customerPhone"`
	Items         []SaleItemRequest `json:"items" validate:"min=1,dive"`
	Discount      int64             `json:"discount" validate:"min=0"`
	Tax           int64             `json:"tax" validate:"min=0"`
	PaymentMethod string            `json:"paymentMethod" validate:"omitempty,oneof=cash upi card credit"`
	PaymentStatus string            `json:"paymentStatus" validate:"omitempty,oneof=paid partial pending"`
	PendingAmount int64             `json:"pendingAmount" validate:"min=0"`
	Notes         string            `json:"notes"`
}

type PaymentUpdateRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required,oneof=paid partial pending"`
	PendingAmount int64  `json:"pendingAmount" validate:"min=0"`
}

type SaleFilter struct {
	From          *time.Time
	To            *time.Time
	CustomerName  string
	PaymentStatus string
}

type Pagination struct {
	Page     int
	PageSize int
}

// SaleSummary aggregates over the whole filtered set, not just the returned page.
type SaleSummary struct {
	TotalSales    int64 `json:"totalSales"`
	TotalProfit   int64 `json:"totalProfit"`
	AverageSale   int64 `json:"averageSale"`
	PendingAmount int64 `json:"pendingAmount"`
}

type SaleListResult struct {
	Sales   []Sale      `json:"sales"`
	Total   int         `json:"total"`
	Summary SaleSummary `json:"summary"`
}

type DashboardResponse struct {
	Summary          SaleSummary `json:"summary"`
	RecentSales      []Sale      `json:"recentSales"`
	LowStockProducts []Product   `json:"lowStockProducts"`
}

const (
	PaymentMethodCash   = "cash"
	PaymentMethodUPI    = "upi"
	PaymentMethodCard   = "card"
	PaymentMethodCredit = "credit"
)

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
	PaymentStatusPending = "pending"
)

var Categories = []string{"Seeds", "Fertilizers", "Herbicides", "Pesticides"}

var PaymentStatuses = []string{PaymentStatusPaid, PaymentStatusPartial, PaymentStatusPending}

var Units = []string{"kg", "g", "l", "ml", "packet"}

const DefaultMinStockAlert = 5
