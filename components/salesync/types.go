package salesync

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
)

// ProductStatus mirrors the backend's inventory status enum.
type ProductStatus string

const (
	StatusActive       ProductStatus = "active"
	StatusOutOfStock   ProductStatus = "out_of_stock"
	StatusDiscontinued ProductStatus = "discontinued"
)

// Product is a read/write cached copy of a backend product. The backend owns
// the record; the client keeps it only for the lifetime of a view.
type Product struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  int             `json:"category_id"`
	Brand       string          `json:"brand"`
	Status      ProductStatus   `json:"status,omitempty"`
}

// Category is a backend category; name uniqueness and rename policy live
// server-side.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Sale is the record subject to optimistic editing. Date is kept as the
// server's ISO string so the echo after a save shows any normalization.
type Sale struct {
	ID         int             `json:"id"`
	ProductID  int             `json:"product_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Date       string          `json:"date"`
}

// Filter selects which raw records are fetched and how they are sliced.
// CategoryID is the backend's string form; empty means unfiltered.
type Filter struct {
	Year       int
	CategoryID string
}

// RawPeriod is a single month bucket as the backend reports it. Profit is nil
// when the backend omits the figure, which is distinct from a reported zero.
type RawPeriod struct {
	Orders     int              `json:"orders"`
	TotalPrice decimal.Decimal  `json:"total_price"`
	Profit     *decimal.Decimal `json:"profit"`
}

// RawStats is the payload of GET /sales/stats. Months absent from Sales are
// filled in by the aggregation engine, never trusted to be complete here.
type RawStats struct {
	Sales       map[string]RawPeriod `json:"sales"`
	Total       decimal.Decimal      `json:"total"`
	Orders      int                  `json:"orders"`
	TotalProfit decimal.Decimal      `json:"total_profit"`
}

// Backend is the REST surface the coordinator and editor depend on. The
// production implementation lives in pkg/backend; tests substitute fakes.
type Backend interface {
	FetchProducts(ctx context.Context, categoryID string) ([]Product, error)
	FetchCategories(ctx context.Context) ([]Category, error)
	FetchStats(ctx context.Context, year int, categoryID string) (RawStats, error)
	FetchYears(ctx context.Context) ([]int, error)
	UpdateSale(ctx context.Context, id int, patch map[string]any) (Sale, error)
}

// ImportReport is the backend's answer to a CSV import.
type ImportReport struct {
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

// Transfer covers the bulk CSV endpoints, separate from Backend so fakes for
// the sync core do not have to implement them.
type Transfer interface {
	ImportCSV(ctx context.Context, kind ImportKind, filename string, file io.Reader) (ImportReport, error)
	ExportCSV(ctx context.Context, resource string) ([]byte, error)
}
