package backend

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// MockData seeds deterministic backend responses for tests or local demos.
type MockData struct {
	Products   []salesync.Product
	Categories []salesync.Category
	Stats      salesync.RawStats
	Years      []int
	Sales      map[int]salesync.Sale
}

// MockClient implements salesync.Backend and salesync.Transfer using
// in-memory fixtures. Updates mutate the fixture so echoes behave like a
// real server.
type MockClient struct {
	mu   sync.RWMutex
	data MockData
}

var (
	_ salesync.Backend  = (*MockClient)(nil)
	_ salesync.Transfer = (*MockClient)(nil)
)

// NewMockClient builds a mock backend from the provided fixtures.
func NewMockClient(data MockData) *MockClient {
	if data.Sales == nil {
		data.Sales = map[int]salesync.Sale{}
	}
	return &MockClient{data: data}
}

// FetchProducts returns the fixture products, honoring the category filter.
func (c *MockClient) FetchProducts(_ context.Context, categoryID string) ([]salesync.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if categoryID == "" {
		return append([]salesync.Product(nil), c.data.Products...), nil
	}
	id, err := strconv.Atoi(categoryID)
	if err != nil {
		// The backend ignores unparseable filters rather than failing.
		return append([]salesync.Product(nil), c.data.Products...), nil
	}
	var out []salesync.Product
	for _, product := range c.data.Products {
		if product.CategoryID == id {
			out = append(out, product)
		}
	}
	return out, nil
}

// FetchCategories returns the fixture categories.
func (c *MockClient) FetchCategories(context.Context) ([]salesync.Category, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]salesync.Category(nil), c.data.Categories...), nil
}

// FetchStats returns the fixture stats ignoring the filter.
func (c *MockClient) FetchStats(context.Context, int, string) (salesync.RawStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.data.Stats
	out.Sales = make(map[string]salesync.RawPeriod, len(c.data.Stats.Sales))
	for key, period := range c.data.Stats.Sales {
		out.Sales[key] = period
	}
	return out, nil
}

// FetchYears returns the fixture years.
func (c *MockClient) FetchYears(context.Context) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.data.Years...), nil
}

// UpdateSale applies the patch to the fixture sale and echoes the result.
func (c *MockClient) UpdateSale(_ context.Context, id int, patch map[string]any) (salesync.Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sale, ok := c.data.Sales[id]
	if !ok {
		return salesync.Sale{}, salesync.ServerFailure(404, "Sale not found")
	}
	for field, value := range patch {
		switch field {
		case "product_id":
			if v, ok := asInt(value); ok {
				sale.ProductID = v
			}
		case "quantity":
			if v, ok := asInt(value); ok {
				sale.Quantity = v
			}
		case "total_price":
			if v, ok := asDecimal(value); ok {
				sale.TotalPrice = v
			}
		case "date":
			if v, ok := value.(string); ok {
				sale.Date = v
			}
		}
	}
	c.data.Sales[id] = sale
	return sale, nil
}

// ImportCSV acknowledges the upload without parsing it.
func (c *MockClient) ImportCSV(_ context.Context, kind salesync.ImportKind, _ string, file io.Reader) (salesync.ImportReport, error) {
	_, _ = io.Copy(io.Discard, file)
	return salesync.ImportReport{Message: "Successfully imported " + string(kind)}, nil
}

// ExportCSV returns an empty CSV payload.
func (c *MockClient) ExportCSV(_ context.Context, _ string) ([]byte, error) {
	return []byte("id\n"), nil
}

func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}
