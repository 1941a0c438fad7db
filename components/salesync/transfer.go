package salesync

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ettle/strcase"
)

// ImportKind selects which resource a CSV import targets.
type ImportKind string

const (
	ImportProducts   ImportKind = "products"
	ImportCategories ImportKind = "categories"
	ImportSales      ImportKind = "sales"
)

// ParseImportKind validates a user-supplied kind string.
func ParseImportKind(s string) (ImportKind, error) {
	switch ImportKind(strings.ToLower(strings.TrimSpace(s))) {
	case ImportProducts:
		return ImportProducts, nil
	case ImportCategories:
		return ImportCategories, nil
	case ImportSales:
		return ImportSales, nil
	default:
		return "", fmt.Errorf("salesync: unknown import kind %q", s)
	}
}

// requiredColumns mirrors the columns the backend validates per kind.
var requiredColumns = map[ImportKind][]string{
	ImportProducts:   {"name", "description", "price", "category_id", "brand"},
	ImportCategories: {"name"},
	ImportSales:      {"product_id", "quantity", "total_price", "date"},
}

// RequiredColumns returns the header columns the backend expects for a kind.
func RequiredColumns(kind ImportKind) []string {
	return append([]string(nil), requiredColumns[kind]...)
}

// NormalizeHeader canonicalizes a CSV header cell so files exported with
// human-readable headers ("Product ID", "Total Price") still round-trip.
func NormalizeHeader(name string) string {
	return strcase.ToSnake(strings.TrimSpace(name))
}

// CheckHeader verifies a CSV header row carries every required column for the
// kind, after normalization. Checking locally avoids a round-trip that the
// backend would reject anyway.
func CheckHeader(kind ImportKind, header []string) error {
	seen := make(map[string]bool, len(header))
	for _, cell := range header {
		seen[NormalizeHeader(cell)] = true
	}
	var missing []string
	for _, col := range requiredColumns[kind] {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ValidationFailure(0, strings.Join(missing, ","),
			fmt.Sprintf("%s CSV missing required columns: %s", kind, strings.Join(missing, ", ")))
	}
	return nil
}

// Import checks the file header locally, then streams the file to the
// backend's multipart import endpoint. The reader is consumed fully.
func Import(ctx context.Context, transfer Transfer, kind ImportKind, filename string, file io.Reader) (ImportReport, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return ImportReport{}, fmt.Errorf("salesync: read import file: %w", err)
	}
	reader := csv.NewReader(strings.NewReader(string(data)))
	header, err := reader.Read()
	if err != nil {
		return ImportReport{}, ValidationFailure(0, "", "import file is empty or not CSV")
	}
	if err := CheckHeader(kind, header); err != nil {
		return ImportReport{}, err
	}
	return transfer.ImportCSV(ctx, kind, filename, strings.NewReader(string(data)))
}

// WriteProductsCSV writes the cached product set as CSV, matching the
// backend's export column order.
func WriteProductsCSV(w io.Writer, products []Product) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "name", "description", "price", "category_id", "brand"}); err != nil {
		return err
	}
	for _, p := range products {
		row := []string{
			fmt.Sprintf("%d", p.ID),
			p.Name,
			p.Description,
			p.Price.String(),
			fmt.Sprintf("%d", p.CategoryID),
			p.Brand,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCategoriesCSV writes the cached categories as CSV.
func WriteCategoriesCSV(w io.Writer, categories []Category) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "name"}); err != nil {
		return err
	}
	for _, c := range categories {
		if err := writer.Write([]string{fmt.Sprintf("%d", c.ID), c.Name}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
