package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExampleDatabaseName is the priority source: a hit there ends the turn without validation.
const ExampleDatabaseName = "example_database_lookup"

// ExampleDatabase is an in-memory product table loaded from CSV with the columns
// UPC, PRODUCT_NAME and DESCRIPTION.
type ExampleDatabase struct {
	rows map[string]exampleRow
}

type exampleRow struct {
	name        string
	description string
}

// LoadExampleDatabase reads the CSV file at path.
func LoadExampleDatabase(path string) (*ExampleDatabase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open example database: %w", err)
	}
	defer f.Close()
	return ParseExampleDatabase(f)
}

// ParseExampleDatabase reads CSV rows from r.
func ParseExampleDatabase(r io.Reader) (*ExampleDatabase, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse example database: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("example database is empty")
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	upcIdx, ok := col["UPC"]
	if !ok {
		return nil, fmt.Errorf("example database has no UPC column")
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
			return "N/A"
		}
		return strings.TrimSpace(rec[i])
	}

	db := &ExampleDatabase{rows: make(map[string]exampleRow, len(records)-1)}
	for _, rec := range records[1:] {
		if upcIdx >= len(rec) {
			continue
		}
		upc := padUPC(Digits(rec[upcIdx]))
		if upc == "" {
			continue
		}
		db.rows[upc] = exampleRow{
			name:        field(rec, "PRODUCT_NAME"),
			description: field(rec, "DESCRIPTION"),
		}
	}
	return db, nil
}

func padUPC(code string) string {
	if code == "" || len(code) >= 12 {
		return code
	}
	return strings.Repeat("0", 12-len(code)) + code
}

// Len returns the number of products loaded.
func (db *ExampleDatabase) Len() int { return len(db.rows) }

// Tool exposes the database as the authoritative lookup.
func (db *ExampleDatabase) Tool() Tool {
	return Tool{
		Name:          ExampleDatabaseName,
		Description:   "Searches the example SQL database for product information using a valid UPC code. If found, returns product name and description without searching other databases. Input should be a valid UPC code as a string.",
		Parameters:    stringParams("upc", "Valid UPC code"),
		Authoritative: true,
		Invoke: func(_ context.Context, args map[string]any) Result {
			raw := stringArg(args, "upc", "code", "__arg1")
			upc := padUPC(Digits(raw))
			row, ok := db.rows[upc]
			if !ok {
				return Text("Product with UPC %s was not found in the example database. The UPC may be valid but the product is not in this database.", raw)
			}
			return Result{
				Text: fmt.Sprintf(`Product found in Example Database:

UPC: %s
Product Name: %s
Description: %s

This information is sourced directly from the example database. No additional database or web searches are needed for this product.`, upc, row.name, row.description),
				Match:   true,
				Product: productRef(upc, row.name, "Example Database"),
			}
		},
	}
}
