package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	OpenFoodFactsName    = "openfoodfacts_lookup"
	defaultOpenFoodFacts = "https://world.openfoodfacts.org"
)

// OpenFoodFactsClient is a client for the OpenFoodFacts product API.
type OpenFoodFactsClient struct {
	baseURL string
	client  *http.Client
}

// NewOpenFoodFactsClient creates a client. An empty baseURL uses the public API.
func NewOpenFoodFactsClient(baseURL string, timeout time.Duration) *OpenFoodFactsClient {
	if baseURL == "" {
		baseURL = defaultOpenFoodFacts
	}
	return &OpenFoodFactsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

// OFFProduct is the subset of the OpenFoodFacts product document the assistant uses.
type OFFProduct struct {
	ProductName     string `json:"product_name"`
	Brands          string `json:"brands"`
	BrandOwner      string `json:"brand_owner"`
	Categories      string `json:"categories"`
	IngredientsText string `json:"ingredients_text"`
	NutritionGrades string `json:"nutrition_grades"`
	Countries       string `json:"countries"`
	Quantity        string `json:"quantity"`
	NetQuantity     string `json:"net_quantity"`
}

type offResponse struct {
	Status  int         `json:"status"`
	Product *OFFProduct `json:"product"`
}

// Product fetches a product by UPC. A nil product with nil error means not found.
func (c *OpenFoodFactsClient) Product(ctx context.Context, upc string) (*OFFProduct, error) {
	u := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, url.PathEscape(upc))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out offResponse
	if err := httpJSON(ctx, c.client, req, &out); err != nil {
		return nil, err
	}
	if out.Status != 1 || out.Product == nil {
		return nil, nil
	}
	return out.Product, nil
}

// Tool exposes the client as a lookup tool.
func (c *OpenFoodFactsClient) Tool() Tool {
	return Tool{
		Name:        OpenFoodFactsName,
		Description: "Looks up product information directly from OpenFoodFacts API using a valid UPC code. Input should be a valid UPC code as a string.",
		Parameters:  stringParams("upc", "Valid UPC code"),
		Invoke: func(ctx context.Context, args map[string]any) Result {
			upc := Digits(stringArg(args, "upc", "code", "__arg1"))
			if upc == "" {
				return Text("Error: upc is required")
			}
			p, err := c.Product(ctx, upc)
			if err != nil {
				return Text("Error accessing OpenFoodFacts API for UPC %s: %v", upc, err)
			}
			if p == nil {
				return Text("Product with UPC %s was not found in the OpenFoodFacts database. The UPC may be valid but the product is not cataloged on OpenFoodFacts.", upc)
			}
			brand := p.BrandOwner
			if brand == "" {
				brand = p.Brands
			}
			return Result{
				Text: fmt.Sprintf(`Product found on OpenFoodFacts:

Product Name: %s
Brands: %s
Categories: %s
Ingredients: %s
Nutrition Grade: %s
Package/Selling Size: %s
Net Quantity: %s
Countries: %s
OpenFoodFacts URL: %s/product/%s

This information is sourced directly from the OpenFoodFacts database.`,
					orNA(p.ProductName), orNA(brand), orNA(p.Categories), orNA(p.IngredientsText),
					orNA(p.NutritionGrades), orNA(p.Quantity), orNA(p.NetQuantity), orNA(p.Countries),
					c.baseURL, upc),
				Match:   true,
				Product: productRef(upc, p.ProductName, "OpenFoodFacts"),
			}
		},
	}
}
