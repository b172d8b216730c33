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
	USDAName        = "usda_fdc_search"
	defaultUSDAURL  = "https://api.nal.usda.gov/fdc/v1"
	maxUSDANutrient = 10
)

var keyNutrients = []string{"Energy", "Protein", "Total lipid (fat)", "Carbohydrate", "Total Sugars", "Fiber", "Sodium"}

// USDAClient searches USDA Food Data Central for branded foods.
type USDAClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewUSDAClient creates a client. An empty baseURL uses the public API.
func NewUSDAClient(baseURL, apiKey string, timeout time.Duration) *USDAClient {
	if baseURL == "" {
		baseURL = defaultUSDAURL
	}
	return &USDAClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
	}
}

// USDAFood is one search hit.
type USDAFood struct {
	FDCID                    int            `json:"fdcId"`
	Description              string         `json:"description"`
	BrandOwner               string         `json:"brandOwner"`
	BrandName                string         `json:"brandName"`
	DataType                 string         `json:"dataType"`
	GTINUPC                  string         `json:"gtinUpc"`
	PublishedDate            string         `json:"publishedDate"`
	Ingredients              string         `json:"ingredients"`
	ServingSize              float64        `json:"servingSize"`
	ServingSizeUnit          string         `json:"servingSizeUnit"`
	HouseholdServingFullText string         `json:"householdServingFullText"`
	FoodNutrients            []USDANutrient `json:"foodNutrients"`
}

// USDANutrient is a nutrient row of a search hit.
type USDANutrient struct {
	NutrientName string  `json:"nutrientName"`
	Value        float64 `json:"value"`
	UnitName     string  `json:"unitName"`
}

type usdaSearchResponse struct {
	TotalHits int        `json:"totalHits"`
	Foods     []USDAFood `json:"foods"`
}

// Search runs a branded-food query for upc.
func (c *USDAClient) Search(ctx context.Context, upc string) ([]USDAFood, int, error) {
	q := url.Values{}
	q.Set("query", upc)
	q.Set("dataType", "Branded")
	q.Set("pageSize", "25")
	q.Set("sortOrder", "asc")
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/foods/search?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	var out usdaSearchResponse
	if err := httpJSON(ctx, c.client, req, &out); err != nil {
		return nil, 0, err
	}
	return out.Foods, out.TotalHits, nil
}

// Tool exposes the client as a lookup tool.
func (c *USDAClient) Tool() Tool {
	return Tool{
		Name:        USDAName,
		Description: "Searches the USDA Food Data Central database using a valid 12-digit UPC code. Input should be a valid 12-digit UPC code as a string.",
		Parameters:  stringParams("upc", "Valid 12-digit UPC code"),
		Invoke: func(ctx context.Context, args map[string]any) Result {
			if c.apiKey == "" {
				return Text("Error: USDA API key is not configured. Set USDA_API_KEY to use this service.")
			}
			upc := Digits(stringArg(args, "upc", "code", "__arg1"))
			if upc == "" {
				return Text("Error: upc is required")
			}
			foods, total, err := c.Search(ctx, upc)
			if err != nil {
				return Text("Error accessing USDA Food Data Central API for UPC %s: %v", upc, err)
			}
			if len(foods) == 0 {
				return Text("No products found for UPC %s in the USDA Food Data Central database. The UPC may be valid but the product is not cataloged in USDA's database.", upc)
			}

			food, exact := foods[0], false
			for _, f := range foods {
				if f.GTINUPC == upc {
					food, exact = f, true
					break
				}
			}
			return Result{
				Text:    formatUSDAFood(food, total, exact, len(foods)),
				Match:   exact,
				Product: productRef(upc, food.Description, "USDA Food Data Central"),
			}
		},
	}
}

func formatUSDAFood(food USDAFood, total int, exact bool, hits int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Product found in USDA Food Data Central:

FDC ID: %d
Description: %s
Brand Owner: %s
Brand Name: %s
Data Type: %s
UPC/GTIN: %s
Published Date: %s
Ingredients: %s
Serving Size: %g %s
Household Serving: %s`,
		food.FDCID, orNA(food.Description), orNA(food.BrandOwner), orNA(food.BrandName),
		orNA(food.DataType), orNA(food.GTINUPC), orNA(food.PublishedDate), orNA(food.Ingredients),
		food.ServingSize, food.ServingSizeUnit, orNA(food.HouseholdServingFullText))

	var nutrients []string
	for _, n := range food.FoodNutrients {
		for _, key := range keyNutrients {
			if strings.Contains(n.NutrientName, key) {
				nutrients = append(nutrients, fmt.Sprintf("%s: %g %s", n.NutrientName, n.Value, n.UnitName))
				break
			}
		}
		if len(nutrients) == maxUSDANutrient {
			break
		}
	}
	if len(nutrients) > 0 {
		b.WriteString("\n\nKey Nutrients (per 100g):\n")
		b.WriteString(strings.Join(nutrients, "\n"))
	}

	fmt.Fprintf(&b, "\n\nTotal results found: %d", total)
	if !exact && hits > 1 {
		b.WriteString("\nNote: No exact UPC match found. Showing most relevant result.")
	}
	b.WriteString("\n\nThis information is sourced from the USDA Food Data Central database.")
	return b.String()
}
