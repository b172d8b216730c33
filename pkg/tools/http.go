package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/comigor/save-go/internal/conversation"
)

const maxResponseBytes = 4 << 20

// httpJSON performs a request and decodes a JSON body into out.
func httpJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func productRef(upc, name, source string) *conversation.Product {
	if name == "" || name == "N/A" {
		return &conversation.Product{UPC: upc, Source: source}
	}
	return &conversation.Product{UPC: upc, Name: name, Source: source}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
