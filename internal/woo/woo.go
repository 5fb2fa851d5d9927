// Package woo is a minimal WooCommerce REST API client covering the
// resources the sync pipeline pulls: customers, orders, and products.
//
// All list calls paginate until the store returns a short page. Orders
// support an "after" filter for incremental fetches.
package woo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/storesync/internal/commerce"
)

const (
	apiBase  = "/wp-json/wc/v3"
	pageSize = 100
)

// Client talks to one store's WooCommerce REST API using that store's
// consumer key/secret pair via HTTP basic auth.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	http           *http.Client
}

// New creates a client for the given store. Credentials must already be
// unsealed by the caller.
func New(storeURL, consumerKey, consumerSecret string) *Client {
	return &Client{
		baseURL:        storeURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		http:           &http.Client{Timeout: 30 * time.Second},
	}
}

type wooCustomer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Billing   struct {
		Phone string `json:"phone"`
	} `json:"billing"`
}

type wooOrder struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Status     string    `json:"status"`
	Total      string    `json:"total"`
	Currency   string    `json:"currency"`
	DateGMT    time.Time `json:"date_created_gmt"`
}

type wooProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Price       string `json:"price"`
	StockStatus string `json:"stock_status"`
}

// FetchCustomers pulls every customer from the store.
func (c *Client) FetchCustomers(ctx context.Context) ([]*commerce.Customer, error) {
	var out []*commerce.Customer
	err := c.paginate(ctx, "/customers", nil, func(body []byte) (int, error) {
		var page []wooCustomer
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, wc := range page {
			out = append(out, &commerce.Customer{
				RemoteID:  wc.ID,
				FirstName: wc.FirstName,
				LastName:  wc.LastName,
				Email:     wc.Email,
				Phone:     wc.Billing.Phone,
			})
		}
		return len(page), nil
	})
	return out, err
}

// FetchOrders pulls orders from the store. A nil since fetches the full
// history; otherwise only orders created after the mark are returned.
func (c *Client) FetchOrders(ctx context.Context, since *time.Time) ([]*commerce.Order, error) {
	params := url.Values{}
	if since != nil {
		params.Set("after", since.UTC().Format(time.RFC3339))
	}

	var out []*commerce.Order
	err := c.paginate(ctx, "/orders", params, func(body []byte) (int, error) {
		var page []wooOrder
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, wo := range page {
			out = append(out, &commerce.Order{
				RemoteID:         wo.ID,
				CustomerRemoteID: wo.CustomerID,
				Status:           wo.Status,
				Total:            wo.Total,
				Currency:         wo.Currency,
				PlacedAt:         wo.DateGMT,
			})
		}
		return len(page), nil
	})
	return out, err
}

// FetchProducts pulls the full product catalog from the store.
func (c *Client) FetchProducts(ctx context.Context) ([]*commerce.Product, error) {
	var out []*commerce.Product
	err := c.paginate(ctx, "/products", nil, func(body []byte) (int, error) {
		var page []wooProduct
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, err
		}
		for _, wp := range page {
			out = append(out, &commerce.Product{
				RemoteID:    wp.ID,
				Name:        wp.Name,
				SKU:         wp.SKU,
				Price:       wp.Price,
				StockStatus: wp.StockStatus,
			})
		}
		return len(page), nil
	})
	return out, err
}

// paginate walks a list endpoint page by page until a short page ends the
// listing. consume reports how many items the page held.
func (c *Client) paginate(ctx context.Context, path string, params url.Values, consume func(body []byte) (int, error)) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", strconv.Itoa(pageSize))

	for page := 1; ; page++ {
		params.Set("page", strconv.Itoa(page))

		body, err := c.get(ctx, path, params)
		if err != nil {
			return err
		}
		n, err := consume(body)
		if err != nil {
			return fmt.Errorf("woo: decode %s page %d: %w", path, page, err)
		}
		if n < pageSize {
			return nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + apiBase + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("woo: build request: %w", err)
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("woo: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("woo: get %s: status %d: %s", path, resp.StatusCode, excerpt)
	}
	return io.ReadAll(resp.Body)
}
