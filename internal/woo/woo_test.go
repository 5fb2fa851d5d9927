package woo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOrders_IncrementalPassesAfterFilter(t *testing.T) {
	var gotAfter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ck_test", user)
		assert.Equal(t, "cs_test", pass)
		gotAfter = r.URL.Query().Get("after")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 9, "customer_id": 4, "status": "completed", "total": "12.00",
				"currency": "EUR", "date_created_gmt": "2026-08-01T10:00:00Z"},
		})
	}))
	defer srv.Close()

	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	orders, err := New(srv.URL, "ck_test", "cs_test").FetchOrders(context.Background(), &since)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(9), orders[0].RemoteID)
	assert.Equal(t, int64(4), orders[0].CustomerRemoteID)
	assert.Equal(t, "2026-07-01T00:00:00Z", gotAfter)
}

func TestFetchOrders_FullFetchOmitsAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("after"))
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	orders, err := New(srv.URL, "ck", "cs").FetchOrders(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFetchProducts_PaginatesUntilShortPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		require.Equal(t, strconv.Itoa(pageSize), r.URL.Query().Get("per_page"))

		// Page 1 full, page 2 short.
		n := pageSize
		if page == 2 {
			n = 3
		}
		require.LessOrEqual(t, page, 2, "must stop after the short page")

		items := make([]map[string]any, n)
		for i := range items {
			items[i] = map[string]any{
				"id": (page-1)*pageSize + i + 1, "name": "p", "sku": "s",
				"price": "1.00", "stock_status": "instock",
			}
		}
		_ = json.NewEncoder(w).Encode(items)
	}))
	defer srv.Close()

	products, err := New(srv.URL, "ck", "cs").FetchProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, pageSize+3)
}

func TestFetchCustomers_MapsBillingPhone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "first_name": "Ada", "last_name": "Lovelace",
				"email": "ada@example.com", "billing": map[string]any{"phone": "+1555"}},
			{"id": 2, "first_name": "NoPhone", "billing": map[string]any{}},
		})
	}))
	defer srv.Close()

	customers, err := New(srv.URL, "ck", "cs").FetchCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "+1555", customers[0].Phone)
	assert.Empty(t, customers[1].Phone)
}

func TestGet_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "ck", "bad").FetchProducts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
