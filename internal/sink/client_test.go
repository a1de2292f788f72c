package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:       "ORD-1700000000000",
		Customer: models.Customer{Name: "Rahim", Phone: "01712345678"},
		Items:    []models.OrderItem{{ProductID: 1, Name: "Saree", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)}},
		Total:    decimal.NewFromInt(860),
	}
}

func TestSubmitSuccess(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"orderId":"ORD-1700000000000","message":"saved"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	resp, err := c.Submit(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "ORD-1700000000000", got["orderId"])
	assert.Equal(t, "860", got["total"])
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"sheet is full"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "sheet is full")
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "502")
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second)
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testOrder())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", time.Second)
	assert.Error(t, err)
}
