package platform_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersync/internal/httpx"
	"ordersync/internal/models"
	"ordersync/internal/platform"
	"ordersync/internal/sign"
)

func amazonOrderJSON(id, purchaseDate string) string {
	return fmt.Sprintf(`{
		"AmazonOrderId": %q,
		"PurchaseDate": %q,
		"OrderTotal": {"Amount": "59.98"},
		"BuyerInfo": {"BuyerName": "Pat Example"}
	}`, id, purchaseDate)
}

func amazonItemJSON(id string) string {
	return fmt.Sprintf(`{
		"OrderItemId": %q,
		"SellerSKU": "SKU-A",
		"Title": "Gadget",
		"QuantityOrdered": 2,
		"ItemPrice": {"Amount": "49.98"},
		"ItemTax": {"Amount": "8.00"},
		"ShippingPrice": {"Amount": "4.00"},
		"PromotionDiscount": {"Amount": "2.00"}
	}`, id)
}

func newAmazonFetcher(srvURL string) *platform.AmazonFetcher {
	return &platform.AmazonFetcher{
		APIURL:        srvURL,
		MarketplaceID: "ATVPDKIKX0DER",
		Signer: sign.V4Signer{
			AccessKey: "AKID",
			SecretKey: "secret",
			Region:    "us-east-1",
			Service:   "execute-api",
		},
		Tokens:      &staticTokens{token: "lwa-token"},
		Client:      httpx.New(time.Millisecond),
		OrdersAfter: "2024-05-01T00:00:00Z",
		Now:         func() time.Time { return testClock },
	}
}

func TestAmazonFetchPagesAndSubFetches(t *testing.T) {
	var orderQueries []string
	var itemPaths []string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/orders/v0/orders", func(w http.ResponseWriter, r *http.Request) {
		orderQueries = append(orderQueries, r.URL.RawQuery)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 "))
		assert.Equal(t, "lwa-token", r.Header.Get("X-Amz-Access-Token"))
		assert.NotEmpty(t, r.Header.Get("X-Amz-Date"))

		if r.URL.Query().Get("NextToken") == "" {
			fmt.Fprintf(w, `{"payload": {"Orders": [%s], "NextToken": "tok-2"}}`,
				amazonOrderJSON("A-1", "2024-05-10T08:00:00Z"))
			return
		}
		fmt.Fprintf(w, `{"payload": {"Orders": [%s]}}`,
			amazonOrderJSON("A-2", "2024-05-20T08:00:00Z"))
	})
	mux.HandleFunc("/orders/v0/orders/", func(w http.ResponseWriter, r *http.Request) {
		itemPaths = append(itemPaths, r.URL.Path)
		if strings.Contains(r.URL.Path, "A-1") && r.URL.Query().Get("NextToken") == "" {
			fmt.Fprintf(w, `{"payload": {"OrderItems": [%s], "NextToken": "items-2"}}`,
				amazonItemJSON("A-1-i1"))
			return
		}
		if strings.Contains(r.URL.Path, "A-1") {
			fmt.Fprintf(w, `{"payload": {"OrderItems": [%s]}}`, amazonItemJSON("A-1-i2"))
			return
		}
		fmt.Fprintf(w, `{"payload": {"OrderItems": [%s]}}`, amazonItemJSON("A-2-i1"))
	})

	f := newAmazonFetcher(srv.URL)
	n, err := f.Fetch(context.Background(), map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, orderQueries, 2)
	assert.Contains(t, orderQueries[0], "CreatedAfter=2024-05-01T00%3A00%3A00Z")
	assert.Contains(t, orderQueries[0], "MarketplaceIds=ATVPDKIKX0DER")
	assert.Contains(t, orderQueries[1], "NextToken=tok-2")

	// A-1 pages its items twice, A-2 once
	assert.Len(t, itemPaths, 3)

	batch, err := f.Normalize()
	require.NoError(t, err)
	require.Len(t, batch.Orders, 2)
	assert.Len(t, batch.Items, 3)
	assert.Equal(t, "2024-05-20T08:00:00Z", batch.Watermark, "watermark is the max purchase date seen")
}

func TestAmazonFetchSkipsKnownOrders(t *testing.T) {
	var itemFetches int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/orders/v0/orders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"payload": {"Orders": [%s, %s]}}`,
			amazonOrderJSON("A-known", "2024-05-10T08:00:00Z"),
			amazonOrderJSON("A-new", "2024-05-11T08:00:00Z"))
	})
	mux.HandleFunc("/orders/v0/orders/", func(w http.ResponseWriter, r *http.Request) {
		itemFetches++
		fmt.Fprint(w, `{"payload": {"OrderItems": []}}`)
	})

	f := newAmazonFetcher(srv.URL)
	n, err := f.Fetch(context.Background(), map[string]struct{}{"A-known": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, itemFetches, "known orders get no item sub-fetch")

	batch, err := f.Normalize()
	require.NoError(t, err)
	require.Len(t, batch.Orders, 1)
	assert.Equal(t, "A-new", batch.Orders[0].OrderID)
}

func TestAmazonWatermarkNotRegressed(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/orders/v0/orders", func(w http.ResponseWriter, r *http.Request) {
		// server returns an order at the lower bound again
		fmt.Fprintf(w, `{"payload": {"Orders": [%s]}}`,
			amazonOrderJSON("A-old", "2024-05-01T00:00:00Z"))
	})
	mux.HandleFunc("/orders/v0/orders/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"payload": {"OrderItems": []}}`)
	})

	f := newAmazonFetcher(srv.URL)
	_, err := f.Fetch(context.Background(), map[string]struct{}{})
	require.NoError(t, err)

	batch, err := f.Normalize()
	require.NoError(t, err)
	assert.Empty(t, batch.Watermark, "a watermark equal to the starting point does not advance")
}

func TestNormalizeAmazonOrder(t *testing.T) {
	raw := platform.AmazonOrder{
		AmazonOrderID: "A-42",
		PurchaseDate:  "2024-05-10T08:00:00Z",
		OrderTotal:    platform.AmazonMoney{Amount: "59.98"},
		BuyerInfo:     platform.AmazonBuyerInfo{BuyerName: "Pat Example"},
	}
	rawItems := []platform.AmazonOrderItem{
		{
			OrderItemID:       "i-1",
			SellerSKU:         "SKU-A",
			Title:             "Gadget",
			QuantityOrdered:   2,
			ItemPrice:         platform.AmazonMoney{Amount: "49.98"},
			ItemTax:           platform.AmazonMoney{Amount: "8.00"},
			ShippingPrice:     platform.AmazonMoney{Amount: "4.00"},
			PromotionDiscount: platform.AmazonMoney{Amount: "2.00"},
		},
		{
			OrderItemID:     "i-2",
			SellerSKU:       "SKU-B",
			Title:           "Gizmo",
			QuantityOrdered: 1,
			ItemPrice:       platform.AmazonMoney{Amount: "10.00"},
			ItemTax:         platform.AmazonMoney{Amount: "1.60"},
		},
	}

	order, items, err := platform.NormalizeAmazonOrder(raw, rawItems)
	require.NoError(t, err)

	assert.Equal(t, "A-42", order.OrderID)
	assert.Equal(t, models.PlatformAmazon, order.Platform)
	assert.Equal(t, "2024-05-10T08:00:00", order.CreationDate)
	assert.Equal(t, "Pat Example", order.CustomerName)
	assert.Equal(t, "59.98", order.SubtotalAmount.StringFixed(2), "subtotal sums item prices")
	assert.Equal(t, "9.60", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "4.00", order.DeliveryAmount.StringFixed(2))
	assert.Equal(t, "2.00", order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "59.98", order.TotalAmount.StringFixed(2))

	require.Len(t, items, 2)
	assert.Equal(t, "i-1", items[0].LineID)
	assert.Equal(t, "A-42", items[0].OrderID)
	assert.Equal(t, "49.98", items[0].TotalAmount.StringFixed(2))
	assert.Equal(t, "10.00", items[1].TotalAmount.StringFixed(2))
}

func TestNormalizeAmazonOrderMissingTotal(t *testing.T) {
	raw := platform.AmazonOrder{
		AmazonOrderID: "A-pending",
		PurchaseDate:  "2024-05-10T08:00:00Z",
	}
	rawItems := []platform.AmazonOrderItem{
		{
			OrderItemID:       "i-1",
			ItemPrice:         platform.AmazonMoney{Amount: "20.00"},
			ItemTax:           platform.AmazonMoney{Amount: "3.20"},
			ShippingPrice:     platform.AmazonMoney{Amount: "5.00"},
			PromotionDiscount: platform.AmazonMoney{Amount: "1.00"},
		},
	}

	order, _, err := platform.NormalizeAmazonOrder(raw, rawItems)
	require.NoError(t, err)
	assert.Equal(t, "27.20", order.TotalAmount.StringFixed(2), "total reconstructed from components")
}
