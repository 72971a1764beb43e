package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ordersync/internal/httpx"
	"ordersync/internal/models"
	"ordersync/internal/normalize"
	"ordersync/internal/sign"
)

const (
	wooOrdersPath      = "/wp-json/wc/v3/orders"
	wooDefaultPageSize = 100
)

// WooFetcher lists store orders with plain offset pagination. The REST API
// accepts the consumer key pair as query parameters, so there is no token
// lifecycle to manage.
type WooFetcher struct {
	URL            string
	ConsumerKey    string
	ConsumerSecret string
	PageSize       int
	Client         *httpx.Client

	pending []WooOrder
}

func (f *WooFetcher) Platform() models.Platform { return models.PlatformWoo }

func (f *WooFetcher) Authenticate(ctx context.Context) error { return nil }

// Fetch requests fixed-size pages from page 1 and stops at the first
// already-imported order number, or when a short page signals the end.
func (f *WooFetcher) Fetch(ctx context.Context, known map[string]struct{}) (int, error) {
	f.pending = nil
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = wooDefaultPageSize
	}

	for page := 1; ; page++ {
		raws, err := f.getPage(ctx, page, pageSize)
		if err != nil {
			f.pending = nil
			return 0, err
		}
		for _, raw := range raws {
			if _, seen := known[raw.Number]; seen {
				return len(f.pending), nil
			}
			f.pending = append(f.pending, raw)
		}
		if len(raws) < pageSize {
			return len(f.pending), nil
		}
	}
}

func (f *WooFetcher) Normalize() (Batch, error) {
	var batch Batch
	for _, raw := range f.pending {
		order, items, err := NormalizeWooOrder(raw)
		if err != nil {
			return Batch{}, fmt.Errorf("order %s: %w", raw.Number, err)
		}
		batch.Orders = append(batch.Orders, order)
		batch.Items = append(batch.Items, items...)
	}
	f.pending = nil
	return batch, nil
}

func (f *WooFetcher) getPage(ctx context.Context, page, pageSize int) ([]WooOrder, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("consumer_key", f.ConsumerKey)
	q.Set("consumer_secret", f.ConsumerSecret)

	endpoint := strings.TrimRight(f.URL, "/") + wooOrdersPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", sign.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raws []WooOrder
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode orders page: %w", err)
	}
	return raws, nil
}

// NormalizeWooOrder maps a store order to canonical rows. The API reports
// discount, shipping, tax and total but no subtotal; it is recovered in
// integer cents (see normalize.SubtotalFromComponents).
func NormalizeWooOrder(raw WooOrder) (models.Order, []models.LineItem, error) {
	discount, err := normalize.Amount(raw.DiscountTotal)
	if err != nil {
		return models.Order{}, nil, err
	}
	delivery, err := normalize.Amount(raw.ShippingTotal)
	if err != nil {
		return models.Order{}, nil, err
	}
	tax, err := normalize.Amount(raw.TotalTax)
	if err != nil {
		return models.Order{}, nil, err
	}
	total, err := normalize.Amount(raw.Total)
	if err != nil {
		return models.Order{}, nil, err
	}

	order := models.Order{
		OrderID:        raw.Number,
		Platform:       models.PlatformWoo,
		CreationDate:   normalize.UTCStamp(raw.DateCreatedGMT),
		CustomerName:   normalize.CustomerName(strconv.FormatInt(raw.CustomerID, 10)),
		SubtotalAmount: normalize.SubtotalFromComponents(total, tax, delivery, discount),
		DiscountAmount: discount,
		DeliveryAmount: delivery,
		TaxAmount:      tax,
		TotalAmount:    total,
	}

	items := make([]models.LineItem, 0, len(raw.LineItems))
	for _, li := range raw.LineItems {
		lineTotal, err := normalize.Amount(li.Total)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("line %d: %w", li.ID, err)
		}
		items = append(items, models.LineItem{
			LineID:      strconv.FormatInt(li.ID, 10),
			OrderID:     raw.Number,
			SKU:         li.SKU,
			Title:       normalize.ItemTitle(li.Name),
			Quantity:    li.Quantity,
			TotalAmount: lineTotal,
		})
	}
	return order, items, nil
}

// REST v3 wire types.

type WooLineItem struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
}

type WooOrder struct {
	Number         string        `json:"number"`
	DateCreatedGMT string        `json:"date_created_gmt"`
	CustomerID     int64         `json:"customer_id"`
	DiscountTotal  string        `json:"discount_total"`
	ShippingTotal  string        `json:"shipping_total"`
	TotalTax       string        `json:"total_tax"`
	Total          string        `json:"total"`
	LineItems      []WooLineItem `json:"line_items"`
}
