package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ordersync/internal/httpx"
	"ordersync/internal/models"
	"ordersync/internal/normalize"
	"ordersync/internal/sign"
)

const ebayOrdersPath = "/sell/fulfillment/v1/order"

// EbayFetcher pages through the Fulfillment API behind a bearer token,
// following the next-page link embedded in each response.
type EbayFetcher struct {
	APIURL string
	Tokens TokenProvider
	Client *httpx.Client

	pending []EbayOrder
}

func (f *EbayFetcher) Platform() models.Platform { return models.PlatformEbay }

func (f *EbayFetcher) Authenticate(ctx context.Context) error {
	_, err := f.Tokens.ValidToken(ctx, models.PlatformEbay)
	return err
}

// Fetch walks pages from the head and stops entirely at the first
// already-imported order id. This relies on the server listing newest orders
// first: an older unseen order past a known one would be skipped silently.
// The upstream ordering guarantee is still unconfirmed (see DESIGN.md).
func (f *EbayFetcher) Fetch(ctx context.Context, known map[string]struct{}) (int, error) {
	f.pending = nil
	pageURL := strings.TrimRight(f.APIURL, "/") + ebayOrdersPath
	for pageURL != "" {
		page, err := f.getPage(ctx, pageURL)
		if err != nil {
			f.pending = nil
			return 0, err
		}
		for _, raw := range page.Orders {
			if _, seen := known[raw.OrderID]; seen {
				return len(f.pending), nil
			}
			f.pending = append(f.pending, raw)
		}
		pageURL = page.Next
	}
	return len(f.pending), nil
}

func (f *EbayFetcher) Normalize() (Batch, error) {
	var batch Batch
	for _, raw := range f.pending {
		order, items, err := NormalizeEbayOrder(raw)
		if err != nil {
			return Batch{}, fmt.Errorf("order %s: %w", raw.OrderID, err)
		}
		batch.Orders = append(batch.Orders, order)
		batch.Items = append(batch.Items, items...)
	}
	f.pending = nil
	return batch, nil
}

// getPage re-checks the token per page; long paginations can outlive an
// access token.
func (f *EbayFetcher) getPage(ctx context.Context, pageURL string) (*ebayOrderPage, error) {
	token, err := f.Tokens.ValidToken(ctx, models.PlatformEbay)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	sign.Bearer(req, token)
	req.Header.Set("User-Agent", sign.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page ebayOrderPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode orders page: %w", err)
	}
	return &page, nil
}

// NormalizeEbayOrder maps a Fulfillment API order to canonical rows.
func NormalizeEbayOrder(raw EbayOrder) (models.Order, []models.LineItem, error) {
	subtotal, err := normalize.Amount(raw.PricingSummary.PriceSubtotal.Value)
	if err != nil {
		return models.Order{}, nil, err
	}
	discount, err := normalize.Amount(raw.PricingSummary.PriceDiscountSubtotal.Value)
	if err != nil {
		return models.Order{}, nil, err
	}
	delivery, err := normalize.Amount(raw.PricingSummary.DeliveryCost.Value)
	if err != nil {
		return models.Order{}, nil, err
	}
	tax, err := normalize.Amount(raw.PricingSummary.Tax.Value)
	if err != nil {
		return models.Order{}, nil, err
	}
	total, err := normalize.Amount(raw.PricingSummary.Total.Value)
	if err != nil {
		return models.Order{}, nil, err
	}

	order := models.Order{
		OrderID:        raw.OrderID,
		Platform:       models.PlatformEbay,
		CreationDate:   normalize.UTCStamp(raw.CreationDate),
		CustomerName:   normalize.CustomerName(raw.Buyer.Username),
		SubtotalAmount: subtotal,
		DiscountAmount: discount,
		DeliveryAmount: delivery,
		TaxAmount:      tax,
		TotalAmount:    total,
	}

	items := make([]models.LineItem, 0, len(raw.LineItems))
	for _, li := range raw.LineItems {
		lineTotal, err := normalize.Amount(li.Total.Value)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("line %s: %w", li.LineItemID, err)
		}
		items = append(items, models.LineItem{
			LineID:      li.LineItemID,
			OrderID:     raw.OrderID,
			SKU:         li.SKU,
			Title:       normalize.ItemTitle(li.Title),
			Quantity:    li.Quantity,
			TotalAmount: lineTotal,
		})
	}
	return order, items, nil
}

// Fulfillment API wire types.

type EbayAmount struct {
	Value string `json:"value"`
}

type EbayPricingSummary struct {
	PriceSubtotal         EbayAmount `json:"priceSubtotal"`
	PriceDiscountSubtotal EbayAmount `json:"priceDiscountSubtotal"`
	DeliveryCost          EbayAmount `json:"deliveryCost"`
	Tax                   EbayAmount `json:"tax"`
	Total                 EbayAmount `json:"total"`
}

type EbayLineItem struct {
	LineItemID string     `json:"lineItemId"`
	SKU        string     `json:"sku"`
	Title      string     `json:"title"`
	Quantity   int        `json:"quantity"`
	Total      EbayAmount `json:"total"`
}

type EbayBuyer struct {
	Username string `json:"username"`
}

type EbayOrder struct {
	OrderID        string             `json:"orderId"`
	CreationDate   string             `json:"creationDate"`
	Buyer          EbayBuyer          `json:"buyer"`
	PricingSummary EbayPricingSummary `json:"pricingSummary"`
	LineItems      []EbayLineItem     `json:"lineItems"`
}

type ebayOrderPage struct {
	Orders []EbayOrder `json:"orders"`
	Next   string      `json:"next"`
}
