package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ordersync/internal/httpx"
	"ordersync/internal/models"
	"ordersync/internal/normalize"
	"ordersync/internal/sign"
)

const (
	amazonOrdersPath = "/orders/v0/orders"
	// CreatedAfter lower bound for the very first run, before any watermark
	// has been recorded.
	amazonEpoch = "1970-01-01T00:00:00Z"
)

// AmazonFetcher pulls Selling Partner orders created after the recorded
// watermark, following NextToken continuations, and issues one orderItems
// sub-fetch per order through the same signed, throttle-aware pipeline.
type AmazonFetcher struct {
	APIURL        string
	MarketplaceID string
	Signer        sign.V4Signer
	Tokens        TokenProvider
	Client        *httpx.Client
	// OrdersAfter is the persisted watermark this run starts from.
	OrdersAfter string
	// Now feeds the request-signing timestamp; defaults to time.Now.
	Now func() time.Time

	pending []amazonPending
}

type amazonPending struct {
	order AmazonOrder
	items []AmazonOrderItem
}

func (f *AmazonFetcher) Platform() models.Platform { return models.PlatformAmazon }

func (f *AmazonFetcher) Authenticate(ctx context.Context) error {
	_, err := f.Tokens.ValidToken(ctx, models.PlatformAmazon)
	return err
}

// Fetch lists orders after the watermark and gathers each order's line items.
// Orders already in the store are skipped even when the server-side filter
// returns them again; the CreatedAfter bound is not trusted to be exclusive.
func (f *AmazonFetcher) Fetch(ctx context.Context, known map[string]struct{}) (int, error) {
	f.pending = nil
	after := f.OrdersAfter
	if after == "" {
		after = amazonEpoch
	}

	next := ""
	for {
		page, err := f.getOrdersPage(ctx, after, next)
		if err != nil {
			f.pending = nil
			return 0, err
		}
		for _, raw := range page.Payload.Orders {
			if _, seen := known[raw.AmazonOrderID]; seen {
				continue
			}
			items, err := f.fetchItems(ctx, raw.AmazonOrderID)
			if err != nil {
				f.pending = nil
				return 0, err
			}
			f.pending = append(f.pending, amazonPending{order: raw, items: items})
		}
		if page.Payload.NextToken == "" {
			break
		}
		next = page.Payload.NextToken
	}
	return len(f.pending), nil
}

// Normalize maps the gathered orders and reports the advanced watermark: the
// maximum purchase date observed, when it moves past the starting point.
func (f *AmazonFetcher) Normalize() (Batch, error) {
	var batch Batch
	watermark := ""
	for _, p := range f.pending {
		order, items, err := NormalizeAmazonOrder(p.order, p.items)
		if err != nil {
			return Batch{}, fmt.Errorf("order %s: %w", p.order.AmazonOrderID, err)
		}
		batch.Orders = append(batch.Orders, order)
		batch.Items = append(batch.Items, items...)
		if p.order.PurchaseDate > watermark {
			watermark = p.order.PurchaseDate
		}
	}
	if watermark > f.OrdersAfter {
		batch.Watermark = watermark
	}
	f.pending = nil
	return batch, nil
}

func (f *AmazonFetcher) getOrdersPage(ctx context.Context, after, nextToken string) (*amazonOrdersPage, error) {
	q := url.Values{}
	q.Set("CreatedAfter", after)
	q.Set("MarketplaceIds", f.MarketplaceID)
	if nextToken != "" {
		q.Set("NextToken", nextToken)
	}
	var page amazonOrdersPage
	if err := f.getSigned(ctx, amazonOrdersPath, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// fetchItems pages through an order's line items; the items endpoint uses the
// same NextToken continuation as the order listing.
func (f *AmazonFetcher) fetchItems(ctx context.Context, orderID string) ([]AmazonOrderItem, error) {
	path := amazonOrdersPath + "/" + url.PathEscape(orderID) + "/orderItems"
	var items []AmazonOrderItem
	next := ""
	for {
		q := url.Values{}
		if next != "" {
			q.Set("NextToken", next)
		}
		var page amazonItemsPage
		if err := f.getSigned(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("order %s items: %w", orderID, err)
		}
		items = append(items, page.Payload.OrderItems...)
		if page.Payload.NextToken == "" {
			return items, nil
		}
		next = page.Payload.NextToken
	}
}

func (f *AmazonFetcher) getSigned(ctx context.Context, path string, q url.Values, out any) error {
	token, err := f.Tokens.ValidToken(ctx, models.PlatformAmazon)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(f.APIURL, "/") + path
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.Signer.Sign(req, token, now())

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// NormalizeAmazonOrder maps an order and its items to canonical rows. The
// order-level tax, discount and shipping are sums over per-item
// contributions, so the aggregation stays in exact decimals throughout.
func NormalizeAmazonOrder(raw AmazonOrder, rawItems []AmazonOrderItem) (models.Order, []models.LineItem, error) {
	subtotal, tax, delivery, discount := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	items := make([]models.LineItem, 0, len(rawItems))

	for _, it := range rawItems {
		price, err := normalize.Amount(it.ItemPrice.Amount)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("item %s: %w", it.OrderItemID, err)
		}
		itemTax, err := normalize.Amount(it.ItemTax.Amount)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("item %s: %w", it.OrderItemID, err)
		}
		shipping, err := normalize.Amount(it.ShippingPrice.Amount)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("item %s: %w", it.OrderItemID, err)
		}
		promo, err := normalize.Amount(it.PromotionDiscount.Amount)
		if err != nil {
			return models.Order{}, nil, fmt.Errorf("item %s: %w", it.OrderItemID, err)
		}

		subtotal = subtotal.Add(price)
		tax = tax.Add(itemTax)
		delivery = delivery.Add(shipping)
		discount = discount.Add(promo)

		items = append(items, models.LineItem{
			LineID:      it.OrderItemID,
			OrderID:     raw.AmazonOrderID,
			SKU:         it.SellerSKU,
			Title:       normalize.ItemTitle(it.Title),
			Quantity:    it.QuantityOrdered,
			TotalAmount: price,
		})
	}

	total, err := normalize.Amount(raw.OrderTotal.Amount)
	if err != nil {
		return models.Order{}, nil, err
	}
	if total.IsZero() && len(rawItems) > 0 {
		// Pending orders omit OrderTotal; reconstruct it from the parts.
		total = subtotal.Add(tax).Add(delivery).Sub(discount)
	}

	order := models.Order{
		OrderID:        raw.AmazonOrderID,
		Platform:       models.PlatformAmazon,
		CreationDate:   normalize.UTCStamp(raw.PurchaseDate),
		CustomerName:   normalize.CustomerName(raw.BuyerInfo.BuyerName),
		SubtotalAmount: subtotal.Round(2),
		DiscountAmount: discount.Round(2),
		DeliveryAmount: delivery.Round(2),
		TaxAmount:      tax.Round(2),
		TotalAmount:    total.Round(2),
	}
	return order, items, nil
}

// Orders API wire types.

type AmazonMoney struct {
	Amount string `json:"Amount"`
}

type AmazonBuyerInfo struct {
	BuyerName string `json:"BuyerName"`
}

type AmazonOrder struct {
	AmazonOrderID string          `json:"AmazonOrderId"`
	PurchaseDate  string          `json:"PurchaseDate"`
	OrderTotal    AmazonMoney     `json:"OrderTotal"`
	BuyerInfo     AmazonBuyerInfo `json:"BuyerInfo"`
}

type AmazonOrderItem struct {
	OrderItemID       string      `json:"OrderItemId"`
	SellerSKU         string      `json:"SellerSKU"`
	Title             string      `json:"Title"`
	QuantityOrdered   int         `json:"QuantityOrdered"`
	ItemPrice         AmazonMoney `json:"ItemPrice"`
	ItemTax           AmazonMoney `json:"ItemTax"`
	ShippingPrice     AmazonMoney `json:"ShippingPrice"`
	PromotionDiscount AmazonMoney `json:"PromotionDiscount"`
}

type amazonOrdersPage struct {
	Payload struct {
		Orders    []AmazonOrder `json:"Orders"`
		NextToken string        `json:"NextToken"`
	} `json:"payload"`
}

type amazonItemsPage struct {
	Payload struct {
		OrderItems []AmazonOrderItem `json:"OrderItems"`
		NextToken  string            `json:"NextToken"`
	} `json:"payload"`
}
