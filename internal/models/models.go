package models

import "github.com/shopspring/decimal"

type Platform string

const (
	PlatformEbay   Platform = "ebay"
	PlatformAmazon Platform = "amazon"
	PlatformWoo    Platform = "wc"
)

// Order is the canonical row every upstream order shape is mapped into.
// (order_id, platform) identifies a row; rows are inserted once and never
// updated afterwards.
type Order struct {
	OrderID        string
	Platform       Platform
	CreationDate   string // UTC ISO-8601, no trailing zone marker
	CustomerName   string
	SubtotalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	DeliveryAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

type LineItem struct {
	LineID      string
	OrderID     string
	SKU         string
	Title       string
	Quantity    int
	TotalAmount decimal.Decimal
}
