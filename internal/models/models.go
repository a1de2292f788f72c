package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Review is a single comment with its star rating
type Review struct {
	Comment string  `json:"comment"`
	Rating  float64 `json:"rating"`
}

// Product represents a catalog entry parsed from the product sheet
type Product struct {
	ID                 int64            `json:"id"`
	Name               string           `json:"name"`
	Price              decimal.Decimal  `json:"price"`
	Description        string           `json:"description"`
	Images             []string         `json:"images"`
	Videos             []string         `json:"videos"`
	Rating             float64          `json:"rating"`
	Category           string           `json:"category"`
	Subcategory        string           `json:"subcategory,omitempty"`
	Subtitle           string           `json:"subtitle,omitempty"`
	DiscountAmount     *decimal.Decimal `json:"discountAmount,omitempty"`
	PriceAfterDiscount *decimal.Decimal `json:"priceAfterDiscount,omitempty"`
	Sizes              []string         `json:"sizes,omitempty"`
	Colors             []string         `json:"colors,omitempty"`
	ItemsLeft          *int             `json:"itemsLeft,omitempty"`
	CommentsAndRatings []Review         `json:"commentsAndRatings,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
}

// EffectivePrice is the discounted price when one is set and positive, else the list price
func (p Product) EffectivePrice() decimal.Decimal {
	if p.PriceAfterDiscount != nil && p.PriceAfterDiscount.IsPositive() {
		return *p.PriceAfterDiscount
	}
	return p.Price
}

// SelectedOptions is the variant a shopper picked for a product
type SelectedOptions struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// IsZero reports whether no option is selected
func (o *SelectedOptions) IsZero() bool {
	return o == nil || (o.Size == "" && o.Color == "")
}

// Key serializes the options for composite-key comparison
func (o *SelectedOptions) Key() string {
	if o.IsZero() {
		return ""
	}
	return "size=" + o.Size + ";color=" + o.Color
}

// CartItem is one cart line
type CartItem struct {
	Product
	Quantity        int              `json:"quantity"`
	SelectedOptions *SelectedOptions `json:"selectedOptions,omitempty"`
}

// LineTotal returns effective price times quantity
func (c CartItem) LineTotal() decimal.Decimal {
	return c.EffectivePrice().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// WishlistItem is one saved product
type WishlistItem struct {
	Product
	SelectedOptions *SelectedOptions `json:"selectedOptions,omitempty"`
}

// Courier tiers
const (
	CourierInsideDhaka  = "inside_dhaka"
	CourierOutsideDhaka = "outside_dhaka"
)

// Delivery and payment methods
const (
	DeliveryHome          = "home_delivery"
	PaymentCashOnDelivery = "cash_on_delivery"
)

// CheckoutFormData is the draft checkout form
type CheckoutFormData struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	District       string `json:"district"`
	Town           string `json:"town"`
	Street         string `json:"street"`
	Postcode       string `json:"postcode,omitempty"`
	DeliveryMethod string `json:"deliveryMethod"`
	CourierTier    string `json:"courierTier"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
}

// Customer is the customer snapshot stored on an order
type Customer struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	District       string `json:"district"`
	Town           string `json:"town"`
	Street         string `json:"street"`
	Postcode       string `json:"postcode,omitempty"`
	DeliveryMethod string `json:"deliveryMethod"`
	CourierTier    string `json:"courierTier"`
	PaymentMethod  string `json:"paymentMethod"`
}

// OrderItem is the denormalized cart line stored on an order
type OrderItem struct {
	ProductID       int64            `json:"productId"`
	Name            string           `json:"name"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	Quantity        int              `json:"quantity"`
	LineTotal       decimal.Decimal  `json:"lineTotal"`
	Image           string           `json:"image,omitempty"`
	SelectedOptions *SelectedOptions `json:"selectedOptions,omitempty"`
}

// Order represents a submitted order
type Order struct {
	ID                 string          `json:"orderId"`
	SessionID          string          `json:"-"`
	Customer           Customer        `json:"customer"`
	Items              []OrderItem     `json:"items"`
	CouponCode         string          `json:"couponCode,omitempty"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	CourierFee         decimal.Decimal `json:"courierFee"`
	Total              decimal.Decimal `json:"total"`
	OrderDate          string          `json:"orderDate"`
	CreatedAt          time.Time       `json:"createdAt"`
}
