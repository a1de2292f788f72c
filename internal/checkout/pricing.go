package checkout

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the precision of every stored and submitted amount
const moneyPlaces = 2

// Flat courier fees in BDT
var (
	DefaultInsideDhakaFee  = decimal.NewFromInt(60)
	DefaultOutsideDhakaFee = decimal.NewFromInt(120)
)

// Quote is the priced breakdown of a cart
type Quote struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	CourierFee         decimal.Decimal `json:"courierFee"`
	Total              decimal.Decimal `json:"total"`
}

// Pricing holds the courier fee table
type Pricing struct {
	InsideDhakaFee  decimal.Decimal
	OutsideDhakaFee decimal.Decimal
}

// DefaultPricing charges 60 inside Dhaka and 120 elsewhere
func DefaultPricing() Pricing {
	return Pricing{
		InsideDhakaFee:  DefaultInsideDhakaFee,
		OutsideDhakaFee: DefaultOutsideDhakaFee,
	}
}

// CourierFee returns the flat fee for a tier; anything but inside Dhaka is charged as outside
func (p Pricing) CourierFee(tier string) decimal.Decimal {
	if tier == models.CourierInsideDhaka {
		return p.InsideDhakaFee
	}
	return p.OutsideDhakaFee
}

// Quote prices items with the coupon fraction and courier tier. Subtotal, discount
// and fee are rounded to paisa first so Total is their exact sum.
func (p Pricing) Quote(items []models.CartItem, discountPercentage decimal.Decimal, tier string) Quote {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(moneyPlaces)

	discount := subtotal.Mul(discountPercentage).Round(moneyPlaces)
	fee := p.CourierFee(tier).Round(moneyPlaces)

	return Quote{
		Subtotal:           subtotal,
		DiscountPercentage: discountPercentage,
		DiscountAmount:     discount,
		CourierFee:         fee,
		Total:              subtotal.Sub(discount).Add(fee),
	}
}
