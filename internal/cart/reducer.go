package cart

import (
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Coupon defaults
const (
	DefaultCouponCode = "FIRST20"
)

// DefaultCouponDiscount is the fraction taken off by DefaultCouponCode
var DefaultCouponDiscount = decimal.RequireFromString("0.20")

// MismatchPolicy decides what ApplyCoupon does with a code it does not recognize
type MismatchPolicy string

const (
	// ClearOnMismatch drops any active coupon when an unknown code is applied
	ClearOnMismatch MismatchPolicy = "clear"
	// KeepOnMismatch ignores the unknown code and keeps the active coupon
	KeepOnMismatch MismatchPolicy = "keep"
)

// ParseMismatchPolicy maps a config value to a policy, defaulting to ClearOnMismatch
func ParseMismatchPolicy(s string) MismatchPolicy {
	if MismatchPolicy(strings.ToLower(strings.TrimSpace(s))) == KeepOnMismatch {
		return KeepOnMismatch
	}
	return ClearOnMismatch
}

// CouponRule is the single recognized coupon
type CouponRule struct {
	Code     string
	Discount decimal.Decimal
	Policy   MismatchPolicy
}

// DefaultCouponRule returns FIRST20 at 20% with ClearOnMismatch
func DefaultCouponRule() CouponRule {
	return CouponRule{
		Code:     DefaultCouponCode,
		Discount: DefaultCouponDiscount,
		Policy:   ClearOnMismatch,
	}
}

func (r CouponRule) matches(code string) bool {
	return r.Code != "" && strings.EqualFold(strings.TrimSpace(code), r.Code)
}

// LastAction marks the most recent add so the UI can show a toast
type LastAction struct {
	Type    string          `json:"type"`
	Product *models.Product `json:"product,omitempty"`
}

// State is one shopper's cart, wishlist, coupon and drawer state
type State struct {
	Items              []models.CartItem     `json:"items"`
	Wishlist           []models.WishlistItem `json:"wishlist"`
	CouponCode         string                `json:"couponCode,omitempty"`
	DiscountPercentage decimal.Decimal       `json:"discountPercentage"`
	IsCartOpen         bool                  `json:"isCartOpen"`
	IsWishlistOpen     bool                  `json:"isWishlistOpen"`
	IsQuickViewOpen    bool                  `json:"isQuickViewOpen"`
	QuickViewProduct   *models.Product       `json:"quickViewProduct,omitempty"`
	LastAction         *LastAction           `json:"lastAction,omitempty"`
}

// NewState returns the empty state
func NewState() State {
	return State{
		Items:              []models.CartItem{},
		Wishlist:           []models.WishlistItem{},
		DiscountPercentage: decimal.Zero,
	}
}

// Subtotal is the sum of effective line totals
func (s State) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemCount is the total number of units in the cart
func (s State) ItemCount() int {
	var n int
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// Reducer applies actions to state. It holds configuration only and never mutates its input.
type Reducer struct {
	Coupon CouponRule
}

// NewReducer creates a reducer for the given coupon rule
func NewReducer(coupon CouponRule) Reducer {
	return Reducer{Coupon: coupon}
}

// Reduce returns the state after applying action. Unknown actions return s unchanged.
func (r Reducer) Reduce(s State, action Action) State {
	next := s.clone()

	switch a := action.(type) {
	case AddToCart:
		next.Items = addLine(next.Items, a.Product, a.SelectedOptions, 1)
		next.LastAction = lastAdd(TypeAddToCart, a.Product)

	case AddToCartWithQuantity:
		if a.Quantity < 1 {
			return s
		}
		next.Items = addLine(next.Items, a.Product, a.SelectedOptions, a.Quantity)
		next.LastAction = lastAdd(TypeAddToCartWithQuantity, a.Product)

	case RemoveFromCart:
		next.Items = removeLines(next.Items, a.ID, a.SelectedOptions)

	case UpdateQuantity:
		if a.Quantity <= 0 {
			next.Items = removeLines(next.Items, a.ID, a.SelectedOptions)
			break
		}
		for i := range next.Items {
			if lineMatches(next.Items[i], a.ID, a.SelectedOptions) {
				next.Items[i].Quantity = a.Quantity
			}
		}

	case AddToWishlist:
		key := a.SelectedOptions.Key()
		for _, w := range next.Wishlist {
			if w.ID == a.Product.ID && w.SelectedOptions.Key() == key {
				return next
			}
		}
		next.Wishlist = append(next.Wishlist, models.WishlistItem{
			Product:         a.Product,
			SelectedOptions: copyOptions(a.SelectedOptions),
		})
		next.LastAction = lastAdd(TypeAddToWishlist, a.Product)

	case RemoveFromWishlist:
		kept := make([]models.WishlistItem, 0, len(next.Wishlist))
		for _, w := range next.Wishlist {
			if w.ID != a.ID {
				kept = append(kept, w)
			}
		}
		next.Wishlist = kept

	case ApplyCoupon:
		switch {
		case r.Coupon.matches(a.Code):
			next.CouponCode = r.Coupon.Code
			next.DiscountPercentage = r.Coupon.Discount
		case r.Coupon.Policy == KeepOnMismatch:
		default:
			next.CouponCode = ""
			next.DiscountPercentage = decimal.Zero
		}

	case RemoveCoupon:
		next.CouponCode = ""
		next.DiscountPercentage = decimal.Zero

	case ClearCart:
		next.Items = []models.CartItem{}

	case ToggleCart:
		next.IsCartOpen = toggle(next.IsCartOpen, a.IsOpen)

	case ToggleWishlist:
		next.IsWishlistOpen = toggle(next.IsWishlistOpen, a.IsOpen)

	case OpenQuickView:
		p := a.Product
		next.QuickViewProduct = &p
		next.IsQuickViewOpen = true

	case CloseQuickView:
		next.QuickViewProduct = nil
		next.IsQuickViewOpen = false

	default:
		return s
	}

	return next
}

// clone copies the slices so the caller's state is never aliased
func (s State) clone() State {
	next := s
	next.Items = make([]models.CartItem, len(s.Items))
	copy(next.Items, s.Items)
	next.Wishlist = make([]models.WishlistItem, len(s.Wishlist))
	copy(next.Wishlist, s.Wishlist)
	return next
}

func addLine(items []models.CartItem, p models.Product, opts *models.SelectedOptions, qty int) []models.CartItem {
	for i := range items {
		if lineMatches(items[i], p.ID, opts) && items[i].SelectedOptions.Key() == opts.Key() {
			items[i].Quantity += qty
			return items
		}
	}
	return append(items, models.CartItem{
		Product:         p,
		Quantity:        qty,
		SelectedOptions: copyOptions(opts),
	})
}

// lineMatches compares by id and, when opts is given, by option key too
func lineMatches(item models.CartItem, id int64, opts *models.SelectedOptions) bool {
	if item.ID != id {
		return false
	}
	return opts == nil || item.SelectedOptions.Key() == opts.Key()
}

func removeLines(items []models.CartItem, id int64, opts *models.SelectedOptions) []models.CartItem {
	kept := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		if !lineMatches(item, id, opts) {
			kept = append(kept, item)
		}
	}
	return kept
}

func copyOptions(o *models.SelectedOptions) *models.SelectedOptions {
	if o.IsZero() {
		return nil
	}
	c := *o
	return &c
}

func lastAdd(actionType string, p models.Product) *LastAction {
	return &LastAction{Type: actionType, Product: &p}
}

func toggle(current bool, want *bool) bool {
	if want != nil {
		return *want
	}
	return !current
}
