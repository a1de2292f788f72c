package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// Action types, as carried in the "type" field of a dispatched envelope
const (
	TypeAddToCart             = "ADD_TO_CART"
	TypeAddToCartWithQuantity = "ADD_TO_CART_WITH_QUANTITY"
	TypeRemoveFromCart        = "REMOVE_FROM_CART"
	TypeUpdateQuantity        = "UPDATE_QUANTITY"
	TypeAddToWishlist         = "ADD_TO_WISHLIST"
	TypeRemoveFromWishlist    = "REMOVE_FROM_WISHLIST"
	TypeApplyCoupon           = "APPLY_COUPON"
	TypeRemoveCoupon          = "REMOVE_COUPON"
	TypeClearCart             = "CLEAR_CART"
	TypeToggleCart            = "TOGGLE_CART"
	TypeToggleWishlist        = "TOGGLE_WISHLIST"
	TypeOpenQuickView         = "OPEN_QUICK_VIEW"
	TypeCloseQuickView        = "CLOSE_QUICK_VIEW"
)

// Action is one state transition request
type Action interface {
	Type() string
}

// AddToCart adds one unit of a product variant
type AddToCart struct {
	Product         models.Product          `json:"product"`
	SelectedOptions *models.SelectedOptions `json:"selectedOptions,omitempty"`
}

// AddToCartWithQuantity adds several units of a product variant
type AddToCartWithQuantity struct {
	Product         models.Product          `json:"product"`
	SelectedOptions *models.SelectedOptions `json:"selectedOptions,omitempty"`
	Quantity        int                     `json:"quantity"`
}

// RemoveFromCart removes one line, or every line of the product when no options are given
type RemoveFromCart struct {
	ID              int64                   `json:"id"`
	SelectedOptions *models.SelectedOptions `json:"selectedOptions,omitempty"`
}

// UpdateQuantity sets a line's quantity; zero or less removes it
type UpdateQuantity struct {
	ID              int64                   `json:"id"`
	Quantity        int                     `json:"quantity"`
	SelectedOptions *models.SelectedOptions `json:"selectedOptions,omitempty"`
}

// AddToWishlist saves a product variant once
type AddToWishlist struct {
	Product         models.Product          `json:"product"`
	SelectedOptions *models.SelectedOptions `json:"selectedOptions,omitempty"`
}

// RemoveFromWishlist removes every wishlist entry of a product
type RemoveFromWishlist struct {
	ID int64 `json:"id"`
}

// ApplyCoupon applies a coupon code
type ApplyCoupon struct {
	Code string `json:"code"`
}

// RemoveCoupon clears the active coupon
type RemoveCoupon struct{}

// ClearCart empties the cart lines
type ClearCart struct{}

// ToggleCart sets the cart drawer visibility, or flips it when IsOpen is nil
type ToggleCart struct {
	IsOpen *bool `json:"isOpen,omitempty"`
}

// ToggleWishlist sets the wishlist drawer visibility, or flips it when IsOpen is nil
type ToggleWishlist struct {
	IsOpen *bool `json:"isOpen,omitempty"`
}

// OpenQuickView previews a product
type OpenQuickView struct {
	Product models.Product `json:"product"`
}

// CloseQuickView hides the preview
type CloseQuickView struct{}

func (AddToCart) Type() string             { return TypeAddToCart }
func (AddToCartWithQuantity) Type() string { return TypeAddToCartWithQuantity }
func (RemoveFromCart) Type() string        { return TypeRemoveFromCart }
func (UpdateQuantity) Type() string        { return TypeUpdateQuantity }
func (AddToWishlist) Type() string         { return TypeAddToWishlist }
func (RemoveFromWishlist) Type() string    { return TypeRemoveFromWishlist }
func (ApplyCoupon) Type() string           { return TypeApplyCoupon }
func (RemoveCoupon) Type() string          { return TypeRemoveCoupon }
func (ClearCart) Type() string             { return TypeClearCart }
func (ToggleCart) Type() string            { return TypeToggleCart }
func (ToggleWishlist) Type() string        { return TypeToggleWishlist }
func (OpenQuickView) Type() string         { return TypeOpenQuickView }
func (CloseQuickView) Type() string        { return TypeCloseQuickView }

// ErrUnknownAction is returned by DecodeAction for unsupported types
var ErrUnknownAction = errors.New("unknown action type")

// ErrInvalidQuantity is returned when an add carries a quantity below 1
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// DecodeAction decodes a {"type": "...", "payload": {...}} envelope
func DecodeAction(data []byte) (Action, error) {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}

	var action Action
	switch envelope.Type {
	case TypeAddToCart:
		action = &AddToCart{}
	case TypeAddToCartWithQuantity:
		action = &AddToCartWithQuantity{}
	case TypeRemoveFromCart:
		action = &RemoveFromCart{}
	case TypeUpdateQuantity:
		action = &UpdateQuantity{}
	case TypeAddToWishlist:
		action = &AddToWishlist{}
	case TypeRemoveFromWishlist:
		action = &RemoveFromWishlist{}
	case TypeApplyCoupon:
		action = &ApplyCoupon{}
	case TypeRemoveCoupon:
		return RemoveCoupon{}, nil
	case TypeClearCart:
		return ClearCart{}, nil
	case TypeToggleCart:
		action = &ToggleCart{}
	case TypeToggleWishlist:
		action = &ToggleWishlist{}
	case TypeOpenQuickView:
		action = &OpenQuickView{}
	case TypeCloseQuickView:
		return CloseQuickView{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Type)
	}

	if len(envelope.Payload) > 0 && string(envelope.Payload) != "null" {
		if err := json.Unmarshal(envelope.Payload, action); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", envelope.Type, err)
		}
	}

	if a, ok := action.(*AddToCartWithQuantity); ok && a.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	return deref(action), nil
}

// deref returns the value form so reducers can switch on value types only
func deref(a Action) Action {
	switch v := a.(type) {
	case *AddToCart:
		return *v
	case *AddToCartWithQuantity:
		return *v
	case *RemoveFromCart:
		return *v
	case *UpdateQuantity:
		return *v
	case *AddToWishlist:
		return *v
	case *RemoveFromWishlist:
		return *v
	case *ApplyCoupon:
		return *v
	case *ToggleCart:
		return *v
	case *ToggleWishlist:
		return *v
	case *OpenQuickView:
		return *v
	}
	return a
}
