package checkout

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"storefront/internal/models"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Bangladeshi mobile numbers after stripping spaces, hyphens and parentheses
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\+880(?:1[3-9]\d{8}|[789]\d{8})$`),
	regexp.MustCompile(`^880(?:1[3-9]\d{8}|[789]\d{8})$`),
	regexp.MustCompile(`^01[3-9]\d{8}$`),
	regexp.MustCompile(`^1[3-9]\d{8}$`),
}

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// Field error messages
const (
	MsgNameRequired    = "Please enter your full name"
	MsgPhoneRequired   = "Please enter your phone number"
	MsgPhoneInvalid    = "Please enter a valid Bangladeshi mobile number (e.g. 01712345678)"
	MsgEmailInvalid    = "Please enter a valid email address"
	MsgCourierRequired = "Please select a delivery area"
	MsgDistrictShort   = "District must be at least 2 characters"
	MsgTownShort       = "Town must be at least 2 characters"
	MsgStreetShort     = "Street address must be at least 2 characters"
	MsgPaymentRequired = "Please select a payment method"
)

// ValidationError is a field-level checkout error shown next to the input
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsValidationError reports whether err is a *ValidationError
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NormalizePhone strips the separators people type into phone fields
func NormalizePhone(phone string) string {
	return phoneSeparator.Replace(strings.TrimSpace(phone))
}

// ValidPhone reports whether phone is a Bangladeshi mobile number
func ValidPhone(phone string) bool {
	p := NormalizePhone(phone)
	for _, re := range phonePatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// ValidEmail accepts the empty string as "not provided"
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email == "" || emailPattern.MatchString(email)
}

// requiredFields are the checks a browser would run from the form's required attributes
type requiredFields struct {
	Name        string `validate:"required"`
	Phone       string `validate:"required"`
	CourierTier string `validate:"required,oneof=inside_dhaka outside_dhaka"`
}

var requiredMessages = map[string]string{
	"Name":        MsgNameRequired,
	"Phone":       MsgPhoneRequired,
	"CourierTier": MsgCourierRequired,
}

// Validator runs the shipping step checks
type Validator struct {
	v *validatorv10.Validate
}

// NewValidator returns a validator with the bdphone, optemail and mintrim tags registered
func NewValidator() *Validator {
	v := validatorv10.New()

	_ = v.RegisterValidation("bdphone", func(fl validatorv10.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("optemail", func(fl validatorv10.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("mintrim", func(fl validatorv10.FieldLevel) bool {
		min, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= min
	})

	return &Validator{v: v}
}

// ValidateShipping returns the first failing check: required fields first,
// then phone, email and the address parts.
func (val *Validator) ValidateShipping(form models.CheckoutFormData) *ValidationError {
	err := val.v.Struct(requiredFields{
		Name:        strings.TrimSpace(form.Name),
		Phone:       strings.TrimSpace(form.Phone),
		CourierTier: form.CourierTier,
	})
	if err != nil {
		var ve validatorv10.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			field := ve[0].Field()
			return &ValidationError{Field: jsonField(field), Message: requiredMessages[field]}
		}
		return &ValidationError{Field: "form", Message: err.Error()}
	}

	checks := []struct {
		field, value, tag, msg string
	}{
		{"phone", form.Phone, "bdphone", MsgPhoneInvalid},
		{"email", form.Email, "optemail", MsgEmailInvalid},
		{"district", form.District, "mintrim=2", MsgDistrictShort},
		{"town", form.Town, "mintrim=2", MsgTownShort},
		{"street", form.Street, "mintrim=2", MsgStreetShort},
	}
	for _, c := range checks {
		if err := val.v.Var(c.value, c.tag); err != nil {
			return &ValidationError{Field: c.field, Message: c.msg}
		}
	}

	return nil
}

// ValidatePayment checks the payment step
func (val *Validator) ValidatePayment(form models.CheckoutFormData) *ValidationError {
	if err := val.v.Var(form.PaymentMethod, "required,oneof=cash_on_delivery"); err != nil {
		return &ValidationError{Field: "paymentMethod", Message: MsgPaymentRequired}
	}
	return nil
}

func jsonField(structField string) string {
	switch structField {
	case "CourierTier":
		return "courierTier"
	default:
		return strings.ToLower(structField)
	}
}
