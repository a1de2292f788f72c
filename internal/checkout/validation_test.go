package checkout

import (
	"testing"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPhone(t *testing.T) {
	accepted := []string{
		"+8801712345678",
		"8801712345678",
		"01812345678",
		"1912345678",
		"+880 1712-345678",
		"(017) 1234-5678",
		"+880712345678",
	}
	for _, p := range accepted {
		assert.True(t, ValidPhone(p), p)
	}

	rejected := []string{
		"12345",
		"08001234567",
		"01212345678",
		"+88017123456789",
		"0171234567",
		"+8801212345678",
		"",
		"phone",
	}
	for _, p := range rejected {
		assert.False(t, ValidPhone(p), p)
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail(""))
	assert.True(t, ValidEmail("rahim@example.com"))
	assert.True(t, ValidEmail(" rahim@mail.example.com.bd "))
	assert.False(t, ValidEmail("rahim@example"))
	assert.False(t, ValidEmail("rahim example.com"))
	assert.False(t, ValidEmail("@example.com"))
}

func validForm() models.CheckoutFormData {
	return models.CheckoutFormData{
		Name:        "Rahim Uddin",
		Phone:       "01712345678",
		District:    "Dhaka",
		Town:        "Mirpur",
		Street:      "Road 10, House 5",
		CourierTier: models.CourierInsideDhaka,
	}
}

func TestValidateShipping(t *testing.T) {
	v := NewValidator()
	assert.Nil(t, v.ValidateShipping(validForm()))

	cases := []struct {
		name  string
		edit  func(*models.CheckoutFormData)
		field string
		msg   string
	}{
		{"missing name", func(f *models.CheckoutFormData) { f.Name = "  " }, "name", MsgNameRequired},
		{"missing phone", func(f *models.CheckoutFormData) { f.Phone = "" }, "phone", MsgPhoneRequired},
		{"missing courier", func(f *models.CheckoutFormData) { f.CourierTier = "" }, "courierTier", MsgCourierRequired},
		{"unknown courier", func(f *models.CheckoutFormData) { f.CourierTier = "moon" }, "courierTier", MsgCourierRequired},
		{"bad phone", func(f *models.CheckoutFormData) { f.Phone = "12345" }, "phone", MsgPhoneInvalid},
		{"bad email", func(f *models.CheckoutFormData) { f.Email = "nope" }, "email", MsgEmailInvalid},
		{"missing district", func(f *models.CheckoutFormData) { f.District = "" }, "district", MsgDistrictShort},
		{"short town", func(f *models.CheckoutFormData) { f.Town = " M " }, "town", MsgTownShort},
		{"missing street", func(f *models.CheckoutFormData) { f.Street = "" }, "street", MsgStreetShort},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.edit(&form)
			ve := v.ValidateShipping(form)
			require.NotNil(t, ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, tc.msg, ve.Message)
		})
	}
}

func TestValidateShippingReportsFirstFailure(t *testing.T) {
	v := NewValidator()
	form := validForm()
	form.Phone = "12345"
	form.District = ""
	form.Street = ""

	ve := v.ValidateShipping(form)
	require.NotNil(t, ve)
	assert.Equal(t, "phone", ve.Field)

	form.Phone = "01712345678"
	ve = v.ValidateShipping(form)
	require.NotNil(t, ve)
	assert.Equal(t, "district", ve.Field)
}

func TestValidatePayment(t *testing.T) {
	v := NewValidator()
	form := validForm()

	require.NotNil(t, v.ValidatePayment(form))
	form.PaymentMethod = models.PaymentCashOnDelivery
	assert.Nil(t, v.ValidatePayment(form))
}

func TestIsValidationError(t *testing.T) {
	var err error = &ValidationError{Field: "phone", Message: MsgPhoneInvalid}
	ve, ok := IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "phone", ve.Field)

	_, ok = IsValidationError(ErrEmptyCart)
	assert.False(t, ok)
}
