package validation

import (
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// CEP, with or without the dash.
var postalCodeRe = regexp.MustCompile(`^\d{5}-?\d{3}$`)

// New returns a validator with the custom rules the request types use.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("postal_code", func(fl validatorv10.FieldLevel) bool {
		return postalCodeRe.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})
	return v
}

// checkoutStructValidation requires a card token for card payments and
// rejects one for anything else.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)
	switch {
	case req.PaymentMethod == "credit_card" && req.CardToken == "":
		sl.ReportError(req.CardToken, "card_token", "CardToken", "required_for_card", "")
	case req.PaymentMethod != "credit_card" && req.CardToken != "":
		sl.ReportError(req.CardToken, "card_token", "CardToken", "card_only", "")
	}
}
