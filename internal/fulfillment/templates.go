package fulfillment

// Template is the user-facing message attached to an order for a fulfillment
// error or warning code.
type Template struct {
	Field   string
	Message string
}

const (
	CodeCartError    = "CART_ERROR"
	CodeUnknownError = "UNKNOWN_ERROR"
)

var errorTemplates = map[string]Template{
	"CART_INVALID_PROMOCODE":                             {"promo_code", "This promo code is already used."},
	"CART_INVALID_BILLING":                               {"cart", "Invalid cart billing"},
	"CART_INVALID_STORE":                                 {"merchant", "Invalid cart store"},
	"CART_INVALID_ITEMS":                                 {"cart", "Cart has invalid items"},
	"CART_INVALID_USER":                                  {"cart", "Invalid cart user"},
	"CART_DELIVERY_FEE_INVALID":                          {"cart", "Cart delivery fee is invalid"},
	CodeCartError:                                        {"cart", "Cart has an error."},
	"CART_MINIMUM_DELIVERY":                              {"merchant", "Minimum delivery is not satisfied."},
	"CART_MISSING_REQUIRED_FIELD":                        {"cart", "Cart missing required field"},
	"CART_PAYMENT_METHOD_FAILED":                         {"cart", "Payment method failed."},
	"CART_PAYMENT_INTEGRATION_REQUIRED":                  {"cart", "Merchant requires payment integration"},
	"CART_PAYMENT_INTEGRATION_TRANSACTION_FAILED":        {"cart", "Cart integration failed."},
	"CART_PAYMENT_INTEGRATION_TRANSACTION_NOTAUTHORIZED": {"cart", "Cart transaction is not authorized"},
	"CART_STORE_CLOSED":                                  {"merchant", "Store is closed."},
	"CART_MININUM_DELIVERY":                              {"cart", "Minimum delivery not met"},
	CodeUnknownError:                                     {"cart", "Unknown error"},
}

var warningTemplates = map[string]Template{
	"CART_MININUM_DELIVERY": {"cart", "Minimum delivery not met"},
}

// ErrorTemplate returns the template for code, falling back to UNKNOWN_ERROR.
func ErrorTemplate(code string) Template {
	if t, ok := errorTemplates[code]; ok {
		return t
	}
	return errorTemplates[CodeUnknownError]
}

// WarningTemplate returns the template for a warning code.
func WarningTemplate(code string) (Template, bool) {
	t, ok := warningTemplates[code]
	return t, ok
}
