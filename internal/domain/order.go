package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// UnresolvedMerchant marks an order whose merchant could not be resolved.
const UnresolvedMerchant int64 = -1

type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusSubmitted        OrderStatus = "SUBMITTED"
	OrderStatusResubmitted      OrderStatus = "RESUBMITTED"
	OrderStatusAccepted         OrderStatus = "ACCEPTED"
	OrderStatusRejected         OrderStatus = "REJECTED"
	OrderStatusRejectedMerchant OrderStatus = "REJECTED_MERCHANT"
	OrderStatusRejectedPayment  OrderStatus = "REJECTED_PAYMENT"
	OrderStatusCompleted        OrderStatus = "COMPLETED"
)

// LineItem is a quantity of one offering inside an order. Quantity is kept as
// a json.Number because carts may carry values that are not integers.
type LineItem struct {
	ID          string          `json:"id"`
	OfferingRef string          `json:"offeringRef"`
	Quantity    json.Number     `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
}

// Quantity formats n as a line item quantity.
func Quantity(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}

// Message is free text attached to an order (gift note, delivery instructions).
type Message struct {
	ID   string `json:"id"`
	Body string `json:"message"`
}

type Address struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"firstName,omitempty"`
	LastName     string   `json:"lastName,omitempty"`
	Company      string   `json:"company,omitempty"`
	Email        string   `json:"email,omitempty"`
	Telephone    string   `json:"telephone,omitempty"`
	Street1      string   `json:"street1"`
	Street2      string   `json:"street2,omitempty"`
	Street3      string   `json:"street3,omitempty"`
	City         string   `json:"city"`
	PostCode     string   `json:"postCode"`
	State        string   `json:"state"`
	Instructions *Message `json:"instructions,omitempty"`
}

// DeliveryWindow is the scheduled delivery interval of an order.
type DeliveryWindow struct {
	Begin time.Time `json:"begin"`
	End   time.Time `json:"end"`
}

type Order struct {
	ID                 string          `json:"id"`
	OrderKey           string          `json:"orderKey"`
	CartID             string          `json:"-"`
	MerchantRef        string          `json:"merchantRef"`
	MerchantID         int64           `json:"merchantId"`
	ExternalReference  string          `json:"externalReference,omitempty"`
	DeliveryMethod     string          `json:"deliveryMethod"`
	DeliveryAddress    Address         `json:"deliveryAddress"`
	DeliveryWindow     *DeliveryWindow `json:"deliveryWindow,omitempty"`
	GiftMessage        *Message        `json:"giftMessage,omitempty"`
	Lines              []LineItem      `json:"lines"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	Tip                decimal.Decimal `json:"tip"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	PromoRef           *string         `json:"promoRef"`
	Status             OrderStatus     `json:"status"`
	FulfillmentCartRef string          `json:"fulfillmentCartRef,omitempty"`
	LogisticOrderRef   string          `json:"logisticOrderRef,omitempty"`
	Errors             []ErrorEntry    `json:"errors,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// HasResolvedMerchant reports whether the order can be merged with others.
func (o *Order) HasResolvedMerchant() bool {
	return o.MerchantID != UnresolvedMerchant
}

// RecalculateDiscount sets DiscountAmount to the sum of line discounts.
func (o *Order) RecalculateDiscount() {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Discount)
	}
	o.DiscountAmount = total
}

// AddError records messages under field, merging with an existing entry for
// the same field and dropping duplicate messages.
func (o *Order) AddError(field string, messages ...string) {
	for i := range o.Errors {
		if o.Errors[i].Field == field {
			o.Errors[i].add(messages...)
			return
		}
	}
	entry := ErrorEntry{Field: field}
	entry.add(messages...)
	o.Errors = append(o.Errors, entry)
}

// ErrorEntry accumulates distinct messages for one field.
type ErrorEntry struct {
	Field    string   `json:"field"`
	Messages []string `json:"messages"`
}

func (e *ErrorEntry) add(messages ...string) {
	for _, msg := range messages {
		if !e.Has(msg) {
			e.Messages = append(e.Messages, msg)
		}
	}
}

// Has reports whether msg is already recorded.
func (e ErrorEntry) Has(msg string) bool {
	for _, m := range e.Messages {
		if m == msg {
			return true
		}
	}
	return false
}

// OrderCollection is the set of orders submitted in one checkout.
type OrderCollection []*Order

// Subtotal sums the current member subtotals.
func (c OrderCollection) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, o := range c {
		total = total.Add(o.Subtotal)
	}
	return total
}

// DiscountTotal sums the current member discount amounts.
func (c OrderCollection) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, o := range c {
		total = total.Add(o.DiscountAmount)
	}
	return total
}
