package fulfillment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-checkout/internal/domain"
)

const scheduleLayout = "2006-01-02T15:04:05"

var deliveryTypes = map[string]string{
	"shipping":  "SHIPPING",
	"on_demand": "PHYSICAL",
	"scheduled": "PHYSICAL",
}

// DeliveryType maps an order delivery method to the fulfillment delivery type.
func DeliveryType(method string) (string, error) {
	if t, ok := deliveryTypes[method]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unsupported delivery method %q", method)
}

// Quantize rounds half-even to cents.
func Quantize(d decimal.Decimal) string {
	return d.RoundBank(2).StringFixed(2)
}

type CartPayload struct {
	Status                   string           `json:"status"`
	DeliveryType             string           `json:"delivery_type"`
	MerchantID               int64            `json:"tmk"`
	CustomerID               string           `json:"ext_customer_id"`
	ShippingFee              float64          `json:"ext_shipping_fee"`
	TaxAmount                string           `json:"ext_tax_amount"`
	CommercialOrderID        string           `json:"ext_commercial_order_id"`
	LogisticOrderID          string           `json:"ext_logistic_order_id"`
	DeliveryScheduledBegin   *string          `json:"delivery_scheduled_begin"`
	DeliveryScheduledEnd     *string          `json:"delivery_scheduled_end"`
	DeviceData               string           `json:"device_data"`
	PaymentMethodFingerprint string           `json:"payment_method_fingerprint"`
	Recipient                Recipient        `json:"recipient"`
	TipAmount                string           `json:"tip_amount"`
	PromoCode                *string          `json:"promo_code"`
	DiscountAmount           string           `json:"v2_discount_amt"`
	DiscountTotal            string           `json:"v2_discount_total"`
	Lines                    []OfferingAmount `json:"orders"`
	Instructions             string           `json:"instructions"`
}

type Recipient struct {
	Name     string           `json:"recipient_name"`
	GiftFlag bool             `json:"gift_flag"`
	GiftNote *string          `json:"gift_note"`
	Address  RecipientAddress `json:"address"`
}

type RecipientAddress struct {
	City     string `json:"city"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
}

type OfferingAmount struct {
	OfferingID string      `json:"offering_id"`
	Quantity   json.Number `json:"quantity"`
}

// PayloadInput carries the checkout-wide values of a payload.
type PayloadInput struct {
	Status                   string
	CustomerRef              string
	CommercialOrderID        string
	PaymentMethodFingerprint string
	DeviceData               string
	// LogisticOrderID is empty before the cart exists downstream; the order
	// key is sent instead.
	LogisticOrderID string
	DiscountTotal   decimal.Decimal
}

// NewCartPayload serializes one order for the fulfillment service.
func NewCartPayload(o *domain.Order, in PayloadInput) (CartPayload, error) {
	deliveryType, err := DeliveryType(o.DeliveryMethod)
	if err != nil {
		return CartPayload{}, err
	}

	addr := o.DeliveryAddress
	p := CartPayload{
		Status:                   in.Status,
		DeliveryType:             deliveryType,
		MerchantID:               o.MerchantID,
		CustomerID:               in.CustomerRef,
		TaxAmount:                Quantize(o.Tax),
		CommercialOrderID:        in.CommercialOrderID,
		LogisticOrderID:          in.LogisticOrderID,
		DeviceData:               in.DeviceData,
		PaymentMethodFingerprint: in.PaymentMethodFingerprint,
		Recipient: Recipient{
			Name: strings.TrimSpace(addr.FirstName + " " + addr.LastName),
			Address: RecipientAddress{
				City:     addr.City,
				Address1: addr.Street1,
				Address2: addr.Street2,
				State:    addr.State,
				ZipCode:  addr.PostCode,
			},
		},
		TipAmount:      Quantize(o.Tip),
		PromoCode:      o.PromoRef,
		DiscountAmount: Quantize(o.DiscountAmount),
		DiscountTotal:  Quantize(in.DiscountTotal),
		Lines:          make([]OfferingAmount, 0, len(o.Lines)),
	}
	if p.LogisticOrderID == "" {
		p.LogisticOrderID = o.OrderKey
	}
	if o.DeliveryWindow != nil {
		begin := o.DeliveryWindow.Begin.Format(scheduleLayout)
		end := o.DeliveryWindow.End.Format(scheduleLayout)
		p.DeliveryScheduledBegin = &begin
		p.DeliveryScheduledEnd = &end
	}
	if o.GiftMessage != nil {
		note := o.GiftMessage.Body
		p.Recipient.GiftFlag = true
		p.Recipient.GiftNote = &note
	}
	if addr.Instructions != nil {
		p.Instructions = addr.Instructions.Body
	}
	for _, line := range o.Lines {
		if _, err := line.Quantity.Int64(); err != nil {
			return CartPayload{}, fmt.Errorf("invalid quantity %q for offering %s", line.Quantity, line.OfferingRef)
		}
		p.Lines = append(p.Lines, OfferingAmount{OfferingID: line.OfferingRef, Quantity: line.Quantity})
	}
	return p, nil
}
