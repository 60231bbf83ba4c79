// Package promotion applies checkout discounts to single orders or to every
// order of a checkout.
package promotion

import (
	"errors"

	"github.com/shopspring/decimal"

	"marketplace-checkout/internal/domain"
)

var (
	// ErrPromotionInvalid means the promotion does not apply to the target.
	ErrPromotionInvalid = errors.New("promotion not valid")
	// ErrPromotionNotFound means the promo service does not know the code.
	ErrPromotionNotFound = errors.New("promotion not found")
	// ErrPromotionMalformed means the promo service answered with a shape we cannot use.
	ErrPromotionMalformed = errors.New("promotion malformed")
)

type Kind int

const (
	KindNoDiscount Kind = iota
	KindValue
	KindPercent
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindPercent:
		return "percent"
	default:
		return "none"
	}
}

var hundred = decimal.NewFromInt(100)

// Promotion is a discount strategy. Only the fields of its Kind are meaningful.
type Promotion struct {
	Kind Kind
	Ref  string

	// NoDiscount
	Message string

	// Value
	DollarValue       decimal.Decimal
	MinimumOrderValue decimal.Decimal

	// Percent. MaximumValue is carried but not enforced as a cap.
	PercentOff   decimal.Decimal
	MaximumValue decimal.Decimal
}

func NoDiscount(message string) Promotion {
	return Promotion{Kind: KindNoDiscount, Message: message}
}

func Value(ref string, dollarValue, minimumOrderValue decimal.Decimal) Promotion {
	return Promotion{Kind: KindValue, Ref: ref, DollarValue: dollarValue, MinimumOrderValue: minimumOrderValue}
}

func Percent(ref string, percentOff, maximumValue decimal.Decimal) Promotion {
	return Promotion{Kind: KindPercent, Ref: ref, PercentOff: percentOff, MaximumValue: maximumValue}
}

// Target is what a promotion operates on: one order or a collection.
type Target interface {
	target()
}

type single struct{ order *domain.Order }

type collection struct{ orders domain.OrderCollection }

func (single) target()     {}
func (collection) target() {}

// Single targets one order.
func Single(o *domain.Order) Target { return single{order: o} }

// Collection targets every order of a checkout.
func Collection(orders domain.OrderCollection) Target { return collection{orders: orders} }

// Validate reports whether the promotion may be applied to t.
func (p Promotion) Validate(t Target) bool {
	switch p.Kind {
	case KindValue:
		switch t := t.(type) {
		case single:
			return p.validValue(t.order)
		case collection:
			for _, o := range t.orders {
				if !p.validValue(o) {
					return false
				}
			}
			return true
		}
	case KindPercent:
		// Collections are not checked against anything yet; every order qualifies.
		return true
	}
	return false
}

func (p Promotion) validValue(o *domain.Order) bool {
	return p.MinimumOrderValue.LessThanOrEqual(o.Subtotal)
}

// Apply writes line discounts and the promo reference without validating.
func (p Promotion) Apply(t Target) {
	switch t := t.(type) {
	case single:
		p.applyOrder(t.order)
	case collection:
		if p.Kind == KindValue {
			p.applyValueCollection(t.orders)
			return
		}
		for _, o := range t.orders {
			p.applyOrder(o)
		}
	}
}

func (p Promotion) applyOrder(o *domain.Order) {
	switch p.Kind {
	case KindValue:
		setLineDiscounts(o, ratio(p.DollarValue, o.Subtotal), p.Ref)
	case KindPercent:
		setLineDiscounts(o, p.PercentOff.Div(hundred), p.Ref)
	default:
		for i := range o.Lines {
			o.Lines[i].Discount = decimal.Zero
		}
		o.PromoRef = nil
		o.RecalculateDiscount()
	}
}

// applyValueCollection spreads the dollar value over the orders in proportion
// to each order's share of the collection subtotal.
func (p Promotion) applyValueCollection(orders domain.OrderCollection) {
	perDollar := ratio(p.DollarValue, orders.Subtotal())
	for _, o := range orders {
		share := perDollar.Mul(o.Subtotal)
		setLineDiscounts(o, ratio(share, o.Subtotal), p.Ref)
	}
}

// ValidateAndApply applies the promotion when it is valid for t. NoDiscount
// always applies. For a collection, orders that fail validation get their
// promo reference cleared and the rest share the discount, possibly none.
func (p Promotion) ValidateAndApply(t Target) error {
	if p.Kind == KindNoDiscount {
		p.Apply(t)
		return nil
	}
	switch t := t.(type) {
	case single:
		if !p.Validate(t) {
			return ErrPromotionInvalid
		}
		p.Apply(t)
	case collection:
		eligible := make(domain.OrderCollection, 0, len(t.orders))
		for _, o := range t.orders {
			if p.Validate(Single(o)) {
				eligible = append(eligible, o)
				continue
			}
			o.PromoRef = nil
		}
		p.Apply(Collection(eligible))
	}
	return nil
}

func ratio(amount, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(base)
}

func setLineDiscounts(o *domain.Order, rate decimal.Decimal, ref string) {
	for i := range o.Lines {
		o.Lines[i].Discount = o.Lines[i].Subtotal.Mul(rate)
	}
	promoRef := ref
	o.PromoRef = &promoRef
	o.RecalculateDiscount()
}
