package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"marketplace-checkout/internal/domain"
	"marketplace-checkout/internal/fulfillment"
	"marketplace-checkout/internal/promotion"

	"github.com/shopspring/decimal"
)

type stubRepo struct {
	mu          sync.Mutex
	cart        *domain.Cart
	getErr      error
	refs        map[string][2]string
	orderStatus map[string]domain.OrderStatus
	cartStatus  map[string]domain.CartStatus
}

func newStubRepo(cart *domain.Cart) *stubRepo {
	return &stubRepo{
		cart:        cart,
		refs:        map[string][2]string{},
		orderStatus: map[string]domain.OrderStatus{},
		cartStatus:  map[string]domain.CartStatus{},
	}
}

func (s *stubRepo) GetByKey(_ context.Context, cartKey string) (*domain.Cart, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.cart == nil || s.cart.CartKey != cartKey {
		return nil, domain.ErrNotFound
	}
	return s.cart, nil
}

func (s *stubRepo) UpdateFulfillmentRefs(_ context.Context, orderKey, cartRef, logisticOrderRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[orderKey] = [2]string{cartRef, logisticOrderRef}
	return nil
}

func (s *stubRepo) SetOrderStatus(_ context.Context, orderKey string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderStatus[orderKey] = status
	return nil
}

func (s *stubRepo) SetCartStatus(_ context.Context, cartKey string, status domain.CartStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartStatus[cartKey] = status
	return nil
}

type stubPromos struct {
	promo    promotion.Promotion
	err      error
	lastCode string
}

func (s *stubPromos) FetchPromotion(_ context.Context, code string, _ *domain.Customer) (promotion.Promotion, error) {
	s.lastCode = code
	return s.promo, s.err
}

type stubLocker struct {
	busy     bool
	released bool
}

func (l *stubLocker) Acquire(_ context.Context, _ string) (func(context.Context) error, bool, error) {
	if l.busy {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, true, nil
}

type createReply struct {
	resp *fulfillment.CreateResponse
	err  error
}

type submitReply struct {
	resp *fulfillment.SubmitResponse
	err  error
}

// fakeFulfillment answers per order key. Unconfigured keys succeed with
// cart "cart-<key>" and logistic order "lo-<key>".
type fakeFulfillment struct {
	mu        sync.Mutex
	create    map[string]createReply
	submit    map[string]submitReply
	delay     map[string]time.Duration
	created   map[string]fulfillment.CartPayload
	submitted map[string]fulfillment.CartPayload
	order     []string
}

func newFakeFulfillment() *fakeFulfillment {
	return &fakeFulfillment{
		create:    map[string]createReply{},
		submit:    map[string]submitReply{},
		delay:     map[string]time.Duration{},
		created:   map[string]fulfillment.CartPayload{},
		submitted: map[string]fulfillment.CartPayload{},
	}
}

func (f *fakeFulfillment) wait(ctx context.Context, key string) {
	f.mu.Lock()
	d := f.delay[key]
	f.mu.Unlock()
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (f *fakeFulfillment) CreateCart(ctx context.Context, _ string, payload fulfillment.CartPayload) (*fulfillment.CreateResponse, error) {
	key := payload.LogisticOrderID
	f.wait(ctx, key)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[key] = payload
	f.order = append(f.order, "create:"+key)
	if r, ok := f.create[key]; ok {
		return r.resp, r.err
	}
	return &fulfillment.CreateResponse{
		CartID:          fulfillment.Ref("cart-" + key),
		LogisticOrderID: fulfillment.Ref("lo-" + key),
		Status:          "PENDING",
	}, nil
}

func (f *fakeFulfillment) SubmitCart(ctx context.Context, _ string, logisticOrderID string, payload fulfillment.CartPayload) (*fulfillment.SubmitResponse, error) {
	key := strings.TrimPrefix(logisticOrderID, "lo-")
	f.wait(ctx, key)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted[key] = payload
	f.order = append(f.order, "submit:"+key)
	if r, ok := f.submit[key]; ok {
		return r.resp, r.err
	}
	return &fulfillment.SubmitResponse{
		CartID:        fulfillment.Ref("cart-" + key),
		Status:        "SUBMITTED",
		PaymentMethod: &fulfillment.PaymentMethod{NameOnCard: "Ada Lovelace"},
	}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(key string, merchantID int64, lines ...domain.LineItem) *domain.Order {
	o := &domain.Order{
		OrderKey:       key,
		MerchantID:     merchantID,
		DeliveryMethod: "shipping",
		DeliveryAddress: domain.Address{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Street1:   "1 Main St",
			City:      "Austin",
			PostCode:  "78701",
			State:     "TX",
		},
		Lines:  lines,
		Status: domain.OrderStatusPending,
	}
	for _, l := range lines {
		o.Subtotal = o.Subtotal.Add(l.Subtotal)
	}
	return o
}

func line(ref string, qty int64, subtotal string) domain.LineItem {
	return domain.LineItem{OfferingRef: ref, Quantity: domain.Quantity(qty), Subtotal: dec(subtotal)}
}

func newCart(orders ...*domain.Order) *domain.Cart {
	return &domain.Cart{
		CartKey:  "cart-key-1",
		Customer: &domain.Customer{UserRef: "user-1", FulfillmentRef: "cust-77"},
		Orders:   orders,
		Status:   domain.CartStatusPending,
	}
}
