// Package checkout submits a cart's orders to the fulfillment service.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"marketplace-checkout/internal/domain"
	"marketplace-checkout/internal/fulfillment"
	"marketplace-checkout/internal/merger"
	"marketplace-checkout/internal/metrics"
	"marketplace-checkout/internal/promotion"
	cartrepo "marketplace-checkout/internal/repository/cart"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrCheckoutInProgress   = errors.New("checkout already in progress")
	ErrInvalidPaymentMethod = errors.New("payment method fingerprint required")
)

const msgCustomerUnresolved = "General error reading customer"

type cartRepo interface {
	GetByKey(ctx context.Context, cartKey string) (*domain.Cart, error)
	UpdateFulfillmentRefs(ctx context.Context, orderKey, cartRef, logisticOrderRef string) error
	SetOrderStatus(ctx context.Context, orderKey string, status domain.OrderStatus) error
	SetCartStatus(ctx context.Context, cartKey string, status domain.CartStatus) error
}

type promoFetcher interface {
	FetchPromotion(ctx context.Context, code string, customer *domain.Customer) (promotion.Promotion, error)
}

type fulfillmentClient interface {
	CreateCart(ctx context.Context, customerRef string, payload fulfillment.CartPayload) (*fulfillment.CreateResponse, error)
	SubmitCart(ctx context.Context, customerRef, logisticOrderID string, payload fulfillment.CartPayload) (*fulfillment.SubmitResponse, error)
}

type locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, bool, error)
}

// Options configures a Service. Metrics and Locker are optional.
type Options struct {
	// AbortOnUnstructuredCreateFailure stops the whole submission when a
	// create call fails without a coded error list or never gets an answer.
	AbortOnUnstructuredCreateFailure bool
	Metrics                          *metrics.Checkout
	Locker                           locker
}

type Service struct {
	repo    cartRepo
	promos  promoFetcher
	client  fulfillmentClient
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Checkout
}

func New(repo cartrepo.Repository, promos promoFetcher, client fulfillmentClient, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		promos:  promos,
		client:  client,
		opts:    opts,
		logger:  logger.Named("checkout"),
		tracer:  otel.Tracer("marketplace-checkout/checkout"),
		metrics: opts.Metrics,
	}
}

type Input struct {
	PaymentMethodFingerprint string `json:"paymentMethodFingerprint"`
	DeviceData               string `json:"deviceData"`
	PromoCode                string `json:"promoCode,omitempty"`
}

// Checkout loads the cart, merges its orders per merchant, applies the promo
// code if one is given and submits the result. Problems reported by the
// fulfillment service end up in the Result; the returned error covers
// everything that kept the submission from starting.
func (s *Service) Checkout(ctx context.Context, cartKey string, in Input) (*Result, error) {
	if strings.TrimSpace(in.PaymentMethodFingerprint) == "" {
		return nil, ErrInvalidPaymentMethod
	}
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("cart.key", cartKey)))
	defer span.End()

	if s.opts.Locker != nil {
		release, ok, err := s.opts.Locker.Acquire(ctx, cartKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release checkout lock", zap.String("cart_key", cartKey), zap.Error(err))
			}
		}()
	}

	cart, err := s.repo.GetByKey(ctx, cartKey)
	if err != nil {
		return nil, err
	}
	if cart.Customer == nil || cart.Customer.FulfillmentRef == "" {
		s.logger.Error("customer has no fulfillment reference", zap.String("cart_key", cartKey))
		return failed(http.StatusBadRequest, msgCustomerUnresolved), nil
	}

	orders := merger.Merge(cart.Orders)

	var promoMessage string
	if code := strings.TrimSpace(in.PromoCode); code != "" {
		promo, err := s.promos.FetchPromotion(ctx, code, cart.Customer)
		if err != nil {
			return nil, fmt.Errorf("fetch promotion %q: %w", code, err)
		}
		if err := promo.ValidateAndApply(promotion.Collection(orders)); err != nil {
			return nil, fmt.Errorf("promotion %q: %w", code, err)
		}
		promoMessage = promo.Message
	}

	res := s.Submit(ctx, cart, orders, cart.Customer.FulfillmentRef, Payment{
		Fingerprint: in.PaymentMethodFingerprint,
		DeviceData:  in.DeviceData,
	})
	res.PromoMessage = promoMessage
	s.record(ctx, cart, orders, res)

	s.logger.Info("checkout finished",
		zap.String("cart_key", cartKey),
		zap.Int("status", res.Status),
		zap.Int("orders", len(orders)),
	)
	return res, nil
}

// record persists the statuses of submitted orders and, when everything went
// through, of the cart itself.
func (s *Service) record(ctx context.Context, cart *domain.Cart, orders []*domain.Order, res *Result) {
	byKey := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		byKey[o.OrderKey] = o
	}
	for _, out := range res.Orders {
		o, ok := byKey[out.OrderKey]
		if !ok || out.State != StateSubmitted {
			continue
		}
		status := domain.OrderStatusSubmitted
		if o.Status == domain.OrderStatusSubmitted || o.Status == domain.OrderStatusResubmitted {
			status = domain.OrderStatusResubmitted
		}
		if err := s.repo.SetOrderStatus(ctx, o.OrderKey, status); err != nil {
			s.logger.Error("persist order status", zap.String("order_key", o.OrderKey), zap.Error(err))
			continue
		}
		o.Status = status
	}

	if !res.OK() {
		return
	}
	status := domain.CartStatusSubmitted
	if cart.Status == domain.CartStatusSubmitted || cart.Status == domain.CartStatusResubmitted {
		status = domain.CartStatusResubmitted
	}
	if err := s.repo.SetCartStatus(ctx, cart.CartKey, status); err != nil {
		s.logger.Error("persist cart status", zap.String("cart_key", cart.CartKey), zap.Error(err))
		return
	}
	cart.Status = status
}
