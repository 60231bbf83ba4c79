package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"marketplace-checkout/internal/domain"
	"marketplace-checkout/internal/fulfillment"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	phaseCreate = "create"
	phaseSubmit = "submit"

	msgInvalidPayment = "Invalid payment method provided"
	msgAborted        = "Checkout aborted after a failed cart creation"
	msgNoOrders       = "Cart has no orders to submit"
)

// Payment carries the payment credentials forwarded with every order.
type Payment struct {
	Fingerprint string
	DeviceData  string
}

type createCall struct {
	orderKey string
	resp     *fulfillment.CreateResponse
	err      error
}

type submitCall struct {
	orderKey string
	resp     *fulfillment.SubmitResponse
	err      error
}

// pendingSubmit is an order whose cart was created and awaits confirmation.
type pendingSubmit struct {
	order   *domain.Order
	outcome *OrderOutcome
	payload fulfillment.CartPayload
}

// submission holds the aggregation state of one Submit call. Only the
// goroutine running Submit reads or writes it; concurrent calls report back
// over channels.
type submission struct {
	s           *Service
	customerRef string
	result      *Result
	outcomes    map[string]*OrderOutcome
	payloads    map[string]fulfillment.CartPayload
	logger      *zap.Logger
}

// Submit runs the two submission phases for orders. Every order is first
// created downstream, then confirmed. Calls within a phase run concurrently
// and are paired back with their orders by order key once the phase is done.
func (s *Service) Submit(ctx context.Context, cart *domain.Cart, orders []*domain.Order, customerRef string, payment Payment) *Result {
	ctx, span := s.tracer.Start(ctx, "checkout.Submit", trace.WithAttributes(
		attribute.String("cart.key", cart.CartKey),
		attribute.Int("cart.orders", len(orders)),
	))
	defer span.End()

	if len(orders) == 0 {
		s.logger.Error("cart has no orders", zap.String("cart_key", cart.CartKey))
		return failed(http.StatusBadRequest, msgNoOrders)
	}

	sub := &submission{
		s:           s,
		customerRef: customerRef,
		result:      &Result{Status: http.StatusOK, Orders: make([]OrderOutcome, 0, len(orders))},
		outcomes:    make(map[string]*OrderOutcome, len(orders)),
		payloads:    make(map[string]fulfillment.CartPayload, len(orders)),
		logger:      s.logger.With(zap.String("cart_key", cart.CartKey), zap.String("customer_ref", customerRef)),
	}

	discountTotal := domain.OrderCollection(orders).DiscountTotal()
	for _, o := range orders {
		payload, err := fulfillment.NewCartPayload(o, fulfillment.PayloadInput{
			Status:                   string(domain.OrderStatusPending),
			CustomerRef:              customerRef,
			CommercialOrderID:        cart.CartKey,
			PaymentMethodFingerprint: payment.Fingerprint,
			DeviceData:               payment.DeviceData,
			DiscountTotal:            discountTotal,
		})
		if err != nil {
			sub.logger.Error("serialize order", zap.String("order_key", o.OrderKey), zap.Error(err))
			return failed(http.StatusBadRequest, err.Error())
		}
		sub.payloads[o.OrderKey] = payload
		sub.outcomes[o.OrderKey] = &OrderOutcome{OrderKey: o.OrderKey, State: StatePending}
	}

	start := time.Now()
	if pending := sub.create(ctx, orders); len(pending) > 0 {
		sub.submit(ctx, pending)
	}
	elapsed := time.Since(start)

	for _, o := range orders {
		out := sub.outcomes[o.OrderKey]
		out.Errors = o.Errors
		sub.result.Orders = append(sub.result.Orders, *out)
	}
	span.SetAttributes(attribute.Int("cart.status", sub.result.Status))
	s.metrics.ObserveResult(sub.result.Status, elapsed.Seconds())
	sub.logger.Info("time elapsed processing payload",
		zap.Duration("elapsed", elapsed),
		zap.Int("status", sub.result.Status),
	)
	return sub.result
}

// create runs the first phase and returns the orders ready for confirmation.
func (sub *submission) create(ctx context.Context, orders []*domain.Order) []pendingSubmit {
	calls := make(chan createCall, len(orders))
	var g errgroup.Group
	for _, o := range orders {
		key, payload := o.OrderKey, sub.payloads[o.OrderKey]
		sub.outcomes[key].State = StateCreating
		g.Go(func() error {
			resp, err := sub.s.client.CreateCart(ctx, sub.customerRef, payload)
			calls <- createCall{orderKey: key, resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(calls)

	results := make([]createCall, 0, len(orders))
	for c := range calls {
		results = append(results, c)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].orderKey < results[j].orderKey })
	sorted := sortByKey(orders)

	var pending []pendingSubmit
	for i, call := range results {
		o := sorted[i]
		out := sub.outcomes[o.OrderKey]
		if call.orderKey != o.OrderKey {
			call.err = fmt.Errorf("%w: create result for %s paired with order %s", fulfillment.ErrTransport, call.orderKey, o.OrderKey)
		}
		if call.err == nil {
			pending = append(pending, sub.created(ctx, o, out, call.resp))
			continue
		}
		if abortable := sub.createFailed(o, out, call.err); abortable && sub.s.opts.AbortOnUnstructuredCreateFailure {
			for _, rest := range sorted[i+1:] {
				skipped := sub.outcomes[rest.OrderKey]
				skipped.State = StateFailed
				skipped.Message = msgAborted
			}
			for _, p := range pending {
				p.outcome.Message = msgAborted
			}
			sub.logger.Warn("aborting submission after unstructured create failure", zap.String("order_key", o.OrderKey))
			return nil
		}
	}
	return pending
}

func (sub *submission) created(ctx context.Context, o *domain.Order, out *OrderOutcome, resp *fulfillment.CreateResponse) pendingSubmit {
	sub.s.metrics.ObserveCall(phaseCreate, "ok")
	out.State = StateCreated
	out.HTTPStatus = http.StatusOK
	out.CartRef = string(resp.CartID)
	out.LogisticOrderRef = string(resp.LogisticOrderID)
	o.FulfillmentCartRef = out.CartRef
	o.LogisticOrderRef = out.LogisticOrderRef

	if out.CartRef != "" {
		if err := sub.s.repo.UpdateFulfillmentRefs(ctx, o.OrderKey, out.CartRef, out.LogisticOrderRef); err != nil {
			sub.logger.Error("write back fulfillment refs", zap.String("order_key", o.OrderKey), zap.Error(err))
		}
	}
	sub.logger.Info("cart created",
		zap.String("order_key", o.OrderKey),
		zap.String("cart_ref", out.CartRef),
		zap.String("status", resp.Status),
	)

	payload := sub.payloads[o.OrderKey]
	payload.Status = string(domain.OrderStatusSubmitted)
	if out.LogisticOrderRef != "" {
		payload.LogisticOrderID = out.LogisticOrderRef
	}
	return pendingSubmit{order: o, outcome: out, payload: payload}
}

// createFailed records a failed create call on the order and the cart. It
// reports whether the failure came without a coded error list.
func (sub *submission) createFailed(o *domain.Order, out *OrderOutcome, err error) bool {
	out.State = StateFailed
	sub.result.Status = http.StatusBadRequest
	log := sub.logger.With(zap.String("order_key", o.OrderKey), zap.String("phase", phaseCreate))

	var re *fulfillment.ResponseError
	if !errors.As(err, &re) {
		sub.s.metrics.ObserveCall(phaseCreate, "transport")
		t := fulfillment.ErrorTemplate(fulfillment.CodeCartError)
		o.AddError(t.Field, t.Message)
		out.HTTPStatus = http.StatusInternalServerError
		out.Message = fmt.Sprintf("General error on creating a new cart - %v", err)
		sub.result.CartError = out.Message
		log.Error("cart creation failed", zap.Int("http_status", out.HTTPStatus), zap.Error(err))
		return true
	}

	out.HTTPStatus = re.StatusCode
	if re.Structured() {
		sub.s.metrics.ObserveCall(phaseCreate, "rejected")
		for _, d := range re.Errors {
			t := fulfillment.ErrorTemplate(d.Code)
			o.AddError(t.Field, t.Message)
			out.Message = t.Message
			log.Error("cart creation error", zap.Int("http_status", re.StatusCode), zap.String("error_code", d.Code))
		}
		sub.result.CartError = out.Message
		return false
	}

	sub.s.metrics.ObserveCall(phaseCreate, "unstructured")
	out.Message = re.Message
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(re.Body))
	}
	sub.result.CartError = out.Message
	log.Error("cart creation failed", zap.Int("http_status", re.StatusCode), zap.ByteString("body", re.Body))
	return true
}

// submit runs the confirmation phase. pending is in order key order.
func (sub *submission) submit(ctx context.Context, pending []pendingSubmit) {
	calls := make(chan submitCall, len(pending))
	var g errgroup.Group
	for _, p := range pending {
		p.outcome.State = StateSubmitting
		key, payload := p.order.OrderKey, p.payload
		g.Go(func() error {
			resp, err := sub.s.client.SubmitCart(ctx, sub.customerRef, payload.LogisticOrderID, payload)
			calls <- submitCall{orderKey: key, resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(calls)

	results := make([]submitCall, 0, len(pending))
	for c := range calls {
		results = append(results, c)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].orderKey < results[j].orderKey })

	for i, call := range results {
		p := pending[i]
		if call.orderKey != p.order.OrderKey {
			call.err = fmt.Errorf("%w: submit result for %s paired with order %s", fulfillment.ErrTransport, call.orderKey, p.order.OrderKey)
		}
		if status, msg := sub.submitted(p, call); status != http.StatusOK {
			sub.result.Status = status
			sub.result.CartError = msg
		}
	}
}

// submitted records the confirmation answer for one order and returns the
// status it contributes to the cart.
func (sub *submission) submitted(p pendingSubmit, call submitCall) (int, string) {
	o, out := p.order, p.outcome
	log := sub.logger.With(zap.String("order_key", o.OrderKey), zap.String("phase", phaseSubmit))

	if call.err == nil {
		for _, w := range call.resp.Warnings {
			t, ok := fulfillment.WarningTemplate(w)
			if !ok {
				log.Warn("unknown cart warning", zap.String("warning", w))
				continue
			}
			o.AddError(t.Field, t.Message)
		}
		if call.resp.PaymentMethod == nil || strings.TrimSpace(call.resp.PaymentMethod.NameOnCard) == "" {
			sub.s.metrics.ObserveCall(phaseSubmit, "invalid_payment")
			log.Error("invalid payment method provided", zap.String("logistic_order_ref", p.payload.LogisticOrderID))
			return failSubmit(out, http.StatusBadRequest, msgInvalidPayment)
		}
		sub.s.metrics.ObserveCall(phaseSubmit, "ok")
		out.State = StateSubmitted
		out.HTTPStatus = http.StatusOK
		log.Info("cart submitted", zap.String("cart_ref", string(call.resp.CartID)), zap.String("status", call.resp.Status))
		return http.StatusOK, ""
	}

	var re *fulfillment.ResponseError
	if !errors.As(call.err, &re) {
		sub.s.metrics.ObserveCall(phaseSubmit, "transport")
		t := fulfillment.ErrorTemplate(fulfillment.CodeCartError)
		o.AddError(t.Field, t.Message)
		msg := fmt.Sprintf("General %d error on submitting cart - %v", http.StatusInternalServerError, call.err)
		log.Error("cart submission failed", zap.Int("http_status", http.StatusInternalServerError), zap.Error(call.err))
		return failSubmit(out, http.StatusInternalServerError, msg)
	}

	sub.s.metrics.ObserveCall(phaseSubmit, "rejected")
	detail := strings.TrimSpace(string(re.Body))
	if re.Structured() {
		parts := make([]string, 0, len(re.Errors))
		for _, d := range re.Errors {
			parts = append(parts, d.Message)
			t := fulfillment.ErrorTemplate(d.Code)
			o.AddError(t.Field, t.Message)
		}
		detail = strings.Join(parts, ", ")
	} else if detail == "" {
		t := fulfillment.ErrorTemplate(fulfillment.CodeCartError)
		o.AddError(t.Field, t.Message)
	}
	msg := fmt.Sprintf("HTTP error %d on submitting cart - %s", re.StatusCode, detail)
	log.Error("cart submission rejected", zap.Int("http_status", re.StatusCode), zap.ByteString("body", re.Body))
	return failSubmit(out, re.StatusCode, msg)
}

func failSubmit(out *OrderOutcome, status int, msg string) (int, string) {
	out.State = StateFailed
	out.HTTPStatus = status
	out.Message = msg
	return status, msg
}

func sortByKey(orders []*domain.Order) []*domain.Order {
	sorted := make([]*domain.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderKey < sorted[j].OrderKey })
	return sorted
}
