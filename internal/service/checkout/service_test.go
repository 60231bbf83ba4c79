package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"marketplace-checkout/internal/domain"
	"marketplace-checkout/internal/fulfillment"
	"marketplace-checkout/internal/promotion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutMergesAppliesPromoAndPersists(t *testing.T) {
	o1 := newOrder("o1", 5, line("wine", 2, "20"))
	o2 := newOrder("o2", 5, line("wine", 3, "30"), line("beer", 1, "50"))
	cart := newCart(o1, o2)
	repo := newStubRepo(cart)
	client := newFakeFulfillment()
	promos := &stubPromos{promo: promotion.Percent("P10", dec("10"), dec("0"))}
	locker := &stubLocker{}

	svc := New(repo, promos, client, zap.NewNop(), Options{AbortOnUnstructuredCreateFailure: true, Locker: locker})
	res, err := svc.Checkout(context.Background(), "cart-key-1", Input{
		PaymentMethodFingerprint: "fp",
		DeviceData:               "dd",
		PromoCode:                " P10 ",
	})

	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "P10", promos.lastCode)
	assert.True(t, locker.released)

	require.Len(t, res.Orders, 1)
	assert.Equal(t, "o1", res.Orders[0].OrderKey)

	payload := client.created["o1"]
	assert.Equal(t, []fulfillment.OfferingAmount{
		{OfferingID: "wine", Quantity: "5"},
		{OfferingID: "beer", Quantity: "1"},
	}, payload.Lines)
	assert.Equal(t, "10.00", payload.DiscountAmount)
	assert.Equal(t, "10.00", payload.DiscountTotal)
	require.NotNil(t, payload.PromoCode)
	assert.Equal(t, "P10", *payload.PromoCode)

	assert.Equal(t, domain.OrderStatusSubmitted, repo.orderStatus["o1"])
	assert.Equal(t, domain.CartStatusSubmitted, repo.cartStatus["cart-key-1"])
}

func TestCheckoutResubmission(t *testing.T) {
	o1 := newOrder("o1", 1, line("a", 1, "10"))
	o1.Status = domain.OrderStatusSubmitted
	cart := newCart(o1)
	cart.Status = domain.CartStatusSubmitted
	repo := newStubRepo(cart)

	svc := New(repo, &stubPromos{}, newFakeFulfillment(), zap.NewNop(), Options{})
	res, err := svc.Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp"})

	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, domain.OrderStatusResubmitted, repo.orderStatus["o1"])
	assert.Equal(t, domain.CartStatusResubmitted, repo.cartStatus["cart-key-1"])
}

func TestCheckoutPartialFailureLeavesCartPending(t *testing.T) {
	o1 := newOrder("o1", 1, line("a", 1, "10"))
	o2 := newOrder("o2", 2, line("b", 1, "10"))
	cart := newCart(o1, o2)
	repo := newStubRepo(cart)
	client := newFakeFulfillment()
	client.create["o2"] = createReply{err: &fulfillment.ResponseError{
		StatusCode: http.StatusBadRequest,
		Errors:     []fulfillment.ErrorDetail{{Code: "CART_INVALID_STORE"}},
	}}

	svc := New(repo, &stubPromos{}, client, zap.NewNop(), Options{AbortOnUnstructuredCreateFailure: true})
	res, err := svc.Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, domain.OrderStatusSubmitted, repo.orderStatus["o1"])
	assert.NotContains(t, repo.orderStatus, "o2")
	assert.Empty(t, repo.cartStatus)
}

func TestCheckoutErrors(t *testing.T) {
	tests := []struct {
		name    string
		cartKey string
		in      Input
		promos  *stubPromos
		locker  *stubLocker
		repoErr error
		wantErr error
	}{
		{
			name:    "missing fingerprint",
			cartKey: "cart-key-1",
			in:      Input{},
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name:    "cart locked",
			cartKey: "cart-key-1",
			in:      Input{PaymentMethodFingerprint: "fp"},
			locker:  &stubLocker{busy: true},
			wantErr: ErrCheckoutInProgress,
		},
		{
			name:    "unknown cart",
			cartKey: "nope",
			in:      Input{PaymentMethodFingerprint: "fp"},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "promo not found",
			cartKey: "cart-key-1",
			in:      Input{PaymentMethodFingerprint: "fp", PromoCode: "GONE"},
			promos:  &stubPromos{err: promotion.ErrPromotionNotFound},
			wantErr: promotion.ErrPromotionNotFound,
		},
		{
			name:    "repository failure",
			cartKey: "cart-key-1",
			in:      Input{PaymentMethodFingerprint: "fp"},
			repoErr: errors.New("db down"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cart := newCart(newOrder("o1", 1, line("a", 1, "10")))
			repo := newStubRepo(cart)
			repo.getErr = tc.repoErr
			promos := tc.promos
			if promos == nil {
				promos = &stubPromos{}
			}
			opts := Options{}
			if tc.locker != nil {
				opts.Locker = tc.locker
			}
			client := newFakeFulfillment()

			res, err := New(repo, promos, client, zap.NewNop(), opts).Checkout(context.Background(), tc.cartKey, tc.in)

			require.Error(t, err)
			assert.Nil(t, res)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Empty(t, client.order)
		})
	}
}

func TestCheckoutPromoBelowMinimumStillSubmits(t *testing.T) {
	o1 := newOrder("o1", 1, line("a", 1, "10"))
	o2 := newOrder("o2", 2, line("b", 1, "15"))
	stale := "OLD"
	o1.PromoRef = &stale
	cart := newCart(o1, o2)
	repo := newStubRepo(cart)
	client := newFakeFulfillment()
	promos := &stubPromos{promo: promotion.Value("BIG", dec("10"), dec("1000"))}

	res, err := New(repo, promos, client, zap.NewNop(), Options{}).
		Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp", PromoCode: "BIG"})

	require.NoError(t, err)
	assert.True(t, res.OK())
	require.Len(t, client.created, 2)
	for _, key := range []string{"o1", "o2"} {
		payload := client.created[key]
		assert.Nil(t, payload.PromoCode, key)
		assert.Equal(t, "0.00", payload.DiscountAmount, key)
	}
	assert.Nil(t, o1.PromoRef)
	assert.Equal(t, domain.CartStatusSubmitted, repo.cartStatus["cart-key-1"])
}

func TestCheckoutEmptyCartIsNotSubmitted(t *testing.T) {
	cart := newCart()
	repo := newStubRepo(cart)
	client := newFakeFulfillment()

	res, err := New(repo, &stubPromos{}, client, zap.NewNop(), Options{}).
		Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Empty(t, client.order)
	assert.Empty(t, repo.cartStatus)
}

func TestCheckoutWithoutFulfillmentRef(t *testing.T) {
	cart := newCart(newOrder("o1", 1, line("a", 1, "10")))
	cart.Customer.FulfillmentRef = ""
	client := newFakeFulfillment()

	res, err := New(newStubRepo(cart), &stubPromos{}, client, zap.NewNop(), Options{}).
		Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "General error reading customer", res.CartError)
	assert.Empty(t, client.order)
}

func TestCheckoutInvalidPromoClearsDiscount(t *testing.T) {
	o1 := newOrder("o1", 1, line("a", 1, "10"))
	o1.Lines[0].Discount = dec("3")
	o1.RecalculateDiscount()
	ref := "OLD"
	o1.PromoRef = &ref
	cart := newCart(o1)
	client := newFakeFulfillment()
	promos := &stubPromos{promo: promotion.NoDiscount("Promo code expired")}

	res, err := New(newStubRepo(cart), promos, client, zap.NewNop(), Options{}).
		Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp", PromoCode: "OLD"})

	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "Promo code expired", res.PromoMessage)
	assert.Nil(t, client.created["o1"].PromoCode)
	assert.Equal(t, "0.00", client.created["o1"].DiscountAmount)
}

// TestCheckoutAgainstHTTPFulfillment runs the whole flow through the real
// client against a fake legacy endpoint.
func TestCheckoutAgainstHTTPFulfillment(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p fulfillment.CartPayload
		_ = json.Unmarshal(body, &p)

		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			if p.MerchantID == 2 {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":[{"error_code":"CART_INVALID_STORE","message":"no store"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"cart_id": 900, "logistic_order_id": "LO-` + p.LogisticOrderID + `", "status": "PENDING"}`))
		case http.MethodPut:
			if !strings.HasPrefix(p.LogisticOrderID, "LO-") || p.Status != "SUBMITTED" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`not paired`))
				return
			}
			_, _ = w.Write([]byte(`{"cart_id": 900, "status": "SUBMITTED", "payment_method": {"name_on_card": "Ada"}}`))
		}
	}))
	defer srv.Close()

	o1 := newOrder("o1", 1, line("a", 1, "10"))
	o2 := newOrder("o2", 2, line("b", 1, "10"))
	o3 := newOrder("o3", 3, line("c", 1, "10"))
	cart := newCart(o1, o2, o3)
	repo := newStubRepo(cart)
	client := fulfillment.NewClient(fulfillment.Config{BaseURL: srv.URL, Token: "tok"}, zap.NewNop())

	res, err := New(repo, &stubPromos{}, client, zap.NewNop(), Options{AbortOnUnstructuredCreateFailure: true}).
		Checkout(context.Background(), "cart-key-1", Input{PaymentMethodFingerprint: "fp"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	out1, _ := res.Outcome("o1")
	out2, _ := res.Outcome("o2")
	out3, _ := res.Outcome("o3")
	assert.Equal(t, StateSubmitted, out1.State)
	assert.Equal(t, "LO-o1", out1.LogisticOrderRef)
	assert.Equal(t, "900", out1.CartRef)
	assert.Equal(t, StateFailed, out2.State)
	assert.Equal(t, StateSubmitted, out3.State)
	assert.Equal(t, "merchant", o2.Errors[0].Field)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, paths, 5)
	assert.Contains(t, paths, "PUT /v0/payments/user/cust-77/carts/LO-o3")
}
