package checkout

import (
	"net/http"

	"marketplace-checkout/internal/domain"
)

// State is the submission progress of one order.
type State string

const (
	StatePending    State = "PENDING"
	StateCreating   State = "CREATING"
	StateCreated    State = "CREATED"
	StateSubmitting State = "SUBMITTING"
	StateSubmitted  State = "SUBMITTED"
	StateFailed     State = "FAILED"
)

// OrderOutcome is what happened to one order during a submission.
type OrderOutcome struct {
	OrderKey         string              `json:"orderKey"`
	State            State               `json:"state"`
	HTTPStatus       int                 `json:"httpStatus,omitempty"`
	CartRef          string              `json:"cartRef,omitempty"`
	LogisticOrderRef string              `json:"logisticOrderRef,omitempty"`
	Message          string              `json:"message,omitempty"`
	Errors           []domain.ErrorEntry `json:"errors,omitempty"`
}

// Result aggregates a cart submission. Status is 200 only when every order
// was submitted.
type Result struct {
	Status       int            `json:"status"`
	CartError    string         `json:"cartError,omitempty"`
	PromoMessage string         `json:"promoMessage,omitempty"`
	Orders       []OrderOutcome `json:"orders"`
}

// OK reports whether the whole cart went through.
func (r *Result) OK() bool {
	return r.Status == http.StatusOK
}

// Outcome returns the outcome recorded for orderKey.
func (r *Result) Outcome(orderKey string) (OrderOutcome, bool) {
	for _, o := range r.Orders {
		if o.OrderKey == orderKey {
			return o, true
		}
	}
	return OrderOutcome{}, false
}

func failed(status int, message string) *Result {
	return &Result{Status: status, CartError: message, Orders: []OrderOutcome{}}
}
