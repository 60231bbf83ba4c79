package domain

import "time"

type CartStatus string

const (
	CartStatusPending     CartStatus = "PENDING"
	CartStatusSubmitted   CartStatus = "SUBMITTED"
	CartStatusResubmitted CartStatus = "RESUBMITTED"
)

type Cart struct {
	ID         string          `json:"id"`
	CartKey    string          `json:"cartKey"`
	CustomerID string          `json:"-"`
	Customer   *Customer       `json:"customer,omitempty"`
	Orders     OrderCollection `json:"orders"`
	Status     CartStatus      `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}
