package domain

import "time"

// Customer links a marketplace user to their account in the fulfillment service.
type Customer struct {
	ID             string    `json:"id"`
	UserRef        string    `json:"userRef"`
	FulfillmentRef string    `json:"fulfillmentRef,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
