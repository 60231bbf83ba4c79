package cart

import (
	"context"

	"marketplace-checkout/internal/domain"
)

// Repository loads carts for checkout and records submission outcomes.
type Repository interface {
	GetByKey(ctx context.Context, cartKey string) (*domain.Cart, error)
	UpdateFulfillmentRefs(ctx context.Context, orderKey, cartRef, logisticOrderRef string) error
	SetOrderStatus(ctx context.Context, orderKey string, status domain.OrderStatus) error
	SetCartStatus(ctx context.Context, cartKey string, status domain.CartStatus) error
}
