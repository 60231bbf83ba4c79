package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-checkout/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByKey(ctx context.Context, cartKey string) (*domain.Cart, error) {
	const cartQuery = `
SELECT c.id::text, c.cart_key, c.status, c.created_at,
       cu.id::text, cu.user_ref, COALESCE(cu.fulfillment_customer_ref, ''), cu.created_at
FROM carts c
JOIN customers cu ON cu.id = c.customer_id
WHERE c.cart_key = $1
`
	var (
		cart     domain.Cart
		customer domain.Customer
		status   string
	)
	err := r.pool.QueryRow(ctx, cartQuery, cartKey).Scan(
		&cart.ID,
		&cart.CartKey,
		&status,
		&cart.CreatedAt,
		&customer.ID,
		&customer.UserRef,
		&customer.FulfillmentRef,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cart.Status = domain.CartStatus(status)
	cart.CustomerID = customer.ID
	cart.Customer = &customer

	orders, err := r.fetchOrders(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if err := r.fetchLines(ctx, cart.ID, orders); err != nil {
		return nil, err
	}
	cart.Orders = orders
	return &cart, nil
}

func (r *postgresRepo) fetchOrders(ctx context.Context, cartID string) (domain.OrderCollection, error) {
	const q = `
SELECT o.id::text, o.order_key, o.merchant_ref, o.merchant_id, o.external_reference, o.delivery_method,
       o.delivery_begin, o.delivery_end,
       o.subtotal::text, o.tax::text, o.tip::text, o.discount_amount::text,
       o.promo_ref, o.status, o.fulfillment_cart_ref, o.logistic_order_ref, o.created_at,
       COALESCE(a.id::text, ''), COALESCE(a.first_name, ''), COALESCE(a.last_name, ''),
       COALESCE(a.company, ''), COALESCE(a.email, ''), COALESCE(a.telephone, ''),
       COALESCE(a.street1, ''), COALESCE(a.street2, ''), COALESCE(a.street3, ''),
       COALESCE(a.city, ''), COALESCE(a.post_code, ''), COALESCE(a.state, ''),
       im.id::text, im.body,
       gm.id::text, gm.body
FROM orders o
LEFT JOIN addresses a ON a.id = o.delivery_address_id
LEFT JOIN messages im ON im.id = a.instructions_id
LEFT JOIN messages gm ON gm.id = o.gift_message_id
WHERE o.cart_id = $1
ORDER BY o.created_at ASC, o.order_key ASC
`
	rows, err := r.pool.Query(ctx, q, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders domain.OrderCollection
	for rows.Next() {
		var (
			o                            domain.Order
			begin, end                   *time.Time
			subtotal, tax, tip, discount string
			status                       string
			instrID, instrBody           *string
			giftID, giftBody             *string
		)
		if err := rows.Scan(
			&o.ID, &o.OrderKey, &o.MerchantRef, &o.MerchantID, &o.ExternalReference, &o.DeliveryMethod,
			&begin, &end,
			&subtotal, &tax, &tip, &discount,
			&o.PromoRef, &status, &o.FulfillmentCartRef, &o.LogisticOrderRef, &o.CreatedAt,
			&o.DeliveryAddress.ID, &o.DeliveryAddress.FirstName, &o.DeliveryAddress.LastName,
			&o.DeliveryAddress.Company, &o.DeliveryAddress.Email, &o.DeliveryAddress.Telephone,
			&o.DeliveryAddress.Street1, &o.DeliveryAddress.Street2, &o.DeliveryAddress.Street3,
			&o.DeliveryAddress.City, &o.DeliveryAddress.PostCode, &o.DeliveryAddress.State,
			&instrID, &instrBody,
			&giftID, &giftBody,
		); err != nil {
			return nil, err
		}
		o.CartID = cartID
		o.Status = domain.OrderStatus(status)
		if begin != nil && end != nil {
			o.DeliveryWindow = &domain.DeliveryWindow{Begin: *begin, End: *end}
		}
		o.DeliveryAddress.Instructions = message(instrID, instrBody)
		o.GiftMessage = message(giftID, giftBody)
		if err := parseAmounts(
			[]string{subtotal, tax, tip, discount},
			[]*decimal.Decimal{&o.Subtotal, &o.Tax, &o.Tip, &o.DiscountAmount},
		); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderKey, err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *postgresRepo) fetchLines(ctx context.Context, cartID string, orders domain.OrderCollection) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	const q = `
SELECT li.id::text, li.order_id::text, li.offering_ref, li.quantity, li.subtotal::text, li.discount::text
FROM line_items li
JOIN orders o ON o.id = li.order_id
WHERE o.cart_id = $1
ORDER BY li.created_at ASC, li.id ASC
`
	rows, err := r.pool.Query(ctx, q, cartID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line               domain.LineItem
			orderID            string
			quantity           int64
			subtotal, discount string
		)
		if err := rows.Scan(&line.ID, &orderID, &line.OfferingRef, &quantity, &subtotal, &discount); err != nil {
			return err
		}
		line.Quantity = domain.Quantity(quantity)
		if err := parseAmounts(
			[]string{subtotal, discount},
			[]*decimal.Decimal{&line.Subtotal, &line.Discount},
		); err != nil {
			return fmt.Errorf("line %s: %w", line.ID, err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return rows.Err()
}

func (r *postgresRepo) UpdateFulfillmentRefs(ctx context.Context, orderKey, cartRef, logisticOrderRef string) error {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET fulfillment_cart_ref = $1, logistic_order_ref = $2
WHERE order_key = $3
`, cartRef, logisticOrderRef, orderKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) SetOrderStatus(ctx context.Context, orderKey string, status domain.OrderStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE orders SET status = $1 WHERE order_key = $2`, string(status), orderKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) SetCartStatus(ctx context.Context, cartKey string, status domain.CartStatus) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE carts SET status = $1 WHERE cart_key = $2`, string(status), cartKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func message(id, body *string) *domain.Message {
	if id == nil {
		return nil
	}
	m := &domain.Message{ID: *id}
	if body != nil {
		m.Body = *body
	}
	return m
}

func parseAmounts(raw []string, dst []*decimal.Decimal) error {
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", s, err)
		}
		*dst[i] = d
	}
	return nil
}
