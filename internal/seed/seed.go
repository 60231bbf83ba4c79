package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DemoCartKey is the cart inserted by Apply.
const DemoCartKey = "demo-cart"

type orderSeed struct {
	Key            string
	MerchantRef    string
	MerchantID     int64
	DeliveryMethod string
	Tax            string
	Tip            string
	Lines          []lineSeed
}

type lineSeed struct {
	OfferingRef string
	Quantity    int
	Subtotal    string
}

// demoOrders holds two orders from the same merchant so a checkout exercises
// the merge, and one from another merchant.
var demoOrders = []orderSeed{
	{
		Key: "demo-order-1", MerchantRef: "merchant-101", MerchantID: 101, DeliveryMethod: "shipping",
		Tax: "1.65", Tip: "0",
		Lines: []lineSeed{{OfferingRef: "offering-cabernet", Quantity: 1, Subtotal: "24.99"}},
	},
	{
		Key: "demo-order-2", MerchantRef: "merchant-101", MerchantID: 101, DeliveryMethod: "shipping",
		Tax: "2.10", Tip: "0",
		Lines: []lineSeed{
			{OfferingRef: "offering-cabernet", Quantity: 1, Subtotal: "24.99"},
			{OfferingRef: "offering-rose", Quantity: 2, Subtotal: "31.98"},
		},
	},
	{
		Key: "demo-order-3", MerchantRef: "merchant-202", MerchantID: 202, DeliveryMethod: "on_demand",
		Tax: "0.89", Tip: "5.00",
		Lines: []lineSeed{{OfferingRef: "offering-ipa-6pk", Quantity: 1, Subtotal: "12.49"}},
	},
}

// Apply inserts a demo customer and cart for manual testing. It is idempotent:
// an existing demo cart is left untouched.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE cart_key = $1)`, DemoCartKey).Scan(&exists); err != nil {
		return fmt.Errorf("check demo cart: %w", err)
	}
	if exists {
		return nil
	}

	customerID, err := ensureCustomer(ctx, tx, "demo-user", "demo-fulfillment-customer")
	if err != nil {
		return fmt.Errorf("ensure customer: %w", err)
	}

	var cartID string
	if err := tx.QueryRow(ctx, `
INSERT INTO carts (cart_key, customer_id) VALUES ($1, $2) RETURNING id::text
`, DemoCartKey, customerID).Scan(&cartID); err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}

	var instructionsID, addressID string
	if err := tx.QueryRow(ctx, `INSERT INTO messages (body) VALUES ('Ring the bell twice') RETURNING id::text`).Scan(&instructionsID); err != nil {
		return fmt.Errorf("insert instructions: %w", err)
	}
	if err := tx.QueryRow(ctx, `
INSERT INTO addresses (first_name, last_name, email, street1, city, post_code, state, instructions_id)
VALUES ('Demo', 'Shopper', 'demo@example.com', '500 Congress Ave', 'Austin', '78701', 'TX', $1)
RETURNING id::text
`, instructionsID).Scan(&addressID); err != nil {
		return fmt.Errorf("insert address: %w", err)
	}

	for _, o := range demoOrders {
		if err := insertOrder(ctx, tx, cartID, addressID, o); err != nil {
			return fmt.Errorf("insert order %s: %w", o.Key, err)
		}
	}

	return tx.Commit(ctx)
}

func ensureCustomer(ctx context.Context, tx pgx.Tx, userRef, fulfillmentRef string) (string, error) {
	const q = `
INSERT INTO customers (user_ref, fulfillment_customer_ref)
VALUES ($1, $2)
ON CONFLICT (user_ref) DO UPDATE SET fulfillment_customer_ref = EXCLUDED.fulfillment_customer_ref
RETURNING id::text
`
	var id string
	if err := tx.QueryRow(ctx, q, userRef, fulfillmentRef).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, cartID, addressID string, o orderSeed) error {
	var orderID string
	err := tx.QueryRow(ctx, `
INSERT INTO orders (order_key, cart_id, merchant_ref, merchant_id, delivery_method, delivery_address_id, subtotal, tax, tip)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7::numeric, $8::numeric)
RETURNING id::text
`, o.Key, cartID, o.MerchantRef, o.MerchantID, o.DeliveryMethod, addressID, o.Tax, o.Tip).Scan(&orderID)
	if err != nil {
		return err
	}
	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
INSERT INTO line_items (order_id, offering_ref, quantity, subtotal) VALUES ($1, $2, $3, $4::numeric)
`, orderID, l.OfferingRef, l.Quantity, l.Subtotal); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
UPDATE orders SET subtotal = (SELECT COALESCE(SUM(subtotal), 0) FROM line_items WHERE order_id = $1) WHERE id = $1
`, orderID)
	return err
}
