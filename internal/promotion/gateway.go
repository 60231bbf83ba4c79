package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-checkout/internal/domain"
)

// maxResponseSize caps promo service bodies.
const maxResponseSize = 1 << 20

// GatewayConfig locates the promo service.
type GatewayConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Gateway resolves promo codes against the external promo service.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGateway(cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("promotion_gateway"),
	}
}

type promoResponse struct {
	Valid    bool            `json:"valid"`
	Type     string          `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Minimum  decimal.Decimal `json:"minimum"`
	MaxValue decimal.Decimal `json:"max_value"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
}

// FetchPromotion looks up code, scoped to customer when it has a fulfillment
// reference. Failures are returned as-is; there is no fallback.
func (g *Gateway) FetchPromotion(ctx context.Context, code string, customer *domain.Customer) (Promotion, error) {
	endpoint := fmt.Sprintf("%s/v2/promos/%s", g.baseURL, url.PathEscape(code))
	if customer != nil && customer.FulfillmentRef != "" {
		q := url.Values{}
		q.Set("thirstie_customer_ref", customer.FulfillmentRef)
		q.Set("user_ref", customer.UserRef)
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Promotion{}, fmt.Errorf("build promo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Promotion{}, fmt.Errorf("fetch promo %q: %w", code, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Promotion{}, fmt.Errorf("read promo response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionNotFound, code)
	}
	if resp.StatusCode >= 400 {
		return Promotion{}, fmt.Errorf("fetch promo %q: HTTP %d", code, resp.StatusCode)
	}

	var pr promoResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Promotion{}, fmt.Errorf("%w: decode body: %v", ErrPromotionMalformed, err)
	}

	if !pr.Valid {
		g.logger.Info("promo code rejected", zap.String("code", code), zap.String("message", pr.Message))
		return NoDiscount(pr.Message), nil
	}
	switch pr.Type {
	case "P":
		return Percent(pr.Code, pr.Value, pr.MaxValue), nil
	case "A":
		return Value(pr.Code, pr.Value, pr.Minimum), nil
	}
	return Promotion{}, fmt.Errorf("%w: unknown type %q", ErrPromotionMalformed, pr.Type)
}
