package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"marketplace-checkout/internal/domain"
	"marketplace-checkout/internal/promotion"
	"marketplace-checkout/internal/service/checkout"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func checkoutHandler(svc checkoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cartKey := strings.TrimSpace(c.Param("cartKey"))
		if cartKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cart key required"})
			return
		}
		var in checkout.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		res, err := svc.Checkout(c.Request.Context(), cartKey, in)
		if err != nil {
			status, msg := checkoutErrorStatus(err)
			if status >= http.StatusInternalServerError {
				loggerFrom(c).Error("checkout failed", zap.String("cart_key", cartKey), zap.Error(err))
				_ = c.Error(err)
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(res.Status, res)
	}
}

func checkoutErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "cart not found"
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, promotion.ErrPromotionInvalid):
		return http.StatusUnprocessableEntity, "promo code is not valid for this cart"
	case errors.Is(err, promotion.ErrPromotionNotFound):
		return http.StatusBadRequest, "promo code not found"
	case errors.Is(err, promotion.ErrPromotionMalformed):
		return http.StatusBadRequest, "promo code could not be read"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
