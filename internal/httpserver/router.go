package httpserver

import (
	"context"
	"net/http"
	"time"

	"marketplace-checkout/internal/service/checkout"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type checkoutService interface {
	Checkout(ctx context.Context, cartKey string, in checkout.Input) (*checkout.Result, error)
}

// Deps are the collaborators the router serves.
type Deps struct {
	CheckoutSvc      checkoutService
	Metrics          http.Handler
	ReadyChecks      map[string]Pinger
	CORSAllowOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestID(), requestLogger(logger), recovery(logger))
	if len(deps.CORSAllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSAllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.ReadyChecks))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	if deps.CheckoutSvc != nil {
		router.POST("/carts/:cartKey/checkout", checkoutHandler(deps.CheckoutSvc))
	}

	return router
}
