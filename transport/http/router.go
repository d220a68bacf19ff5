package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/certify/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter sets up the Gin router
func SetupRouter(
	ownership *service.OwnershipService,
	certificates *service.CertificateService,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewHandlers(ownership, certificates, logger)

	router.GET("/health", handlers.Health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Ownership verification
	verify := router.Group("/verify")
	{
		verify.POST("/challenge", handlers.Challenge)
		verify.POST("/ownership", handlers.VerifyOwnership)
	}
	router.GET("/proofs/:token", handlers.Proof)

	// Ledger reads
	certificatesGroup := router.Group("/certificates/:tokenId")
	{
		certificatesGroup.GET("", handlers.Course)
		certificatesGroup.GET("/holders/:address", handlers.Holding)
		certificatesGroup.POST("/validity", handlers.Validity)
	}
	router.GET("/holders/:address/certificates", handlers.Portfolio)

	return router
}
