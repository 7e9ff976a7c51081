package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine with the prediction and health routes.
func NewRouter(predictor Predictor, logger *zap.Logger, opts Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestID(), accessLog(logger.Named("http")), recovery(logger))

	h := NewHandler(predictor, logger, opts.RequestTimeout)
	r.POST("/predict", limitBody(opts.MaxUploadBytes), h.Predict)
	r.GET("/health", HealthHandler)

	r.NoRoute(frameworkErrorHandler(http.StatusNotFound))
	r.NoMethod(frameworkErrorHandler(http.StatusMethodNotAllowed))
	return r
}
