package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/pipeline"
	"github.com/Skufu/proactivecare/internal/ratelimit"
	"github.com/Skufu/proactivecare/internal/vitals"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type predictRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

type routerDeps struct {
	Pipeline    predictRunner
	Extractor   pipeline.Extractor
	Checks      map[string]HealthChecker
	RateLimit   int
	CORSOrigins []string
	Logger      *zap.Logger

	// TrustedProxies may set X-Forwarded-For; nil trusts nobody.
	TrustedProxies []string
}

type predictRequest struct {
	SymptomsText string   `json:"symptoms_text" binding:"required,min=3,max=5000"`
	HeartRate    *float64 `json:"heart_rate" binding:"omitempty,gte=20,lte=250"`
	SystolicBP   *float64 `json:"systolic_bp" binding:"omitempty,gte=40,lte=300"`
	DiastolicBP  *float64 `json:"diastolic_bp" binding:"omitempty,gte=30,lte=200"`
	Temperature  *float64 `json:"temperature" binding:"omitempty,gte=30,lte=45"`
	SpO2         *float64 `json:"spo2" binding:"omitempty,gte=40,lte=100"`
	Glucose      *float64 `json:"glucose" binding:"omitempty,gte=20,lte=600"`
	Weight       *float64 `json:"weight" binding:"omitempty,gte=1,lte=500"`
	SaveEntry    *bool    `json:"save_entry"`
}

func (r predictRequest) vitals() vitals.Snapshot {
	return vitals.Snapshot{
		HeartRate:   r.HeartRate,
		SystolicBP:  r.SystolicBP,
		DiastolicBP: r.DiastolicBP,
		Temperature: r.Temperature,
		SpO2:        r.SpO2,
		Glucose:     r.Glucose,
		Weight:      r.Weight,
	}
}

type extractRequest struct {
	SymptomsText string `json:"symptoms_text"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func setupRouter(deps routerDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	// The client IP is part of the rate-limit key, so forwarded headers count
	// only when they come from a configured proxy.
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		requestLogger(logger),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-User-ID", "X-Request-ID"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok"}
		code := http.StatusOK
		for name, check := range deps.Checks {
			if check == nil {
				body[name] = "disabled"
				continue
			}
			if err := check.Ping(ctx); err != nil {
				body[name] = fmt.Sprintf("unhealthy: %v", err)
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}
		c.JSON(code, body)
	})

	api := router.Group("/api/v1")
	api.POST("/predict", predictHandler(deps, logger))
	api.POST("/predict/extract-symptoms", extractHandler(deps))

	return router
}

func predictHandler(deps routerDeps, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload predictRequest
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondBindError(c, err)
			return
		}

		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			userID = "anonymous"
		}
		saveEntry := payload.SaveEntry == nil || *payload.SaveEntry

		resp, err := deps.Pipeline.Run(c.Request.Context(), pipeline.Request{
			SymptomsText: payload.SymptomsText,
			Vitals:       payload.vitals(),
			AdmissionKey: userID + ":" + c.ClientIP(),
			UserID:       userID,
			SaveEntry:    saveEntry,
		})
		switch {
		case errors.Is(err, ratelimit.ErrRateLimitExceeded):
			c.JSON(http.StatusTooManyRequests, errorBody(
				fmt.Sprintf("Rate limit exceeded. Max %d prediction requests per minute.", deps.RateLimit), nil))
			return
		case err != nil:
			logger.Error("prediction failed", zap.Error(err), zap.String("request_id", c.GetString("request_id")))
			sentry.CaptureException(err)
			c.JSON(http.StatusInternalServerError, errorBody("Internal server error", nil))
			return
		}
		c.JSON(http.StatusOK, successBody(resp, "Prediction completed"))
	}
}

func extractHandler(deps routerDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload extractRequest
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid payload", nil))
			return
		}
		res := deps.Extractor.Extract(c.Request.Context(), payload.SymptomsText)
		c.JSON(http.StatusOK, successBody(res, "OK"))
	}
}

func successBody(data any, message string) gin.H {
	return gin.H{"success": true, "message": message, "data": data}
}

func errorBody(message string, errs any) gin.H {
	return gin.H{"success": false, "message": message, "errors": errs}
}

func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, errorBody("invalid payload", nil))
		return
	}
	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: jsonFieldName(fe.Field()), Rule: fe.Tag(), Param: fe.Param()})
	}
	body := errorBody("Validation error", details)
	body["code"] = "validation_failed"
	c.JSON(http.StatusUnprocessableEntity, body)
}

var fieldNames = map[string]string{
	"SymptomsText": "symptoms_text",
	"HeartRate":    "heart_rate",
	"SystolicBP":   "systolic_bp",
	"DiastolicBP":  "diastolic_bp",
	"Temperature":  "temperature",
	"SpO2":         "spo2",
	"Glucose":      "glucose",
	"Weight":       "weight",
}

func jsonFieldName(field string) string {
	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
