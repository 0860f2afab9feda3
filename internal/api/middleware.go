package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-service/internal/auth"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	claimsKey       = "claims"
	requestIDHeader = "X-Request-ID"
)

// requestLogger tags each request with an id and a scoped zap logger, then
// logs the outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)

		logger := util.GetLogger().With(zap.String("request_id", requestID))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request completed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request completed", fields...)
		default:
			logger.Info("Request completed", fields...)
		}
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		util.LoggerFromContext(c.Request.Context()).Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path))
		abortWith(c, http.StatusInternalServerError, "internal server error", nil)
	})
}

// requireAuth validates the bearer token and stores its claims in the context.
func requireAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortWith(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		claims, err := svc.Authenticate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			util.LoggerFromContext(c.Request.Context()).Info("Rejected token", zap.Error(err))
			abortWith(c, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		c.Set(claimsKey, claims)
		logger := util.LoggerFromContext(c.Request.Context()).With(zap.Int64("user_id", claims.UserID))
		c.Request = c.Request.WithContext(util.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// requireRole must run after requireAuth.
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			abortWith(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		abortWith(c, http.StatusForbidden, "insufficient role", nil)
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func userIDFrom(c *gin.Context) *int64 {
	claims := claimsFrom(c)
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}
