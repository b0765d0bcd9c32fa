package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/remote"
)

// RequestLogger creates a gin middleware for logging requests using zap.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		switch {
		case status >= 500:
			log.Error("Server error", fields...)
		case status >= 400:
			log.Warn("Client error", fields...)
		default:
			// Log successful requests at the Debug level to reduce noise
			log.Debug("Request processed", fields...)
		}
	}
}

// SecureHeaders applies the standard response hardening headers
func SecureHeaders(isDevelopment bool) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      isDevelopment,
	})
	return func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit allows limit requests per client IP per minute
func RateLimit(limit uint) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: limit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.JSON(http.StatusTooManyRequests, remote.NewErrorResponse(
				"Too many requests", "try again after "+time.Until(info.ResetTime).Round(time.Second).String()))
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

// ClientAuth checks the provider credential headers when credentials are configured
func ClientAuth(clientID, clientSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if clientID == "" && clientSecret == "" {
			c.Next()
			return
		}
		id := c.GetHeader("X-Client-Id")
		secret := c.GetHeader("X-Client-Secret")
		if subtle.ConstantTimeCompare([]byte(id), []byte(clientID)) != 1 ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(clientSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, remote.NewErrorResponse("Unauthorized", "invalid client credentials"))
			return
		}
		c.Next()
	}
}
