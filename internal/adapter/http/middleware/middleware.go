package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerava/nova/internal/core/ports"
	"github.com/nerava/nova/pkg/apperror"
	"github.com/nerava/nova/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Authorization scheme used by the wallet pass platform.
	passAuthScheme = "ApplePass "

	// Context keys
	CtxMerchantID = "merchant_id"
	CtxWalletKey  = "wallet"
)

// JWTAuth creates a middleware that validates merchant JWT tokens.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		tokenStr := authHeader[7:]
		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, claims.MerchantID)
		c.Next()
	}
}

// PassAuth authenticates wallet-protocol requests. The platform sends
// "Authorization: ApplePass <per-pass secret>" and the serial number in the
// path; the resolved wallet is stored in the context. Responses are bare
// status codes, never the JSON error envelope, because the caller is the
// external pass platform.
func PassAuth(passSvc ports.PassService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, passAuthScheme) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		secret := strings.TrimPrefix(authHeader, passAuthScheme)
		serial := c.Param("serialNumber")

		wallet, err := passSvc.AuthenticateSerial(c.Request.Context(), serial, secret)
		if err != nil {
			var appErr *apperror.AppError
			status := http.StatusUnauthorized
			if errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusNotFound {
				status = http.StatusNotFound
			}
			log.Debug().Err(err).Str("serial", serial).Msg("pass authentication rejected")
			c.AbortWithStatus(status)
			return
		}

		c.Set(CtxWalletKey, wallet)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
