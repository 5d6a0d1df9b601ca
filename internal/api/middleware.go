package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/metrics"
	"github.com/goodtune/gamehall/internal/wire"
)

const usernameKey = "username"

// AuthMiddleware requires a valid operator bearer token.
func AuthMiddleware(auth *AuthService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(ctx, http.StatusUnauthorized, apperr.KindUnauthorized, "missing authentication token")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(ctx, http.StatusUnauthorized, apperr.KindUnauthorized, "invalid authorization header")
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			abortWithError(ctx, http.StatusUnauthorized, apperr.KindUnauthorized, "invalid or expired token")
			return
		}

		ctx.Set(usernameKey, claims.Username)
		ctx.Next()
	}
}

// AdminMiddleware requires the admin secret header on top of operator auth.
func AdminMiddleware(auth *AuthService, logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if err := auth.VerifySecret(ctx.GetHeader(wire.AdminSecretHeader)); err != nil {
			logger.Warn().
				Str("path", ctx.Request.URL.Path).
				Str("remote_addr", ctx.ClientIP()).
				Msg("Admin secret rejected")
			abortWithError(ctx, http.StatusForbidden, apperr.KindForbidden, apperr.ErrForbidden.Error())
			return
		}
		ctx.Next()
	}
}

// LoggingMiddleware logs each request and counts it by route template.
func LoggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := ctx.Writer.Status()
		metrics.APIRequestsTotal.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(status)).Inc()

		evt := logger.Info()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Str("remote_addr", ctx.ClientIP()).
			Int("status", status).
			Int("size", ctx.Writer.Size()).
			Msg("API request")
	}
}

// RateLimitMiddleware limits requests per client or per operator.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identifier := ctx.ClientIP()
		if username, exists := ctx.Get(usernameKey); exists {
			if usernameStr, ok := username.(string); ok {
				identifier = "user:" + usernameStr
			}
		}

		if !limiter.Allow(identifier) {
			abortWithError(ctx, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, please try again later")
			return
		}

		ctx.Next()
	}
}

// CORSMiddleware adds CORS headers for the allowed origins.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		origin := ctx.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			ctx.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			ctx.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			ctx.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+wire.AdminSecretHeader)
		}

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}

func abortWithError(ctx *gin.Context, status int, kind apperr.Kind, message string) {
	ctx.AbortWithStatusJSON(status, wire.ErrorResponse{Error: wire.ErrorBody{Kind: kind, Message: message}})
}
