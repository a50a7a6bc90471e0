package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/auth"
	"github.com/dmitrijs2005/libsync/internal/server/ratelimit"
	"github.com/labstack/echo/v4"
)

// RequestLogger logs one line per request.
func RequestLogger(log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			log.Info(req.Context(), "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_id", userID(c),
				"bytes_out", res.Size,
			)
			return nil
		}
	}
}

// tokenFromRequest reads a bearer token from Authorization, falling back to
// the access_token header.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(common.AccessTokenHeaderName)
}

// Authenticate rejects requests without a valid token and stores the user id
// in the echo context.
func Authenticate(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := tokenFromRequest(c.Request())
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing access token"})
			}
			id, err := auth.GetUserIDFromToken(token, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			c.Set(common.UserIDContextKey, id)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(common.UserIDContextKey).(string)
	return id
}

// RateLimit caps sync requests per authenticated user. A counter backend
// failure lets the request through.
func RateLimit(l ratelimit.Limiter, log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			id := userID(c)

			ok, retryAfter, err := l.Allow(ctx, id)
			if err != nil {
				log.Warn(ctx, "rate limiter unavailable", "user_id", id, "error", err)
				return next(c)
			}
			if !ok {
				secs := int((retryAfter + time.Second - 1) / time.Second)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.Warn(ctx, "rate limit exceeded", "user_id", id)
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded, try again later"})
			}
			return next(c)
		}
	}
}
