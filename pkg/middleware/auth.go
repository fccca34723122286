package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GenerateAdminToken generates a secure random token for admin API authentication
func GenerateAdminToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AdminAuthMiddleware validates bearer tokens for the admin API
func AdminAuthMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		providedToken, ok := BearerToken(authHeader)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		checkAdminToken(c, providedToken, token, logger)
	}
}

// StreamAuthMiddleware is AdminAuthMiddleware for the WebSocket event stream.
// Browsers cannot set headers on a WebSocket upgrade, so a "token" query
// parameter is accepted when no Authorization header is sent.
func StreamAuthMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	header := AdminAuthMiddleware(token, logger)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			header(c)
			return
		}
		checkAdminToken(c, c.Query(TokenQueryParam), token, logger)
	}
}

// TokenQueryParam is the query parameter read by StreamAuthMiddleware
const TokenQueryParam = "token"

func checkAdminToken(c *gin.Context, provided, token string, logger *zap.Logger) {
	if provided == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		c.Abort()
		return
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		logger.Warn("Invalid admin token attempt", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		c.Abort()
		return
	}

	c.Next()
}

// RedactQuery masks the value of every token parameter in a raw query string.
// The order and encoding of the other parameters are preserved.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return rawQuery
	}
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if strings.EqualFold(key, TokenQueryParam) {
			parts[i] = TokenQueryParam + "=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

// Logger returns a gin middleware for logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := RedactQuery(c.Request.URL.RawQuery)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("Request", fields...)
			return
		}
		logger.Info("Request", fields...)
	}
}
