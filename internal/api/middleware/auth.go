package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// LocalClientKey holds a short fingerprint of the authenticated API key.
// It keys rate limiting and never contains the key itself.
const LocalClientKey = "client_key"

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// KeyHash is the hex SHA-256 of the accepted API key (API_KEY_HASH).
	KeyHash string
	// AllowAnonymous lets requests through when KeyHash is empty. Only
	// set in development.
	AllowAnonymous bool
	Logger         *slog.Logger
}

// Auth creates an authentication middleware using API Key
func Auth(cfg AuthConfig) fiber.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.KeyHash == "" && cfg.AllowAnonymous {
		logger.Warn("API_KEY_HASH not set, authentication disabled")
		return func(c *fiber.Ctx) error {
			c.Locals(LocalClientKey, "anonymous")
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractBearerToken(c)
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		// Wrong key and missing config look the same to the caller.
		if !domain.MatchAPIKey(apiKey, cfg.KeyHash) {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalClientKey, domain.HashAPIKey(apiKey)[:12])
		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetClientKey retrieves the client fingerprint set by Auth.
func GetClientKey(c *fiber.Ctx) (string, error) {
	key, ok := c.Locals(LocalClientKey).(string)
	if !ok || key == "" {
		return "", domain.ErrUnauthorized
	}
	return key, nil
}
