package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader is checked when no bearer token is sent.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose key does not match the bcrypt hash. The key is
// read from a bearer Authorization header or from X-API-Key.
func APIKey(hash string) fiber.Handler {
	hashed := []byte(hash)
	return func(c *fiber.Ctx) error {
		key := c.Get(APIKeyHeader)
		if authz := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			key = strings.TrimSpace(authz[len("Bearer "):])
		}
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing api key")
		}
		if err := bcrypt.CompareHashAndPassword(hashed, []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}
}
