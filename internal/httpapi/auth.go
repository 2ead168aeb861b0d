package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	SessionCookie = "mdsetup_session"
	localsSession = "session"
)

// Authenticate validates the HS256 bearer token of every request. The token
// subject becomes the session, so a caller sees its jobs from any client.
func Authenticate(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Missing authorization header")
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return unauthorized(c, "Invalid authorization header format")
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return unauthorized(c, "Invalid or expired token")
		}
		if claims.Subject == "" {
			return unauthorized(c, "Token has no subject")
		}
		c.Locals(localsSession, "sub:"+claims.Subject)
		return c.Next()
	}
}

// Session binds the request to the session cookie, a new session is issued
// for clients without one. Sessions set by Authenticate take precedence.
func Session() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionID(c) != "" {
			return c.Next()
		}
		id := c.Cookies(SessionCookie)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteStrictMode,
			})
		}
		c.Locals(localsSession, id)
		return c.Next()
	}
}

func sessionID(c *fiber.Ctx) string {
	if id, ok := c.Locals(localsSession).(string); ok {
		return id
	}
	return ""
}

// GenerateToken signs a token for subject, useful for tests and for
// issuing tokens from the command line.
func GenerateToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   "mdsetup",
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
