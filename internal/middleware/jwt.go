package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour

	OwnerKey          = "owner"
	localsDisplayName = "display_name"
)

type Claims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func GenerateTokens(username, displayName, secret string) (*TokenPair, error) {
	access, err := signToken(username, displayName, tokenAccess, accessTTL, secret)
	if err != nil {
		return nil, err
	}
	refresh, err := signToken(username, displayName, tokenRefresh, refreshTTL, secret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func signToken(username, displayName, typ string, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username:    username,
		DisplayName: displayName,
		TokenType:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseRefreshToken validates a refresh token and returns its claims.
func ParseRefreshToken(tokenStr, secret string) (*Claims, error) {
	return parseToken(tokenStr, tokenRefresh, secret)
}

func parseToken(tokenStr, typ, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.TokenType != typ || claims.Username == "" {
		return nil, errors.New("token is not a valid " + typ + " token")
	}
	return claims, nil
}

// ResolveOwner stores the requesting owner in the context. Without a JWT
// secret every request belongs to the configured default owner; with one, an
// access token is required, taken from the Authorization header or, for
// websocket upgrades, the token query parameter.
func ResolveOwner(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.AuthEnabled() {
			c.Locals(OwnerKey, cfg.DefaultOwner)
			return c.Next()
		}

		tokenStr := c.Query("token")
		if auth := c.Get("Authorization"); auth != "" {
			tokenStr = strings.TrimPrefix(auth, "Bearer ")
			if tokenStr == auth {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   true,
					"message": "Invalid authorization format",
				})
			}
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   true,
				"message": "Missing authorization header",
			})
		}

		claims, err := parseToken(tokenStr, tokenAccess, cfg.JWTSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid or expired token",
			})
		}

		c.Locals(OwnerKey, claims.Username)
		c.Locals(localsDisplayName, claims.DisplayName)
		return c.Next()
	}
}

// Owner returns the owner resolved by ResolveOwner.
func Owner(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerKey).(string)
	return owner
}

func DisplayName(c *fiber.Ctx) string {
	name, _ := c.Locals(localsDisplayName).(string)
	return name
}
