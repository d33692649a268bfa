package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/linguacall/linguacall/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// ParseToken validates a bearer token and returns the user id it carries.
// Used by the REST middleware and by the WebSocket handler, which receives
// the token as a query parameter before the upgrade.
func ParseToken(raw string) (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", errors.New("JWT_SECRET is not set")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing token")
	}

	claims := &accessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || tok == nil || !tok.Valid {
		return "", errors.New("invalid token")
	}

	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" && claims.Issuer != issuer {
		return "", errors.New("invalid token issuer")
	}

	if audience := os.Getenv("JWT_AUDIENCE"); audience != "" {
		valid := false
		for _, aud := range claims.Audience {
			if aud == audience {
				valid = true
				break
			}
		}
		if !valid {
			return "", errors.New("invalid token audience")
		}
	}

	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "missing bearer token",
			})
			return
		}

		userID, err := ParseToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: err.Error(),
			})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
