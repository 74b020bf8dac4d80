package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/suPer8Hu/coursegen/internal/common"
)

// UserIDKey holds the token subject; handlers use it as the course owner.
const UserIDKey = "user_id"

// AuthRequired checks an HS256 bearer token signed with secret, as sent by
// the database webhook. An empty secret disables the check.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			common.Fail(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			common.Fail(c, http.StatusUnauthorized, msg, nil)
			return
		}
		if claims.Subject != "" {
			c.Set(UserIDKey, claims.Subject)
		}
		c.Next()
	}
}
