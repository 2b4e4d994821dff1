package adminapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the JWT payload issued by the marketplace's auth service.
type sessionClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func (claims *sessionClaims) hasRole(role string) bool {
	for _, candidate := range claims.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// authMiddleware validates the bearer token, requires the admin role, and
// stores the token subject as the acting admin's id.
func authMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, authorizationBearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		rawToken := strings.TrimPrefix(header, authorizationBearerPrefix)

		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return signingKey, nil
		}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		if claims.Subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "token missing subject"))
			return
		}
		if !claims.hasRole(roleAdmin) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
			return
		}

		ctx.Set(contextKeyActor, claims.Subject)
		ctx.Next()
	}
}

func actorFrom(ctx *gin.Context) string {
	value, ok := ctx.Get(contextKeyActor)
	if !ok {
		return ""
	}
	actor, _ := value.(string)
	return actor
}
