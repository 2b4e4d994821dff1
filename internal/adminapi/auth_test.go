package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testSigningKey = "secret-key"
	testIssuer     = "reviewramp"
)

func signToken(t *testing.T, subject string, issuer string, roles []string, expiresAt time.Time) string {
	t.Helper()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(authMiddleware([]byte(testSigningKey), testIssuer))
	router.GET("/who", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"actor": actorFrom(ctx)})
	})
	return router
}

func performRequest(router *gin.Engine, token string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		request.Header.Set(authorizationHeader, authorizationBearerPrefix+token)
	}
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestAuthMiddlewareAcceptsAdminToken(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, "admin-7", testIssuer, []string{"admin"}, time.Now().Add(time.Hour))

	recorder := performRequest(router, token)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != `{"actor":"admin-7"}` {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	router := newAuthRouter()
	recorder := performRequest(router, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestAuthMiddlewareRejectsWrongIssuer(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, "admin-7", "someone-else", []string{"admin"}, time.Now().Add(time.Hour))
	recorder := performRequest(router, token)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, "admin-7", testIssuer, []string{"admin"}, time.Now().Add(-time.Hour))
	recorder := performRequest(router, token)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestAuthMiddlewareRequiresAdminRole(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, "reader-1", testIssuer, []string{"reader"}, time.Now().Add(time.Hour))
	recorder := performRequest(router, token)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}
