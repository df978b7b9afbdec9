package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leaddesk_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return testSecret }

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/me", AuthRequired(testJWTConfig{}), func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.UserID().String(), "admin": IsAdmin(id)})
	})
	engine.GET("/admin", AuthRequired(testJWTConfig{}), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return engine
}

func serve(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	engine := newAuthEngine()
	userID := uuid.New()
	valid := jwt.MapClaims{
		"sub":   userID.String(),
		"type":  "access",
		"roles": []string{RoleAgent},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	if rec := serve(engine, "/me", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	if rec := serve(engine, "/me", signToken(t, valid, "other-secret")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", rec.Code)
	}

	refresh := jwt.MapClaims{"sub": userID.String(), "type": "refresh", "exp": time.Now().Add(time.Hour).Unix()}
	if rec := serve(engine, "/me", signToken(t, refresh, testSecret)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token: expected 401, got %d", rec.Code)
	}

	expired := jwt.MapClaims{"sub": userID.String(), "type": "access", "exp": time.Now().Add(-time.Minute).Unix()}
	if rec := serve(engine, "/me", signToken(t, expired, testSecret)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rec.Code)
	}

	rec := serve(engine, "/me", signToken(t, valid, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, userID.String()) || !strings.Contains(body, `"admin":false`) {
		t.Fatalf("unexpected body: %s", body)
	}

	// SSE clients pass the token as a query parameter.
	if rec := serve(engine, "/me?token="+signToken(t, valid, testSecret), ""); rec.Code != http.StatusOK {
		t.Fatalf("query token: expected 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	engine := newAuthEngine()
	claims := func(roles ...string) jwt.MapClaims {
		return jwt.MapClaims{
			"sub":   uuid.NewString(),
			"type":  "access",
			"roles": roles,
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
	}

	if rec := serve(engine, "/admin", signToken(t, claims(RoleAgent), testSecret)); rec.Code != http.StatusForbidden {
		t.Fatalf("agent: expected 403, got %d", rec.Code)
	}
	if rec := serve(engine, "/admin", signToken(t, claims(RoleAgent, RoleAdmin), testSecret)); rec.Code != http.StatusNoContent {
		t.Fatalf("admin: expected 204, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, nil)
	engine := gin.New()
	engine.GET("/", limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if rec := serve(engine, "/", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := serve(engine, "/", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
	}{
		{apperr.Conflict("taken").WithCode(apperr.CodeAlreadyClaimed), http.StatusConflict},
		{apperr.Precondition("too small"), http.StatusPreconditionFailed},
		{apperr.Persistence("store", errors.New("down")), http.StatusServiceUnavailable},
		{apperr.Forbidden("no").WithCode(apperr.CodeNotYourLead), http.StatusForbidden},
		{errors.New("plain"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		if !HandleError(c, tc.err) {
			t.Fatalf("%v: expected handled", tc.err)
		}
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	if HandleError(c, nil) {
		t.Fatal("nil error must not be handled")
	}
}
