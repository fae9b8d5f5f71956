package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/auth"
)

func newTestSigner(t *testing.T) *auth.Signer {
	t.Helper()
	s, err := auth.NewSigner("middleware-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func newAuthRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(verifier))
	router.GET("/api/documents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserIDFromContext(c), "email": UserEmailFromContext(c)})
	})
	router.OPTIONS("/api/documents", func(c *gin.Context) {
		c.String(http.StatusOK, "handler reached")
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router := newAuthRouter(newTestSigner(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Body.Len() != 0 {
		t.Fatalf("preflight must stop before the handler, got body %q", resp.Body.String())
	}
}

func TestAuthAcceptsValidToken(t *testing.T) {
	signer := newTestSigner(t)
	router := newAuthRouter(signer)
	token, err := signer.Sign("user-42", "u@example.com")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if got := resp.Body.String(); got != `{"email":"u@example.com","userId":"user-42"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestAuthRejects(t *testing.T) {
	signer := newTestSigner(t)
	router := newAuthRouter(signer)
	other, _ := auth.NewSigner("some-other-secret", time.Hour)
	foreign, _ := other.Sign("user-42", "")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer   "},
		{name: "malformed token", header: "Bearer not.a.jwt"},
		{name: "foreign signature", header: "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}
