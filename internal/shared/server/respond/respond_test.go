package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		Error(c, http.StatusNotFound, CodeNotFound, "Document not found", nil)
		c.JSON(http.StatusOK, gin.H{"unreachable": true})
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/fail", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, resp.Body.String())
	}
	if body.Message != "Document not found" {
		t.Fatalf("unexpected top-level message: %q", body.Message)
	}
	if body.Error.Code != CodeNotFound || body.Error.Message != "Document not found" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/x", func(c *gin.Context) {
		Message(c, http.StatusOK, "Document deleted")
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/x", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Body.String(); got != `{"message":"Document deleted"}` {
		t.Fatalf("unexpected body: %s", got)
	}
}
