package bootstrap

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/config"
	"dms-backend/internal/shared/telemetry"
)

func TestBuildInMemoryApp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	t.Cleanup(func() { telemetry.SetOutput(os.Stdout) })

	app, err := Build(config.Config{
		Env:              "dev",
		LogLevel:         "info",
		JWTSecret:        "bootstrap-test-secret",
		JWTTTL:           2 * time.Hour,
		ObjectStoreType:  "local",
		LocalStoreDir:    t.TempDir(),
		CacheBackend:     "none",
		ExtractFromStore: true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.DB != nil {
		t.Fatal("expected memory repositories without DATABASE_URL")
	}
	if !app.DocumentsService.Uploader.ExtractFromStore {
		t.Fatal("expected uploader to extract from the stored object")
	}

	var ready map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "bootstrap.ready" {
			ready = entry
		}
	}
	if ready == nil {
		t.Fatalf("bootstrap.ready not logged: %s", buf.String())
	}
	if ready["token_ttl"] != "2h0m0s" || ready["object_store"] != "local" {
		t.Fatalf("unexpected ready fields: %v", ready)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.Code)
	}
}
