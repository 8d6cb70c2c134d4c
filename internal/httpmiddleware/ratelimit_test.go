package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("buckets are per key")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("one token should refill after a second at 60/min")
	}
	if l.Allow("a") {
		t.Fatal("only one token refilled")
	}

	now = now.Add(time.Hour)
	l.Sweep(time.Minute)
	if len(l.state) != 0 {
		t.Fatalf("sweep left %d buckets", len(l.state))
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSimpleTokenBucket(1, 1)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("subject", c.GetHeader("X-Subject"))
		c.Next()
	})
	r.GET("/", l.Middleware(ByContextKey("subject")), SecurityHeaders(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(subject string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Subject", subject)
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("EMP1"); w.Code != http.StatusNoContent || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("first = %d %v", w.Code, w.Header())
	}
	if w := do("EMP1"); w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d", w.Code)
	}
	if w := do("EMP2"); w.Code != http.StatusNoContent {
		t.Fatalf("other subject = %d", w.Code)
	}
	// Empty keys are not limited.
	for i := 0; i < 3; i++ {
		if w := do(""); w.Code != http.StatusNoContent {
			t.Fatalf("anonymous = %d", w.Code)
		}
	}
}
