package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue(Identity{Subject: "EMP1", Role: "manager", Branch: "north"}, "geoattend", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := Parse(pair.AccessToken, "secret", "geoattend")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "EMP1" || claims.Role != "manager" || claims.Branch != "north" || claims.Use != UseAccess {
		t.Fatalf("claims = %+v", claims)
	}
	refresh, err := Parse(pair.RefreshToken, "secret", "geoattend")
	if err != nil || refresh.Use != UseRefresh {
		t.Fatalf("refresh = %+v, %v", refresh, err)
	}

	if _, err := Parse(pair.AccessToken, "other", "geoattend"); err == nil {
		t.Fatal("wrong key accepted")
	}
	if _, err := Parse(pair.AccessToken, "secret", "someone-else"); err == nil {
		t.Fatal("wrong issuer accepted")
	}
}

func TestExpiredToken(t *testing.T) {
	pair, err := Issue(Identity{Subject: "EMP1", Role: "manager"}, "", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(pair.AccessToken, "secret", ""); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatal("password did not match its hash")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatal("wrong password matched")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", Bearer("secret", "geoattend"), RequireRole("admin"), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})

	tokens := func(role string) TokenPair {
		p, err := Issue(Identity{Subject: "u", Role: role}, "geoattend", "secret", time.Minute, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	admin, manager := tokens("admin"), tokens("manager")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + admin.RefreshToken, http.StatusUnauthorized},
		{"wrong role", "Bearer " + manager.AccessToken, http.StatusForbidden},
		{"admin", "Bearer " + admin.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
