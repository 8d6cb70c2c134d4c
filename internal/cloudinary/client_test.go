package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "100", "folder": "f", "api_key": "key", "public_id": ""})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=f&timestamp=100secret")))
	if got != want {
		t.Fatalf("sign = %s, want %s", got, want)
	}
}

func TestUploadAndDownload(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1_1/demo/image/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if r.FormValue("api_key") != "key" || r.FormValue("folder") != "att" || r.FormValue("public_id") != "EMP1/photo" {
				http.Error(w, "bad params", http.StatusBadRequest)
				return
			}
			if r.FormValue("signature") == "" {
				http.Error(w, "unsigned", http.StatusUnauthorized)
				return
			}
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(f)
			_ = json.NewEncoder(w).Encode(UploadResult{PublicID: "att/EMP1/photo", SecureURL: srvURL + "/asset", Bytes: len(data)})
		case "/asset":
			_, _ = w.Write([]byte("img"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := New("demo", "key", "secret", "att")
	c.Endpoint = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.Upload(context.Background(), []byte("img"), "EMP1/photo")
	if err != nil {
		t.Fatal(err)
	}
	if res.Bytes != 3 || res.PublicID != "att/EMP1/photo" {
		t.Fatalf("result = %+v", res)
	}
	data, err := c.Download(context.Background(), res.SecureURL)
	if err != nil || string(data) != "img" {
		t.Fatalf("download = %q, %v", data, err)
	}
	if _, err := c.Download(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for missing asset")
	}
}

func TestDestroy(t *testing.T) {
	var destroyed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/image/destroy" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		want := fmt.Sprintf("%x", sha1.Sum([]byte("public_id="+r.FormValue("public_id")+"&timestamp=1700000000secret")))
		if r.FormValue("signature") != want {
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		id := r.FormValue("public_id")
		result := "not found"
		if id == "att/photos/EMP1" {
			result = "ok"
			destroyed = append(destroyed, id)
		}
		if id == "att/locked" {
			result = "error"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "att")
	c.Endpoint = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	ctx := context.Background()
	if err := c.Destroy(ctx, "att/photos/EMP1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Destroy(ctx, "att/photos/gone"); err != nil {
		t.Fatalf("missing asset: %v", err)
	}
	if err := c.Destroy(ctx, "att/locked"); err == nil {
		t.Fatal("expected error result to surface")
	}
	if len(destroyed) != 1 {
		t.Fatalf("destroyed = %v", destroyed)
	}
}

func TestPublicIDFromURL(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/image/upload/v1712/att/photos/EMP1.jpg": "att/photos/EMP1",
		"https://res.cloudinary.com/demo/image/upload/att/snapshots/x.v2/EMP1":   "att/snapshots/x.v2/EMP1",
		"https://res.cloudinary.com/demo/image/upload/vault/EMP1.jpg":            "vault/EMP1",
	}
	for raw, want := range cases {
		got, err := PublicIDFromURL(raw)
		if err != nil || got != want {
			t.Errorf("PublicIDFromURL(%s) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := PublicIDFromURL("https://example.com/asset.jpg"); err == nil {
		t.Fatal("accepted a non-delivery url")
	}
}
