package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/api/handlers"
	"geoattend/internal/attendance"
	"geoattend/internal/clock"
	"geoattend/internal/face"
	"geoattend/internal/geofence"
	"geoattend/internal/imagestore"
	"geoattend/internal/liveness"
	"geoattend/internal/queue"
)

var pkt = time.FixedZone("PKT", 5*60*60)

// stubDetector: "F" is a face without descriptor, "N" no face, "C:<d>" a
// face d away from the origin descriptor, anything else (photos) the origin.
type stubDetector struct{}

func (stubDetector) Detect(_ context.Context, frame []byte) (face.Detection, error) {
	s := string(frame)
	switch {
	case s == "N":
		return face.Detection{}, nil
	case s == "F":
		return face.Detection{Present: true, Confidence: 0.95}, nil
	case strings.HasPrefix(s, "C:"):
		d, err := strconv.ParseFloat(s[2:], 64)
		if err != nil {
			return face.Detection{}, err
		}
		return face.Detection{Present: true, Confidence: 0.95, Descriptor: descriptorAt(d)}, nil
	}
	return face.Detection{Present: true, Confidence: 0.95, Descriptor: descriptorAt(0)}, nil
}

func descriptorAt(d float64) face.Descriptor {
	v := make(face.Descriptor, 128)
	v[0] = float32(d)
	return v
}

type testEnv struct {
	router   *gin.Engine
	accounts *attendance.AccountService
	store    *attendance.MemoryStore
	queue    *queue.InMemory
}

func newTestEnv(t *testing.T, at time.Time, checks map[string]handlers.Check) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := attendance.NewMemoryStore()
	q := queue.NewInMemory(16)
	verifier := face.NewVerifier(stubDetector{}, face.DefaultThresholds)
	accounts := attendance.NewAccountService(st, imagestore.New(imagestore.NewMemory(), 0), queue.NewPublisher(q), verifier)
	shift := attendance.DefaultShift(pkt)
	cfg := attendance.DefaultGateConfig
	cfg.LocationRetry = geofence.Retry{Attempts: 3, Timeout: time.Second}
	gate := attendance.NewGate(st, clock.NewChain(0, 0, clock.Fixed{T: at}), verifier, liveness.New(stubDetector{}, 30, 0), shift, cfg)

	r := NewRouter(RouterConfig{
		Accounts: accounts,
		Leaves:   attendance.NewLeaveService(st, st, shift),
		Gate:     gate,
		Records:  st,
		Tokens:   handlers.TokenConfig{Issuer: "geoattend", SigningKey: "test-key", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Checks:   checks,
	})
	return &testEnv{router: r, accounts: accounts, store: st, queue: q}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (e *testEnv) login(t *testing.T, login, password string) string {
	t.Helper()
	w, out := e.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"login": login, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s = %d %s", login, w.Code, w.Body)
	}
	return out["tokens"].(map[string]any)["access_token"].(string)
}

func photoB64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func burst(pattern string) []string {
	out := make([]string, 0, len(pattern))
	for _, r := range pattern {
		out = append(out, b64(string(r)))
	}
	return out
}

func blink() []string {
	return burst(strings.Repeat("F", 10) + strings.Repeat("N", 5) + strings.Repeat("F", 15))
}

const homeLat, homeLng = 24.8607, 67.0011

func registerBody(t *testing.T, email, phone, branch string) gin.H {
	return gin.H{
		"name":      "Hamza",
		"email":     email,
		"phone":     phone,
		"password":  "secret1",
		"branch":    branch,
		"role":      "salesman",
		"latitude":  homeLat,
		"longitude": homeLng,
		"accuracy":  20,
		"photo":     photoB64(t),
	}
}

// onboard registers, activates and enrolls an employee and returns its id.
func (e *testEnv) onboard(t *testing.T, adminToken, email, phone, branch string) string {
	t.Helper()
	w, out := e.do(t, http.MethodPost, "/v1/auth/register", "", registerBody(t, email, phone, branch))
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body)
	}
	emp := out["employee"].(map[string]any)
	id := emp["emp_id"].(string)
	if emp["status"] != "inactive" {
		t.Fatalf("new account status = %v", emp["status"])
	}

	if w, _ := e.do(t, http.MethodPost, "/v1/admin/employees/"+id+"/activate", adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("activate = %d %s", w.Code, w.Body)
	}
	state, err := e.accounts.Enroll(context.Background(), id)
	if err != nil || state != attendance.EnrollEnrolled {
		t.Fatalf("enroll = %s, %v", state, err)
	}
	return id
}

func TestAttendanceFlow(t *testing.T) {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, pkt)
	env := newTestEnv(t, at, nil)
	ctx := context.Background()
	if _, err := env.accounts.EnsureAdmin(ctx, "Admin", "admin@example.com", "adminpass"); err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")

	// Login is refused until an admin activates the account.
	w, _ := env.do(t, http.MethodPost, "/v1/auth/register", "", registerBody(t, "early@example.com", "03000000001", "north"))
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body)
	}
	w, out := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"login": "early@example.com", "password": "secret1"})
	if w.Code != http.StatusForbidden || out["error"] != "account_inactive" {
		t.Fatalf("inactive login = %d %v", w.Code, out)
	}

	id := env.onboard(t, adminToken, "hamza@example.com", "03001112233", "north")
	token := env.login(t, "03001112233", "secret1")

	near := gin.H{"latitude": homeLat + 0.0002, "longitude": homeLng, "accuracy": 15}
	attempt := gin.H{"fixes": []gin.H{near}, "frames": blink(), "capture": b64("C:0.2")}

	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkin", token, attempt)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkin = %d %s", w.Code, w.Body)
	}
	rec := out["record"].(map[string]any)
	if rec["status"] != "on_time" || rec["date"] != "2024-03-04" || rec["emp_id"] != id {
		t.Fatalf("record = %v", rec)
	}
	if out["severity"] != "success" {
		t.Fatalf("severity = %v", out["severity"])
	}

	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkin", token, attempt)
	if w.Code != http.StatusConflict || out["error"] != "duplicate_attempt" {
		t.Fatalf("duplicate = %d %v", w.Code, out)
	}

	far := gin.H{"latitude": homeLat + 0.01, "longitude": homeLng, "accuracy": 15}
	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkout", token, gin.H{"fixes": []gin.H{far}, "frames": blink()})
	if w.Code != http.StatusUnprocessableEntity || out["error"] != "geofence_violation" || out["retryable"] != false {
		t.Fatalf("outside fence = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkout", token, gin.H{"fixes": []gin.H{near}, "frames": burst(strings.Repeat("F", 30))})
	if w.Code != http.StatusUnprocessableEntity || out["error"] != "liveness_failed" || out["retryable"] != true {
		t.Fatalf("no blink = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodPost, "/v1/attendance/lunch", token, attempt)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/v1/me/attendance", token, nil)
	if w.Code != http.StatusOK || len(out["records"].([]any)) != 1 {
		t.Fatalf("history = %d %v", w.Code, out)
	}
	w, out = env.do(t, http.MethodGet, "/v1/me", token, nil)
	counters := out["employee"].(map[string]any)["counters"].(map[string]any)
	if w.Code != http.StatusOK || counters["total_checkins"] != float64(1) {
		t.Fatalf("me = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/v1/admin/reports/summary?from=2024-03-04&to=2024-03-04", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary = %d %s", w.Code, w.Body)
	}
	overall := out["overall"].(map[string]any)
	if overall["present"] != float64(1) || overall["attendance_pct"] != "100" {
		t.Fatalf("overall = %v", overall)
	}

	w, out = env.do(t, http.MethodGet, "/v1/admin/reports/detail?from=2024-03-04&to=2024-03-05", adminToken, nil)
	if w.Code != http.StatusOK || len(out["employees"].([]any)) != 1 {
		t.Fatalf("detail = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/v1/admin/reports/summary?from=2024-03-05&to=2024-03-04", adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reversed range = %d %v", w.Code, out)
	}

	// The enrollment job for each registration was queued.
	if n := len(queueDrain(env.queue)); n != 2 {
		t.Fatalf("queued jobs = %d, want 2", n)
	}
}

func queueDrain(q *queue.InMemory) []queue.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ch, _ := q.Consume(ctx)
	var msgs []queue.Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestLeaveWorkflow(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, pkt)
	env := newTestEnv(t, at, nil)
	if _, err := env.accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass"); err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")
	env.onboard(t, adminToken, "leave@example.com", "03004445566", "north")
	token := env.login(t, "leave@example.com", "secret1")

	w, out := env.do(t, http.MethodPost, "/v1/leaves", token, gin.H{"date": "2024-03-05", "leave_type": "sick", "reason": "fever"})
	if w.Code != http.StatusCreated {
		t.Fatalf("apply = %d %s", w.Code, w.Body)
	}
	leaveID := out["leave"].(map[string]any)["id"].(string)

	w, _ = env.do(t, http.MethodPost, "/v1/leaves", token, gin.H{"date": "05/03/2024", "leave_type": "sick"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date = %d", w.Code)
	}

	w, out = env.do(t, http.MethodPost, "/v1/leaves", token, gin.H{"date": "2024-03-05", "leave_type": "casual"})
	if w.Code != http.StatusConflict || out["error"] != "already_applied" {
		t.Fatalf("second application = %d %v", w.Code, out)
	}

	// Employees cannot decide leaves.
	if w, _ := env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/approve", token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("employee approve = %d", w.Code)
	}

	w, out = env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/approve", adminToken, nil)
	if w.Code != http.StatusOK || out["leave"].(map[string]any)["status"] != "approved" {
		t.Fatalf("approve = %d %v", w.Code, out)
	}
	w, out = env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/reject", adminToken, gin.H{"reason": "late"})
	if w.Code != http.StatusConflict || out["error"] != "already_decided" {
		t.Fatalf("second decision = %d %v", w.Code, out)
	}
	if w, _ := env.do(t, http.MethodPost, "/v1/admin/leaves/missing/approve", adminToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing leave = %d", w.Code)
	}

	// A check-in on an approved leave day is refused.
	near := gin.H{"latitude": homeLat, "longitude": homeLng, "accuracy": 10}
	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkin", token, gin.H{"fixes": []gin.H{near}, "frames": blink(), "capture": b64("C:0.2")})
	if w.Code != http.StatusConflict || out["error"] != "on_leave" {
		t.Fatalf("checkin on leave = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/v1/me/leaves", token, nil)
	if w.Code != http.StatusOK || len(out["leaves"].([]any)) != 1 {
		t.Fatalf("my leaves = %d %v", w.Code, out)
	}
	w, out = env.do(t, http.MethodGet, "/v1/admin/leaves?status=approved", adminToken, nil)
	if w.Code != http.StatusOK || len(out["leaves"].([]any)) != 1 {
		t.Fatalf("admin leaves = %d %v", w.Code, out)
	}
}

func TestAuthAndValidation(t *testing.T) {
	env := newTestEnv(t, time.Now(), nil)

	if w, _ := env.do(t, http.MethodGet, "/v1/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodGet, "/v1/me", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", w.Code)
	}

	body := registerBody(t, "val@example.com", "03007778899", "north")
	body["latitude"] = 123.0
	w, out := env.do(t, http.MethodPost, "/v1/auth/register", "", body)
	if w.Code != http.StatusBadRequest || out["error"] != "validation_failed" {
		t.Fatalf("bad latitude = %d %v", w.Code, out)
	}
	if fields := out["fields"].(map[string]any); fields["Latitude"] != "latitude" {
		t.Fatalf("fields = %v", fields)
	}

	body = registerBody(t, "coarse@example.com", "03007778800", "north")
	body["accuracy"] = 80
	if w, _ := env.do(t, http.MethodPost, "/v1/auth/register", "", body); w.Code != http.StatusBadRequest {
		t.Fatalf("coarse home fix = %d", w.Code)
	}

	body = registerBody(t, "dup@example.com", "03007778811", "north")
	if w, _ := env.do(t, http.MethodPost, "/v1/auth/register", "", body); w.Code != http.StatusCreated {
		t.Fatalf("register = %d", w.Code)
	}
	body["phone"] = "03007778812"
	if w, out := env.do(t, http.MethodPost, "/v1/auth/register", "", body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate email = %d %v", w.Code, out)
	}

	if w, out := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"login": "dup@example.com", "password": "wrong-pass"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password = %d %v", w.Code, out)
	}
	if w, _ := env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": "nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad refresh = %d", w.Code)
	}
}

func TestRefreshAndRoles(t *testing.T) {
	env := newTestEnv(t, time.Now(), nil)
	if _, err := env.accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass"); err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")
	id := env.onboard(t, adminToken, "role@example.com", "03001239876", "south")

	w, out := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"login": "role@example.com", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d", w.Code)
	}
	tokens := out["tokens"].(map[string]any)
	access, refresh := tokens["access_token"].(string), tokens["refresh_token"].(string)

	if w, _ := env.do(t, http.MethodGet, "/v1/admin/employees", access, nil); w.Code != http.StatusForbidden {
		t.Fatalf("salesman on admin route = %d", w.Code)
	}
	// A refresh token is not an access token.
	if w, _ := env.do(t, http.MethodGet, "/v1/me", refresh, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh as access = %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh}); w.Code != http.StatusOK {
		t.Fatalf("refresh = %d", w.Code)
	}

	if w, _ := env.do(t, http.MethodPost, "/v1/admin/employees/"+id+"/deactivate", adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("deactivate = %d", w.Code)
	}
	if w, out := env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh}); w.Code != http.StatusForbidden {
		t.Fatalf("refresh after deactivation = %d %v", w.Code, out)
	}

	w, out = env.do(t, http.MethodGet, "/v1/admin/employees?status=inactive", adminToken, nil)
	if w.Code != http.StatusOK || len(out["employees"].([]any)) != 1 {
		t.Fatalf("inactive employees = %d %v", w.Code, out)
	}
	if w, _ := env.do(t, http.MethodPost, "/v1/admin/employees/EMPNOPE/activate", adminToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("activate missing = %d", w.Code)
	}
}

func TestLocationAccuracyRequired(t *testing.T) {
	env := newTestEnv(t, time.Date(2024, 3, 4, 10, 0, 0, 0, pkt), nil)
	if _, err := env.accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass"); err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")

	body := registerBody(t, "noacc@example.com", "03005550001", "north")
	delete(body, "accuracy")
	w, out := env.do(t, http.MethodPost, "/v1/auth/register", "", body)
	if w.Code != http.StatusBadRequest || out["error"] != "validation_failed" {
		t.Fatalf("register without accuracy = %d %v", w.Code, out)
	}
	if fields := out["fields"].(map[string]any); fields["Accuracy"] != "required" {
		t.Fatalf("fields = %v", fields)
	}

	env.onboard(t, adminToken, "acc@example.com", "03005550002", "north")
	token := env.login(t, "acc@example.com", "secret1")
	fix := gin.H{"latitude": homeLat, "longitude": homeLng}
	w, out = env.do(t, http.MethodPost, "/v1/attendance/checkin", token, gin.H{"fixes": []gin.H{fix}, "frames": blink(), "capture": b64("C:0.2")})
	if w.Code != http.StatusBadRequest || out["error"] != "validation_failed" {
		t.Fatalf("checkin without accuracy = %d %v", w.Code, out)
	}
	recs, _ := env.store.ListRecords(context.Background(), attendance.RecordFilter{})
	if len(recs) != 0 {
		t.Fatalf("records = %d", len(recs))
	}

	// An exact fix reports zero accuracy and is accepted.
	fix["accuracy"] = 0
	w, _ = env.do(t, http.MethodPost, "/v1/attendance/checkin", token, gin.H{"fixes": []gin.H{fix}, "frames": blink(), "capture": b64("C:0.2")})
	if w.Code != http.StatusCreated {
		t.Fatalf("checkin with zero accuracy = %d %s", w.Code, w.Body)
	}
}

func TestAdminCannotDeactivateSelf(t *testing.T) {
	env := newTestEnv(t, time.Now(), nil)
	admin, err := env.accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass")
	if err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")

	w, out := env.do(t, http.MethodPost, "/v1/admin/employees/"+admin.EmpID+"/deactivate", adminToken, nil)
	if w.Code != http.StatusConflict || out["error"] != "self_deactivation" {
		t.Fatalf("self deactivation = %d %v", w.Code, out)
	}
	// The session still works.
	if w, _ := env.do(t, http.MethodGet, "/v1/admin/employees", adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("admin after refused deactivation = %d", w.Code)
	}
}

func TestManagerCannotDecideOwnLeave(t *testing.T) {
	env := newTestEnv(t, time.Date(2024, 3, 5, 10, 0, 0, 0, pkt), nil)
	if _, err := env.accounts.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass"); err != nil {
		t.Fatal(err)
	}
	adminToken := env.login(t, "admin@example.com", "adminpass")

	managerToken := func(email, phone string) string {
		body := registerBody(t, email, phone, "north")
		body["role"] = "manager"
		w, out := env.do(t, http.MethodPost, "/v1/auth/register", "", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("register manager = %d %s", w.Code, w.Body)
		}
		id := out["employee"].(map[string]any)["emp_id"].(string)
		if w, _ := env.do(t, http.MethodPost, "/v1/admin/employees/"+id+"/activate", adminToken, nil); w.Code != http.StatusOK {
			t.Fatalf("activate = %d", w.Code)
		}
		return env.login(t, email, "secret1")
	}
	self := managerToken("mgr1@example.com", "03006660001")
	peer := managerToken("mgr2@example.com", "03006660002")

	w, out := env.do(t, http.MethodPost, "/v1/leaves", self, gin.H{"date": "2024-03-06", "leave_type": "sick"})
	if w.Code != http.StatusCreated {
		t.Fatalf("apply = %d %s", w.Code, w.Body)
	}
	leaveID := out["leave"].(map[string]any)["id"].(string)

	w, out = env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/approve", self, nil)
	if w.Code != http.StatusForbidden || out["error"] != "forbidden" {
		t.Fatalf("own approval = %d %v", w.Code, out)
	}
	w, _ = env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/reject", self, gin.H{"reason": "no"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("own rejection = %d", w.Code)
	}
	w, out = env.do(t, http.MethodPost, "/v1/admin/leaves/"+leaveID+"/approve", peer, nil)
	if w.Code != http.StatusOK || out["leave"].(map[string]any)["status"] != "approved" {
		t.Fatalf("peer approval = %d %v", w.Code, out)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, time.Now(), map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	w, out := env.do(t, http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", w.Code)
	}
	checks := out["checks"].(map[string]any)
	if checks["postgres"] != "ok" || checks["redis"] != "connection refused" {
		t.Fatalf("checks = %v", checks)
	}
	if w, _ := env.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
}
