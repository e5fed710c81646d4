package server_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/raysh454/coigate/internal/records"
	"github.com/raysh454/coigate/internal/server"
	"github.com/raysh454/coigate/internal/testutil"
)

func newTestServer(t *testing.T, cfg server.Config) (*server.Server, *records.Hub) {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "records.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	hub := records.NewHub(8)
	store, err := records.NewStore(db, hub)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	uploadDir := filepath.Join(dir, "uploads")
	up, err := records.NewUploads(uploadDir)
	if err != nil {
		t.Fatalf("NewUploads: %v", err)
	}

	return server.NewServer(cfg, records.NewService(store, up), hub, uploadDir, &testutil.DummyLogger{}), hub
}

func doJSON(t *testing.T, s http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

// ─── Health ────────────────────────────────────────────────────────────

func TestServer_RootAndHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	if rec := doJSON(t, s, "GET", "/", "", nil); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Errorf("GET / = %d %q", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "GET", "/healthz", "", nil); rec.Code != 200 || rec.Body.String() != "OK" {
		t.Errorf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
}

// ─── Submit ────────────────────────────────────────────────────────────

func TestServer_SubmitJSON(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	rec := doJSON(t, s, "POST", "/requests", `{"record":{"id":"abc","title":"t"},"image_b64":"aGVsbG8="}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp server.SubmitResponse
	decodeJSON(t, rec, &resp)
	if !resp.OK || resp.ID != "abc" || !strings.HasPrefix(resp.Saved, "uploads/") {
		t.Errorf("unexpected response %+v", resp)
	}

	// The saved image is served back from the uploads route.
	img := doJSON(t, s, "GET", "/"+resp.Saved, "", nil)
	if img.Code != 200 || img.Body.String() != "hello" {
		t.Errorf("GET %s = %d %q", resp.Saved, img.Code, img.Body.String())
	}

	list := doJSON(t, s, "GET", "/requests", "", nil)
	var entries []records.Entry
	decodeJSON(t, list, &entries)
	if len(entries) != 1 || entries[0].Record["title"] != "t" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestServer_SubmitWithoutIDReturnsNull(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	rec := doJSON(t, s, "POST", "/requests", `{"record":{}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"id":null`) {
		t.Errorf("expected null id, got %s", rec.Body.String())
	}
}

func TestServer_SubmitErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	cases := []struct {
		name, body string
		wantErr    string
	}{
		{"malformed json", `{"record":`, "invalid_json"},
		{"bad base64", `{"record":{},"image_b64":"%%%"}`, "invalid_base64"},
	}
	for _, tc := range cases {
		rec := doJSON(t, s, "POST", "/requests", tc.body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
			continue
		}
		var resp server.FailureResponse
		decodeJSON(t, rec, &resp)
		if resp.OK || !strings.HasPrefix(resp.Error, tc.wantErr) {
			t.Errorf("%s: unexpected failure %+v", tc.name, resp)
		}
	}
}

func TestServer_SubmitMultipart(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("record_json", `{"id":7}`)
	fw, _ := mw.CreateFormFile("image", "shot.png")
	_, _ = fw.Write([]byte("png-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/requests-mp", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp server.MultipartResponse
	decodeJSON(t, rec, &resp)
	if !resp.OK || !strings.HasPrefix(resp.Saved, "uploads/") {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestServer_SubmitMultipartWithoutImage(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("record_json", `{"id":"no-image"}`)
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/requests-mp", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp server.MultipartResponse
	decodeJSON(t, rec, &resp)
	if resp.Saved != "" {
		t.Errorf("expected no saved image, got %q", resp.Saved)
	}
}

func TestServer_SubmitMultipartMalformed(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	body := "--b\r\nContent-Disposition: form-data; name=\"image\"; filename=\"x.png\"\r\n\r\ntruncated"
	req := httptest.NewRequest("POST", "/requests-mp", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	list := doJSON(t, s, "GET", "/requests", "", nil)
	var entries []records.Entry
	decodeJSON(t, list, &entries)
	if len(entries) != 0 {
		t.Errorf("expected nothing stored, got %d", len(entries))
	}
}

// ─── Auth & limits ─────────────────────────────────────────────────────

func TestServer_AuthToken(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{AuthToken: "sekrit"})

	rec := doJSON(t, s, "POST", "/requests", `{"record":{}}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	var resp server.FailureResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != "unauthorized" {
		t.Errorf("expected unauthorized, got %q", resp.Error)
	}

	rec = doJSON(t, s, "POST", "/requests", `{"record":{}}`, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec = doJSON(t, s, "POST", "/requests", `{"record":{}}`, map[string]string{"Authorization": "Bearer sekrit"})
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 with token, got %d", rec.Code)
	}

	if rec := doJSON(t, s, "GET", "/healthz", "", nil); rec.Code != 200 {
		t.Errorf("health must not require auth, got %d", rec.Code)
	}
}

func TestServer_BodyLimit(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{MaxContentLength: 16})

	rec := doJSON(t, s, "POST", "/requests", `{"record":{"padding":"xxxxxxxxxxxxxxxx"}}`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

// ─── CORS & HTTPS ──────────────────────────────────────────────────────

func TestServer_CORS(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{AllowOrigins: []string{"https://app.example"}})

	rec := doJSON(t, s, "GET", "/", "", map[string]string{"Origin": "https://app.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}

	rec = doJSON(t, s, "GET", "/", "", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unknown origin, got %q", got)
	}

	rec = doJSON(t, s, "OPTIONS", "/requests", "", map[string]string{
		"Origin":                        "https://app.example",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected preflight 204, got %d", rec.Code)
	}
}

func TestServer_ForceHTTPS(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{ForceHTTPS: true})

	rec := doJSON(t, s, "GET", "/requests?limit=1", "", nil)
	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("expected 308, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/requests?limit=1" {
		t.Errorf("unexpected Location %q", loc)
	}

	rec = doJSON(t, s, "GET", "/", "", map[string]string{"X-Forwarded-Proto": "https"})
	if rec.Code != 200 {
		t.Errorf("expected 200 behind TLS proxy, got %d", rec.Code)
	}
}

// ─── WebSocket feed ────────────────────────────────────────────────────

func TestServer_RecordsWebSocket(t *testing.T) {
	t.Parallel()
	s, hub := newTestServer(t, server.Config{})
	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/requests"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/requests", "application/json", strings.NewReader(`{"record":{"id":"live"}}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got records.Entry
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ClientID != "live" {
		t.Errorf("expected live record, got %+v", got)
	}
}

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, server.Config{})

	rec := doJSON(t, s, "GET", "/swagger/doc.json", "", nil)
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "/requests-mp") {
		t.Errorf("expected swagger doc, got %d", rec.Code)
	}
}
