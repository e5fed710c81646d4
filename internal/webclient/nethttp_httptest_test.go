package webclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/webclient"
	"github.com/raysh454/coigate/internal/worker"
)

func newClient(t *testing.T, ts *httptest.Server) *webclient.NetHTTPClient {
	t.Helper()
	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ─── Do: buffered round-trip ───────────────────────────────────────────

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "hello")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "response body")
	}))
	defer ts.Close()

	client := newClient(t, ts)
	resp, err := client.Do(context.Background(), &webclient.Request{Method: "GET", URL: ts.URL + "/test"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if resp.StatusCode != 200 || resp.StatusText != "OK" {
		t.Errorf("expected 200 OK, got %d %q", resp.StatusCode, resp.StatusText)
	}
	if string(resp.Body) != "response body" {
		t.Errorf("expected 'response body', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Custom") != "hello" {
		t.Errorf("expected X-Custom header 'hello', got %q", resp.Headers.Get("X-Custom"))
	}
}

func TestNetHTTPClient_Do_NilRequest(t *testing.T) {
	t.Parallel()
	client, _ := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)
	if _, err := client.Do(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil request")
	}
}

// ─── Fetch: streaming worker.Fetcher ───────────────────────────────────

func TestNetHTTPClient_Fetch_StreamsAndForwards(t *testing.T) {
	t.Parallel()
	var gotMethod, gotBody, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	defer ts.Close()

	client := newClient(t, ts)
	res, err := client.Fetch(context.Background(), &worker.Request{
		Method: "PUT",
		URL:    ts.URL + "/pot",
		Header: http.Header{"Authorization": {"Bearer t"}},
		Body:   []byte("tea"),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Body.Close()

	if gotMethod != "PUT" || gotBody != "tea" || gotAuth != "Bearer t" {
		t.Errorf("request not forwarded as-is: %s %q %q", gotMethod, gotBody, gotAuth)
	}
	if res.Status != http.StatusTeapot || res.StatusText != "I'm a teapot" {
		t.Errorf("expected 418 I'm a teapot, got %d %q", res.Status, res.StatusText)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "short and stout" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestNetHTTPClient_Fetch_DoesNotFollowRedirects(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		_, _ = io.WriteString(w, "new")
	}))
	defer ts.Close()

	client := newClient(t, ts)
	res, err := client.Fetch(context.Background(), &worker.Request{URL: ts.URL + "/old"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Body.Close()
	if res.Status != http.StatusFound {
		t.Errorf("expected 302 handed back, got %d", res.Status)
	}
	if res.Header.Get("Location") != "/new" {
		t.Errorf("expected Location /new, got %q", res.Header.Get("Location"))
	}
}

func TestNetHTTPClient_Fetch_NetworkErrorIsRejection(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{Timeout: time.Second}, nil, nil)
	if _, err := client.Fetch(context.Background(), &worker.Request{URL: url}); err == nil {
		t.Fatal("expected error against a closed server")
	}
}

func TestNetHTTPClient_Fetch_BodyOutlivesTimeout(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first-half|")
		w.(http.Flusher).Flush()
		time.Sleep(400 * time.Millisecond)
		_, _ = io.WriteString(w, "second-half")
	}))
	defer ts.Close()

	client, _ := webclient.NewNetHTTPClient(webclient.Config{Timeout: 150 * time.Millisecond}, nil, nil)
	res, err := client.Fetch(context.Background(), &worker.Request{Method: "GET", URL: ts.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "first-half|second-half" {
		t.Errorf("expected full body, got %q", body)
	}
}

func TestNetHTTPClient_Fetch_HeaderTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	client, _ := webclient.NewNetHTTPClient(webclient.Config{Timeout: 100 * time.Millisecond}, nil, nil)
	_, err := client.Fetch(context.Background(), &worker.Request{Method: "GET", URL: ts.URL})
	if !errors.Is(err, webclient.ErrHeaderTimeout) {
		t.Errorf("expected ErrHeaderTimeout, got %v", err)
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"200 OK":            "OK",
		"404 Not Found":     "Not Found",
		"299 Custom Reason": "Custom Reason",
		"204":               "",
		"weird":             "weird",
		"abc def":           "abc def",
	}
	for in, want := range cases {
		if got := webclient.StatusText(in); got != want {
			t.Errorf("StatusText(%q) = %q, want %q", in, got, want)
		}
	}
}
