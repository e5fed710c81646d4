// Package testutil provides shared test doubles for use across package tests.
package testutil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/worker"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Fetcher ───────────────────────────────────────────────────────────

// DummyFetcher implements worker.Fetcher.
// By default it returns body "ok:<url>" with status 200 and the headers in
// Header. Set FailURLs[url] to a count to reject that many fetches of url.
type DummyFetcher struct {
	Header   http.Header
	FailURLs map[string]int

	mu       sync.Mutex
	Requests []*worker.Request
}

func (d *DummyFetcher) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	if d.FailURLs[req.URL] > 0 {
		d.FailURLs[req.URL]--
		d.mu.Unlock()
		return nil, errors.New("dummy network failure")
	}
	d.mu.Unlock()

	return &worker.Response{
		Status:     http.StatusOK,
		StatusText: "OK",
		Header:     d.Header.Clone(),
		Body:       io.NopCloser(strings.NewReader("ok:" + req.URL)),
	}, nil
}

// Calls returns how many fetches were attempted.
func (d *DummyFetcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}
