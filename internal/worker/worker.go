// Package worker implements the header-injecting proxy worker: a fetch
// interceptor that marks every response it forwards as cross-origin isolated,
// plus the install/activate hooks that let it take control immediately.
package worker

import (
	"context"
	"net/http"
)

const (
	HeaderCOOP = "Cross-Origin-Opener-Policy"
	HeaderCOEP = "Cross-Origin-Embedder-Policy"

	ValueCOOP = "same-origin"
	ValueCOEP = "require-corp"
)

// Scope is the host surface the lifecycle hooks drive.
type Scope interface {
	// SkipWaiting activates the installed version without waiting for
	// clients of the previous version to go away.
	SkipWaiting()

	// ClaimClients makes this worker the controller of every in-scope client.
	ClaimClients(ctx context.Context) error
}

// Worker holds no state between events; fetch and scope are collaborators.
type Worker struct {
	scope Scope
	fetch Fetcher
}

// New returns a worker that fetches through f and drives scope s.
func New(s Scope, f Fetcher) *Worker {
	return &Worker{scope: s, fetch: f}
}

// OnInstall forces immediate activation.
func (w *Worker) OnInstall(_ *InstallEvent) {
	w.scope.SkipWaiting()
}

// OnActivate holds activation open until clients are claimed.
func (w *Worker) OnActivate(ev *ActivateEvent) {
	ev.WaitUntil(w.scope.ClaimClients)
}

// OnFetch intercepts one request.
//
// Cross-origin only-if-cached requests are left alone; taking them over would
// fail. Everything else is fetched and returned with COOP and COEP set. If
// that fetch fails it is retried once as-is and the retry's result is
// returned untouched.
func (w *Worker) OnFetch(ev *FetchEvent) {
	req := ev.Request
	if req.Cache == CacheOnlyIfCached && req.Mode != ModeSameOrigin {
		return
	}

	_ = ev.RespondWith(func(ctx context.Context) (*Response, error) {
		res, err := w.fetch.Fetch(ctx, req)
		if err != nil {
			return w.fetch.Fetch(ctx, req)
		}
		return &Response{
			Status:     res.Status,
			StatusText: res.StatusText,
			Header:     InjectIsolationHeaders(res.Header),
			Body:       res.Body,
		}, nil
	})
}

// InjectIsolationHeaders returns a copy of h with COOP and COEP set,
// replacing any values h already carried.
func InjectIsolationHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header, 2)
	}
	out.Set(HeaderCOOP, ValueCOOP)
	out.Set(HeaderCOEP, ValueCOEP)
	return out
}
