// Package proxy serves an upstream origin through the isolation worker. Each
// incoming request becomes a fetch event; requests the worker declines take
// the plain forwarding path.
package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/worker"
)

// Hop-by-hop headers are meaningful only for a single connection.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Handler forwards requests to Upstream.
type Handler struct {
	upstream *url.URL
	reg      *worker.Registration
	fetch    worker.Fetcher
	logger   logging.Logger
	maxBody  int64
}

// Config wires a Handler.
type Config struct {
	// Upstream is the origin every request path is resolved against.
	Upstream string

	// MaxRequestBody caps buffered request bodies. Zero means 10 MiB.
	MaxRequestBody int64
}

// NewHandler builds a Handler. Requests are intercepted by whatever worker
// reg currently has active; before activation they pass straight through.
func NewHandler(cfg Config, reg *worker.Registration, fetch worker.Fetcher, logger logging.Logger) (*Handler, error) {
	u, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", cfg.Upstream, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", cfg.Upstream)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	maxBody := cfg.MaxRequestBody
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &Handler{
		upstream: u,
		reg:      reg,
		fetch:    fetch,
		logger:   logger.With(logging.Field{Key: "component", Value: "proxy"}),
		maxBody:  maxBody,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.toWorkerRequest(r)
	if err != nil {
		h.logger.Warn("reading request", logging.Field{Key: "error", Value: err.Error()})
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	ctx := r.Context()

	var res *worker.Response
	intercepted := false
	if wk := h.reg.Controller(); wk != nil {
		ev := worker.NewFetchEvent(req)
		wk.OnFetch(ev)
		if ev.Responded() {
			intercepted = true
			res, err = ev.Response(ctx)
		}
	}
	if !intercepted {
		res, err = h.fetch.Fetch(ctx, req)
	}

	if err != nil {
		h.logger.Warn("upstream fetch failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "intercepted", Value: intercepted},
			logging.Field{Key: "error", Value: err.Error()})
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if res.Body != nil {
		defer res.Body.Close()
	}

	h.logger.Debug("forwarded",
		logging.Field{Key: "method", Value: req.Method},
		logging.Field{Key: "url", Value: req.URL},
		logging.Field{Key: "status", Value: res.Status},
		logging.Field{Key: "intercepted", Value: intercepted})

	h.writeResponse(w, req, res)
}

// toWorkerRequest maps r onto the upstream and derives cache and mode from
// the Cache-Control and Sec-Fetch-Mode request headers.
func (h *Handler) toWorkerRequest(r *http.Request) (*worker.Request, error) {
	target := *h.upstream
	target.Path = singleJoiningSlash(h.upstream.Path, r.URL.Path)
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(b)) > h.maxBody {
			return nil, fmt.Errorf("request body exceeds %d bytes", h.maxBody)
		}
		body = b
	}

	hdr := r.Header.Clone()
	removeHopHeaders(hdr)

	return &worker.Request{
		Method: r.Method,
		URL:    target.String(),
		Header: hdr,
		Body:   body,
		Cache:  RequestCache(r.Header),
		Mode:   RequestMode(r.Header),
	}, nil
}

// RequestCache reads the cache directive a client expressed in Cache-Control.
func RequestCache(h http.Header) worker.RequestCache {
	cc := h.Values("Cache-Control")
	switch {
	case httpguts.HeaderValuesContainsToken(cc, "only-if-cached"):
		return worker.CacheOnlyIfCached
	case httpguts.HeaderValuesContainsToken(cc, "no-store"):
		return worker.CacheNoStore
	case httpguts.HeaderValuesContainsToken(cc, "no-cache"):
		return worker.CacheNoCache
	default:
		return worker.CacheDefault
	}
}

// RequestMode reads Sec-Fetch-Mode. Clients that do not send it are treated
// as no-cors, the mode of a plain subresource load.
func RequestMode(h http.Header) worker.RequestMode {
	switch m := worker.RequestMode(strings.ToLower(strings.TrimSpace(h.Get("Sec-Fetch-Mode")))); m {
	case worker.ModeNavigate, worker.ModeSameOrigin, worker.ModeCORS, worker.ModeNoCORS:
		return m
	default:
		return worker.ModeNoCORS
	}
}

// writeResponse streams res to w. A body that fails partway aborts the
// connection so the client never mistakes a short body for a complete one.
func (h *Handler) writeResponse(w http.ResponseWriter, req *worker.Request, res *worker.Response) {
	dst := w.Header()
	for k, vs := range res.Header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	removeHopHeaders(dst)
	w.WriteHeader(res.Status)
	if res.Body == nil {
		return
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		h.logger.Warn("streaming upstream body",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		panic(http.ErrAbortHandler)
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
