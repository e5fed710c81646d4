package worker

import (
	"context"
	"io"
	"net/http"
)

// RequestCache is a request's cache directive.
type RequestCache string

const (
	CacheDefault      RequestCache = "default"
	CacheNoStore      RequestCache = "no-store"
	CacheReload       RequestCache = "reload"
	CacheNoCache      RequestCache = "no-cache"
	CacheForceCache   RequestCache = "force-cache"
	CacheOnlyIfCached RequestCache = "only-if-cached"
)

// RequestMode is a request's mode.
type RequestMode string

const (
	ModeNavigate   RequestMode = "navigate"
	ModeSameOrigin RequestMode = "same-origin"
	ModeNoCORS     RequestMode = "no-cors"
	ModeCORS       RequestMode = "cors"
)

// Request is an intercepted outgoing request. The worker treats it as
// read-only and only inspects Cache and Mode.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	Cache RequestCache
	Mode  RequestMode
}

// Response is the result of a fetch. Body is a stream owned by whoever ends
// up holding the Response.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// Fetcher performs the platform fetch. Any returned error means the fetch
// was rejected.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
