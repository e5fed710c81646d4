package webclient

import (
	"context"
	"net/http"
	"time"
)

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is a fully buffered response.
type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	StatusText string
	FetchedAt  time.Time
}
