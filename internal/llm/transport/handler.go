package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
)

// Router selects the appropriate provider adapter for request routing.
// Implemented by the providers package.
type Router interface {
	Pick(provider string) (ProviderAdapter, error)
}

// ProviderAdapter abstracts provider-specific HTTP communication patterns.
// Each provider implements this interface to handle its unique API format,
// authentication scheme, and response structure.
type ProviderAdapter interface {
	// Build constructs a provider-specific HTTP request from a normalized
	// request, setting authentication headers, endpoints, and bodies.
	Build(ctx context.Context, req *Request) (*http.Request, error)

	// Parse extracts normalized data from the provider's HTTP response.
	// Error responses are mapped into the llm/errors taxonomy.
	Parse(httpResp *http.Response) (*Response, error)

	// Name returns the canonical provider identifier.
	Name() string
}

// Handler processes completion requests through a composable middleware
// pipeline. Core abstraction enabling cross-cutting concerns like caching,
// rate limiting, circuit breaking, and observability.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
// Applied in reverse order with the last middleware closest to the core.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided, first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler creates the core handler that performs the actual HTTP
// round trip against the adapter selected by the router.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	return &httpHandler{client: client, router: router}
}

type httpHandler struct {
	client *http.Client
	router Router
}

// Handle implements Handler by making an HTTP request to the provider.
// The per-attempt deadline travels on the request context so adapters and
// the HTTP client both respect it.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := h.router.Pick(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		return nil, llmerrors.ClassifyTransportError(adapter.Name(), err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp, err := adapter.Parse(httpResp)
	if err != nil {
		return nil, err
	}

	resp.LatencyMs = latency.Milliseconds()
	return resp, nil
}
