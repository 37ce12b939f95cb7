package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
)

// stubAdapter routes every request to a fixed URL and parses plain-text
// bodies, standing in for a real provider adapter.
type stubAdapter struct {
	url string
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Build(ctx context.Context, req *Request) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
}

func (a *stubAdapter) Parse(httpResp *http.Response) (*Response, error) {
	defer func() { _ = httpResp.Body.Close() }()
	buf := make([]byte, 64)
	n, _ := httpResp.Body.Read(buf)
	return &Response{Content: string(buf[:n])}, nil
}

// stubRouter returns the same adapter for every provider.
type stubRouter struct{ adapter ProviderAdapter }

func (r *stubRouter) Pick(provider string) (ProviderAdapter, error) {
	return r.adapter, nil
}

func TestHTTPHandler_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("42"))
	}))
	defer server.Close()

	h := NewHTTPHandler(server.Client(), &stubRouter{adapter: &stubAdapter{url: server.URL}})

	resp, err := h.Handle(context.Background(), &Request{Provider: "stub", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Content)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(0))
}

func TestHTTPHandler_TimeoutClassified(t *testing.T) {
	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer server.Close()

	h := NewHTTPHandler(server.Client(), &stubRouter{adapter: &stubAdapter{url: server.URL}})

	_, err := h.Handle(context.Background(), &Request{
		Provider: "stub", Model: "m", Timeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	<-started

	var pe *llmerrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, llmerrors.ErrorTypeTimeout, pe.Type)
}

func TestChain_OrdersMiddlewareFirstOutermost(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name)
				return next.Handle(ctx, req)
			})
		}
	}
	core := HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		order = append(order, "core")
		return &Response{}, nil
	})

	h := Chain(core, mw("outer"), mw("middle"), mw("inner"))
	_, err := h.Handle(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "middle", "inner", "core"}, order)
}

func TestRequest_CacheKey(t *testing.T) {
	base := &Request{Provider: "openai", Model: "gpt-4o", Prompt: "p", Temperature: 0, MaxTokens: 64}

	same := &Request{Provider: "openai", Model: "gpt-4o", Prompt: "p", Temperature: 0, MaxTokens: 64}
	assert.Equal(t, base.CacheKey(), same.CacheKey())

	// Identity fields change the key; the timeout does not.
	differentPrompt := &Request{Provider: "openai", Model: "gpt-4o", Prompt: "q", Temperature: 0, MaxTokens: 64}
	assert.NotEqual(t, base.CacheKey(), differentPrompt.CacheKey())

	withTimeout := &Request{Provider: "openai", Model: "gpt-4o", Prompt: "p", Temperature: 0, MaxTokens: 64, Timeout: time.Minute}
	assert.Equal(t, base.CacheKey(), withTimeout.CacheKey())
}
