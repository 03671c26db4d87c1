package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kayteedberserker/feedsync/internal/output"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:   srv.URL + "/api",
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "localhost/api"})
	if err == nil {
		t.Fatal("expected error for relative base URL")
	}
	if output.AsError(err).Code != output.CodeUsage {
		t.Errorf("Code = %q, want %q", output.AsError(err).Code, output.CodeUsage)
	}
}

func TestFeedPath(t *testing.T) {
	tests := []struct {
		resource, id string
		want         string
		wantErr      bool
	}{
		{ResourcePosts, "", "/posts", false},
		{ResourceSearch, "", "/search", false},
		{ResourceAuthor, "kay", "/authors/kay/posts", false},
		{ResourceClan, "red fox", "/clans/red%20fox/posts", false},
		{ResourceAuthor, "", "", true},
		{"comments", "", "", true},
	}
	for _, tt := range tests {
		got, err := FeedPath(tt.resource, tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("FeedPath(%q, %q) error = %v, wantErr %v", tt.resource, tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FeedPath(%q, %q) = %q, want %q", tt.resource, tt.id, got, tt.want)
		}
	}
}

func TestListPageSendsPaginationAndFilters(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	var gotHeaders http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotHeaders = r.Header
		_, _ = w.Write([]byte(`{"items":[{"id":"a"}]}`))
	})

	query := url.Values{"category": {"art"}}
	body, err := c.ListPage(context.Background(), ResourcePosts, "", query, 2, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}

	if string(body) != `{"items":[{"id":"a"}]}` {
		t.Errorf("body = %s", body)
	}
	if gotPath != "/api/posts" {
		t.Errorf("path = %q, want /api/posts", gotPath)
	}
	if gotQuery.Get("category") != "art" || gotQuery.Get("page") != "2" || gotQuery.Get("limit") != "10" {
		t.Errorf("query = %v", gotQuery)
	}
	if _, hasPage := query["page"]; hasPage {
		t.Error("caller query must not be modified")
	}
	if gotHeaders.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if gotHeaders.Get("User-Agent") == "" {
		t.Error("expected User-Agent header")
	}
}

func TestLikeAndView(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Like(context.Background(), "p1"); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if err := c.RecordView(context.Background(), "p1"); err != nil {
		t.Fatalf("RecordView: %v", err)
	}

	want := []string{"POST /api/posts/p1/like", "POST /api/posts/p1/view"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	resp, err := c.Get(context.Background(), "/posts", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resp.OK || hits.Load() != 3 {
		t.Errorf("OK = %v, hits = %d; want true, 3", resp.OK, hits.Load())
	}
}

func TestGivesUpAfterMaxTries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Get(context.Background(), "/posts", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	e := output.AsError(err)
	if e.Code != output.CodeAPI || e.HTTPStatus != http.StatusBadGateway {
		t.Errorf("error = %+v", e)
	}
	if hits.Load() != defaultMaxTries {
		t.Errorf("hits = %d, want %d", hits.Load(), defaultMaxTries)
	}
}

func TestActionPostsAreNotRetried(t *testing.T) {
	var posts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	if err := c.Like(context.Background(), "p1"); err == nil {
		t.Fatal("expected error")
	}
	if err := c.RecordView(context.Background(), "p1"); err == nil {
		t.Fatal("expected error")
	}
	if posts.Load() != 2 {
		t.Errorf("posts = %d, want one per action", posts.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"limit too large"}`))
	})

	_, err := c.Get(context.Background(), "/posts", nil)
	e := output.AsError(err)
	if e.Message != "limit too large" || e.HTTPStatus != http.StatusBadRequest {
		t.Errorf("error = %+v", e)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.ListPage(context.Background(), ResourceAuthor, "ghost", nil, 1, 10)
	if output.AsError(err).Code != output.CodeNotFound {
		t.Errorf("Code = %q, want %q", output.AsError(err).Code, output.CodeNotFound)
	}
}

func TestRateLimitedIsRetryable(t *testing.T) {
	err := statusError(http.StatusTooManyRequests, http.Header{"Retry-After": {"7"}}, nil, "/posts")
	e := output.AsError(err)
	if e.Code != output.CodeRateLimit || !e.Retryable || e.Hint != "Try again in 7 seconds" {
		t.Errorf("error = %+v", e)
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: addr, BaseDelay: time.Millisecond, MaxTries: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Get(context.Background(), "/posts", nil)
	e := output.AsError(err)
	if e.Code != output.CodeNetwork || !e.Retryable {
		t.Errorf("error = %+v", e)
	}
}

func TestCanceledContextStopsRetrying(t *testing.T) {
	var hits atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Get(ctx, "/posts", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := map[string]int{"": 0, "30": 30, "soon": 0}
	for in, want := range tests {
		if got := parseRetryAfter(in); got != want {
			t.Errorf("parseRetryAfter(%q) = %d, want %d", in, got, want)
		}
	}
}
