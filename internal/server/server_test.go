package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/server"
)

// Notes:
// - Black-box testing through the router (httptest), with fake sessions
//   and a fake summarizer standing in for the upstream collaborators.
// - Error mapping cases drive real *reddit.APIError values through the
//   handlers so the classification path is exercised end to end.

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSession struct {
	posts      []reddit.Post
	postsErr   error
	names      []string
	searchErr  error
	closed     bool
	closeCalls int
}

func (s *fakeSession) LatestPosts(context.Context, string, int) ([]reddit.Post, error) {
	return s.posts, s.postsErr
}

func (s *fakeSession) SearchSubreddits(context.Context, string, int) ([]string, error) {
	return s.names, s.searchErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	s.closeCalls++
	return nil
}

type fakeFactory struct {
	session *fakeSession
	openErr error
}

func (f *fakeFactory) Open(context.Context) (server.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.session, nil
}

type fakeSummarizer struct {
	tldr  string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.tldr, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	return server.New(cfg)
}

func doRequest(t *testing.T, s *server.Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func samplePosts() []reddit.Post {
	return []reddit.Post{
		{
			ID:        "abc1",
			Title:     "First post",
			Author:    "alice",
			Score:     42,
			Permalink: "/r/golang/comments/abc1/first_post/",
			IsSelf:    true,
			Selftext:  "some body text",
		},
		{
			ID:        "abc2",
			Title:     "Second post",
			Author:    "bob",
			Score:     7,
			Permalink: "/r/golang/comments/abc2/second_post/",
		},
	}
}

func notFoundErr() error {
	return &reddit.APIError{
		StatusCode: http.StatusNotFound,
		Items: []reddit.APIErrorItem{
			{ErrorType: reddit.ErrorTypeSubredditNoExist, Message: "that subreddit doesn't exist"},
		},
	}
}

func rateLimitedErr() error {
	return &reddit.APIError{
		StatusCode: http.StatusTooManyRequests,
		Items: []reddit.APIErrorItem{
			{ErrorType: reddit.ErrorTypeRateLimit, Message: "you are doing that too much. try again in 3 minutes."},
		},
	}
}

// ---------------------------------------------------------------------------
// TestSearchSubreddits
// ---------------------------------------------------------------------------

func TestSearchSubreddits(t *testing.T) {
	t.Parallel()

	t.Run("returns matching names", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{names: []string{"golang", "golang_jobs"}}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/search/subreddits?query=golang")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var body struct {
			Query   string   `json:"query"`
			Results []string `json:"results"`
			Count   int      `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Query != "golang" {
			t.Errorf("query = %q, want %q", body.Query, "golang")
		}
		if body.Count != 2 || len(body.Results) != 2 {
			t.Errorf("count = %d, results = %v, want 2 results", body.Count, body.Results)
		}
		if !sess.closed {
			t.Error("session was not closed")
		}
	})

	t.Run("missing query is a 400", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: &fakeSession{}}})

		rec := doRequest(t, s, http.MethodGet, "/api/search/subreddits")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("no matches yields empty array not null", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: &fakeSession{}}})

		rec := doRequest(t, s, http.MethodGet, "/api/search/subreddits?query=nothing")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "\"results\":null") {
			t.Errorf("body = %s, want empty array for results", rec.Body.String())
		}
	})

	t.Run("upstream failure is a 500 with generic detail", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{searchErr: errors.New("socket exploded: secret-host:6379")}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/search/subreddits?query=golang")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "secret-host") {
			t.Errorf("body leaks internal error detail: %s", rec.Body.String())
		}
	})

	t.Run("not-found classification degrades to the generic 500", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{searchErr: notFoundErr()}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/search/subreddits?query=golang")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}

		var body struct {
			Detail string `json:"detail"`
		}
		decodeBody(t, rec, &body)
		if body.Detail != "Failed to search for subreddits" {
			t.Errorf("detail = %q, want the generic search failure", body.Detail)
		}
		// Search has no subreddit; the not-found phrasing must not render
		// an empty name.
		if strings.Contains(body.Detail, "r/") {
			t.Errorf("detail = %q, must not name a subreddit", body.Detail)
		}
	})
}

// ---------------------------------------------------------------------------
// TestGetPosts
// ---------------------------------------------------------------------------

func TestGetPosts(t *testing.T) {
	t.Parallel()

	t.Run("returns shaped posts", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{posts: samplePosts()}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/golang?limit=5")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
		}

		var body struct {
			Subreddit  string `json:"subreddit"`
			Count      int    `json:"count"`
			FetchedAt  string `json:"fetched_at"`
			AIEnhanced bool   `json:"ai_enhanced"`
			Posts      []struct {
				ID        string  `json:"id"`
				Permalink string  `json:"permalink"`
				TLDR      *string `json:"tldr"`
			} `json:"posts"`
		}
		decodeBody(t, rec, &body)

		if body.Subreddit != "golang" {
			t.Errorf("subreddit = %q, want %q", body.Subreddit, "golang")
		}
		if body.Count != 2 {
			t.Errorf("count = %d, want 2", body.Count)
		}
		if body.AIEnhanced {
			t.Error("ai_enhanced = true, want false without use_ai")
		}
		if body.FetchedAt == "" {
			t.Error("fetched_at is empty")
		}
		if got := body.Posts[0].Permalink; !strings.HasPrefix(got, "https://www.reddit.com/") {
			t.Errorf("permalink = %q, want absolute reddit URL", got)
		}
		if body.Posts[0].TLDR != nil {
			t.Errorf("tldr = %v, want nil without use_ai", *body.Posts[0].TLDR)
		}
		if !sess.closed {
			t.Error("session was not closed")
		}
	})

	t.Run("use_ai enhances all posts", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{posts: samplePosts()}
		sum := &fakeSummarizer{tldr: "short version"}
		s := newTestServer(t, server.Config{
			Sessions:   &fakeFactory{session: sess},
			Summarizer: sum,
		})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/golang?use_ai=true")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var body struct {
			AIEnhanced bool `json:"ai_enhanced"`
			Posts      []struct {
				TLDR        *string `json:"tldr"`
				AIProcessed bool    `json:"ai_processed"`
			} `json:"posts"`
		}
		decodeBody(t, rec, &body)

		if !body.AIEnhanced {
			t.Error("ai_enhanced = false, want true")
		}
		for i, p := range body.Posts {
			if p.TLDR == nil || *p.TLDR != "short version" {
				t.Errorf("post %d tldr = %v, want %q", i, p.TLDR, "short version")
			}
			if !p.AIProcessed {
				t.Errorf("post %d ai_processed = false, want true", i)
			}
		}
		if sum.calls != 2 {
			t.Errorf("summarizer calls = %d, want 2", sum.calls)
		}
	})

	t.Run("empty subreddit is a 404", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: &fakeSession{}}})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/emptysub")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No posts found in r/emptysub") {
			t.Errorf("body = %s, want no-posts message", rec.Body.String())
		}
	})

	t.Run("nonexistent subreddit is a 404 naming the subreddit", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{postsErr: notFoundErr()}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/doesnotexist")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "r/doesnotexist") {
			t.Errorf("body = %s, want subreddit name in detail", rec.Body.String())
		}
	})

	t.Run("rate limited maps to 429 with Retry-After", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{postsErr: rateLimitedErr()}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/golang")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "180" {
			t.Errorf("Retry-After = %q, want %q", got, "180")
		}
		if !strings.Contains(rec.Body.String(), "Try again in 180 seconds") {
			t.Errorf("body = %s, want retry hint", rec.Body.String())
		}
	})

	t.Run("transient failure is a 500 with generic detail", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{postsErr: fmt.Errorf("dial tcp: connection refused")}
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: sess}})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/golang")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "dial tcp") {
			t.Errorf("body leaks internal error detail: %s", rec.Body.String())
		}
	})

	t.Run("session open failure is mapped too", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{
			Sessions: &fakeFactory{openErr: errors.New("login failed")},
		})

		rec := doRequest(t, s, http.MethodGet, "/api/posts/golang")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// TestEnhancePost
// ---------------------------------------------------------------------------

func TestEnhancePost(t *testing.T) {
	t.Parallel()

	t.Run("returns summary on success", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{
			Sessions:   &fakeFactory{session: &fakeSession{}},
			Summarizer: &fakeSummarizer{tldr: "the gist"},
		})

		rec := doRequest(t, s, http.MethodPost, "/api/ai/enhance/abc1?title=Hello&text=World")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var body struct {
			PostID  string  `json:"post_id"`
			TLDR    *string `json:"tldr"`
			Success bool    `json:"success"`
		}
		decodeBody(t, rec, &body)
		if body.PostID != "abc1" {
			t.Errorf("post_id = %q, want %q", body.PostID, "abc1")
		}
		if !body.Success {
			t.Error("success = false, want true")
		}
		if body.TLDR == nil || *body.TLDR != "the gist" {
			t.Errorf("tldr = %v, want %q", body.TLDR, "the gist")
		}
	})

	t.Run("summarizer failure stays HTTP 200 with success=false", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{
			Sessions:   &fakeFactory{session: &fakeSession{}},
			Summarizer: &fakeSummarizer{err: errors.New("model unavailable")},
		})

		rec := doRequest(t, s, http.MethodPost, "/api/ai/enhance/abc1?title=Hello&text=World")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var body struct {
			Success bool    `json:"success"`
			Message *string `json:"message"`
		}
		decodeBody(t, rec, &body)
		if body.Success {
			t.Error("success = true, want false")
		}
		if body.Message == nil || *body.Message == "" {
			t.Error("message is empty, want failure reason")
		}
	})

	t.Run("missing title is a 400", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{
			Sessions:   &fakeFactory{session: &fakeSession{}},
			Summarizer: &fakeSummarizer{tldr: "x"},
		})

		rec := doRequest(t, s, http.MethodPost, "/api/ai/enhance/abc1?text=World")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unconfigured summarizer is a 503", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, server.Config{Sessions: &fakeFactory{session: &fakeSession{}}})

		rec := doRequest(t, s, http.MethodPost, "/api/ai/enhance/abc1?title=Hello")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// TestServiceEndpoints
// ---------------------------------------------------------------------------

func TestServiceEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, server.Config{
		Version:  "1.2.3",
		Sessions: &fakeFactory{session: &fakeSession{}},
	})

	t.Run("health", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, s, http.MethodGet, "/health")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "\"ok\"") {
			t.Errorf("body = %s, want ok status", rec.Body.String())
		}
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, s, http.MethodGet, "/version")
		if !strings.Contains(rec.Body.String(), "1.2.3") {
			t.Errorf("body = %s, want version string", rec.Body.String())
		}
	})

	t.Run("metrics endpoint serves prometheus text", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, s, http.MethodGet, "/metrics")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("unknown route is a JSON 404", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, s, http.MethodGet, "/nope")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "detail") {
			t.Errorf("body = %s, want error envelope", rec.Body.String())
		}
	})

	t.Run("responses carry X-Process-Time", func(t *testing.T) {
		t.Parallel()
		rec := doRequest(t, s, http.MethodGet, "/health")
		if rec.Header().Get("X-Process-Time") == "" {
			t.Error("X-Process-Time header is missing")
		}
	})
}
