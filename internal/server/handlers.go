package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/subfeed/subfeed/internal/apierr"
	"github.com/subfeed/subfeed/internal/feed"
	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/summarize"
)

const (
	defaultLimit = 5
	maxLimit     = 25
)

type searchResponse struct {
	Query   string   `json:"query"`
	Results []string `json:"results"`
	Count   int      `json:"count"`
}

type postsResponse struct {
	Subreddit  string      `json:"subreddit"`
	Posts      []feed.Post `json:"posts"`
	Count      int         `json:"count"`
	FetchedAt  string      `json:"fetched_at"`
	AIEnhanced bool        `json:"ai_enhanced"`
}

type enhanceResponse struct {
	PostID  string  `json:"post_id"`
	TLDR    *string `json:"tldr,omitempty"`
	Success bool    `json:"success"`
	Message *string `json:"message,omitempty"`
}

// limitQuery parses the limit query parameter, clamped to [1, maxLimit].
func limitQuery(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func boolQuery(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (s *Server) handleSearchSubreddits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit := limitQuery(r)

	sess, err := s.sessions.Open(r.Context())
	if err != nil {
		s.upstreamError(w, r, "search_subreddits", "", "Failed to search for subreddits", err)
		return
	}
	defer func() { _ = sess.Close() }()

	names, err := sess.SearchSubreddits(r.Context(), query, limit)
	if err != nil {
		s.upstreamError(w, r, "search_subreddits", "", "Failed to search for subreddits", err)
		return
	}
	s.metrics.ObserveUpstream("search_subreddits", "ok")

	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Results: names,
		Count:   len(names),
	})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	subreddit := chi.URLParam(r, "subreddit")
	limit := limitQuery(r)
	useAI := boolQuery(r, "use_ai")

	sess, err := s.sessions.Open(r.Context())
	if err != nil {
		s.upstreamError(w, r, "latest_posts", subreddit, "Failed to fetch posts", err)
		return
	}
	defer func() { _ = sess.Close() }()

	raw, err := sess.LatestPosts(r.Context(), subreddit, limit)
	if err != nil {
		s.upstreamError(w, r, "latest_posts", subreddit, "Failed to fetch posts", err)
		return
	}
	s.metrics.ObserveUpstream("latest_posts", "ok")

	if len(raw) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No posts found in r/%s", subreddit))
		return
	}

	posts := feed.FromRedditAll(raw)

	enhanced := false
	if useAI && s.summarizer != nil {
		hlog.FromRequest(r).Info().
			Str("subreddit", subreddit).
			Int("posts", len(posts)).
			Msg("applying AI enhancements")
		posts = feed.EnhanceAll(r.Context(), s.instrumented(), posts)
		enhanced = true
	}

	writeJSON(w, http.StatusOK, postsResponse{
		Subreddit:  subreddit,
		Posts:      posts,
		Count:      len(posts),
		FetchedAt:  time.Now().UTC().Format(time.RFC3339),
		AIEnhanced: enhanced,
	})
}

func (s *Server) handleEnhancePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	title := r.URL.Query().Get("title")
	text := r.URL.Query().Get("text")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "AI enhancement is not configured")
		return
	}

	tldr, err := s.summarizer.Summarize(r.Context(), title, text)
	if err != nil {
		s.metrics.ObserveSummary("fallback")
		hlog.FromRequest(r).Error().
			Err(err).
			Str("post_id", postID).
			Msg("enhancement failed")
		msg := err.Error()
		writeJSON(w, http.StatusOK, enhanceResponse{
			PostID:  postID,
			Success: false,
			Message: &msg,
		})
		return
	}

	s.metrics.ObserveSummary("ok")
	writeJSON(w, http.StatusOK, enhanceResponse{
		PostID:  postID,
		TLDR:    &tldr,
		Success: true,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// upstreamError maps a classified upstream failure onto the API error
// contract. The cause is always logged; only the 404 and 429 bodies
// expose detail beyond the generic message.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, operation, subreddit, fallback string, err error) {
	ce := reddit.Classify(err)
	s.metrics.ObserveUpstream(operation, ce.Kind.String())

	hlog.FromRequest(r).Error().
		Err(err).
		Str("operation", operation).
		Str("kind", ce.Kind.String()).
		Msg("upstream call failed")

	switch {
	// Search failures carry no subreddit to name; a not-found there
	// degrades to the generic failure instead of rendering "r/".
	case ce.Kind == apierr.KindNotFound && subreddit != "":
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("Subreddit 'r/%s' does not exist or is private", subreddit))
	case ce.Kind == apierr.KindRateLimited:
		w.Header().Set("Retry-After", strconv.Itoa(ce.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Rate limited by Reddit. Try again in %d seconds.", ce.RetryAfterSeconds))
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

type summarizerFunc func(ctx context.Context, title, body string) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, title, body string) (string, error) {
	return f(ctx, title, body)
}

// instrumented wraps the summarizer so batch enhancement outcomes land
// in the summaries metric.
func (s *Server) instrumented() summarize.Summarizer {
	return summarizerFunc(func(ctx context.Context, title, body string) (string, error) {
		out, err := s.summarizer.Summarize(ctx, title, body)
		if err != nil {
			s.metrics.ObserveSummary("fallback")
			return out, err
		}
		s.metrics.ObserveSummary("ok")
		return out, nil
	})
}
