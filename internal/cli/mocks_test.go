package cli

import (
	"context"
	"net/http"
	"sync"

	"github.com/subfeed/subfeed/internal/config"
	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/server"
	"github.com/subfeed/subfeed/internal/summarize"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

// ---------------------------------------------------------------------------
// Mock Fetcher + FetcherFactory
// ---------------------------------------------------------------------------

type mockFetcher struct {
	PostsFunc  func(ctx context.Context, subreddit string, limit int) ([]reddit.Post, error)
	SearchFunc func(ctx context.Context, query string, limit int) ([]string, error)

	mu         sync.Mutex
	closeCalls int
}

func (m *mockFetcher) LatestPosts(ctx context.Context, subreddit string, limit int) ([]reddit.Post, error) {
	if m.PostsFunc != nil {
		return m.PostsFunc(ctx, subreddit, limit)
	}
	return nil, nil
}

func (m *mockFetcher) SearchSubreddits(ctx context.Context, query string, limit int) ([]string, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockFetcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockFetcher) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

type mockFetcherFactory struct {
	OpenFunc func(ctx context.Context, settings config.Settings) (Fetcher, error)

	mu           sync.Mutex
	openCalls    int
	lastSettings config.Settings
}

func (m *mockFetcherFactory) Open(ctx context.Context, settings config.Settings) (Fetcher, error) {
	m.mu.Lock()
	m.openCalls++
	m.lastSettings = settings
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, settings)
	}
	return &mockFetcher{}, nil
}

func (m *mockFetcherFactory) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// ---------------------------------------------------------------------------
// Mock Summarizer + SummarizerFactory
// ---------------------------------------------------------------------------

type mockSummarizer struct {
	SummarizeFunc func(ctx context.Context, title, body string) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *mockSummarizer) Summarize(ctx context.Context, title, body string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, title, body)
	}
	return "a concise summary", nil
}

func (m *mockSummarizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSummarizerFactory struct {
	summarizer *mockSummarizer

	mu         sync.Mutex
	lastAPIKey string
}

func (m *mockSummarizerFactory) NewSummarizer(apiKey string) summarize.Summarizer {
	m.mu.Lock()
	m.lastAPIKey = apiKey
	m.mu.Unlock()

	if m.summarizer != nil {
		return m.summarizer
	}
	return &mockSummarizer{}
}

// ---------------------------------------------------------------------------
// Mock Runnable + ServerFactory
// ---------------------------------------------------------------------------

type mockRunnable struct {
	StartFunc func() error

	mu            sync.Mutex
	shutdownCalls int
	stopped       chan struct{}
}

func newMockRunnable() *mockRunnable {
	return &mockRunnable{stopped: make(chan struct{})}
}

func (m *mockRunnable) Start() error {
	if m.StartFunc != nil {
		return m.StartFunc()
	}
	// Block like a real listener until Shutdown.
	<-m.stopped
	return http.ErrServerClosed
}

func (m *mockRunnable) Shutdown(context.Context) error {
	m.mu.Lock()
	m.shutdownCalls++
	calls := m.shutdownCalls
	m.mu.Unlock()
	if calls == 1 {
		close(m.stopped)
	}
	return nil
}

func (m *mockRunnable) ShutdownCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdownCalls
}

type mockServerFactory struct {
	runnable *mockRunnable

	mu      sync.Mutex
	lastCfg server.Config
}

func (m *mockServerFactory) NewServer(cfg server.Config) Runnable {
	m.mu.Lock()
	m.lastCfg = cfg
	m.mu.Unlock()
	return m.runnable
}

func (m *mockServerFactory) LastConfig() server.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCfg
}
