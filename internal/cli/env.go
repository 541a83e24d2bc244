package cli

import (
	"context"
	"io"
	"os"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/subfeed/subfeed/internal/config"
	"github.com/subfeed/subfeed/internal/ratelimit"
	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/server"
	"github.com/subfeed/subfeed/internal/summarize"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// Factories for domain objects
	ConfigLoader      ConfigLoader
	FetcherFactory    FetcherFactory
	SummarizerFactory SummarizerFactory
	ServerFactory     ServerFactory
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// Fetcher is an authenticated upstream session for fetching posts and
// searching subreddits.
type Fetcher interface {
	LatestPosts(ctx context.Context, subreddit string, limit int) ([]reddit.Post, error)
	SearchSubreddits(ctx context.Context, query string, limit int) ([]string, error)
	Close() error
}

// FetcherFactory opens authenticated upstream sessions.
type FetcherFactory interface {
	Open(ctx context.Context, settings config.Settings) (Fetcher, error)
}

// SummarizerFactory creates summarizers for TL;DR generation.
type SummarizerFactory interface {
	NewSummarizer(apiKey string) summarize.Summarizer
}

// Runnable is a long-running service with graceful shutdown.
type Runnable interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// ServerFactory creates the HTTP API server.
type ServerFactory interface {
	NewServer(cfg server.Config) Runnable
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithFetcherFactory sets the upstream session factory.
func WithFetcherFactory(f FetcherFactory) EnvOption {
	return func(e *Env) {
		e.FetcherFactory = f
	}
}

// WithSummarizerFactory sets the summarizer factory.
func WithSummarizerFactory(f SummarizerFactory) EnvOption {
	return func(e *Env) {
		e.SummarizerFactory = f
	}
}

// WithServerFactory sets the server factory.
func WithServerFactory(f ServerFactory) EnvOption {
	return func(e *Env) {
		e.ServerFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
		Getenv:            os.Getenv,
		ConfigLoader:      &defaultConfigLoader{},
		FetcherFactory:    &defaultFetcherFactory{},
		SummarizerFactory: &defaultSummarizerFactory{},
		ServerFactory:     &defaultServerFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultFetcherFactory builds authenticated reddit clients. Every session
// it opens shares one process-wide limiter, so concurrent HTTP requests in
// serve mode all draw from the same permit budget.
type defaultFetcherFactory struct {
	mu     sync.Mutex
	shared *ratelimit.Limiter
}

// limiter returns the shared outbound limiter, sizing it from the first
// settings seen. Later settings never resize it; the bucket state must
// survive across sessions.
func (f *defaultFetcherFactory) limiter(settings config.Settings) *ratelimit.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shared == nil {
		capacity := settings.RateLimit
		if capacity == 0 {
			capacity = ratelimit.DefaultCapacity
		}
		window := settings.RateWindow
		if window == 0 {
			window = ratelimit.DefaultWindow
		}
		f.shared = ratelimit.New(capacity, window)
	}
	return f.shared
}

func (f *defaultFetcherFactory) Open(ctx context.Context, settings config.Settings) (Fetcher, error) {
	if missing := settings.Credentials.Missing(); len(missing) > 0 {
		return nil, credentialsMissingError(missing)
	}

	client := reddit.New(settings.Credentials, f.limiter(settings))
	if err := client.Authenticate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// defaultSummarizerFactory implements SummarizerFactory using OpenAI.
type defaultSummarizerFactory struct{}

func (defaultSummarizerFactory) NewSummarizer(apiKey string) summarize.Summarizer {
	return summarize.NewOpenAISummarizer(openai.NewClient(apiKey))
}

// defaultServerFactory implements ServerFactory using the server package.
type defaultServerFactory struct{}

func (defaultServerFactory) NewServer(cfg server.Config) Runnable {
	return server.New(cfg)
}

// Compile-time interface verification.
var (
	_ ConfigLoader      = (*defaultConfigLoader)(nil)
	_ FetcherFactory    = (*defaultFetcherFactory)(nil)
	_ SummarizerFactory = (*defaultSummarizerFactory)(nil)
	_ ServerFactory     = (*defaultServerFactory)(nil)
)
