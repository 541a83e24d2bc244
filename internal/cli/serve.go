package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/subfeed/subfeed/internal/config"
	"github.com/subfeed/subfeed/internal/obs"
	"github.com/subfeed/subfeed/internal/server"
)

// Version is stamped by the main package at startup.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// ServeCmd creates the serve command.
// The env parameter provides injectable dependencies for testing.
func ServeCmd(env *Env) *cobra.Command {
	var (
		addr     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server.

The server exposes subreddit search, post listing with optional AI
summaries, and single-post enhancement. It shuts down gracefully on
SIGINT and SIGTERM.`,
		Example: `  subfeed serve
  subfeed serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, env, addr, logLevel)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: configured listen-addr, else :8000)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")

	return cmd
}

// fetcherSessions adapts the CLI's FetcherFactory to the server's
// per-request session contract.
type fetcherSessions struct {
	factory  FetcherFactory
	settings config.Settings
}

func (s *fetcherSessions) Open(ctx context.Context) (server.Session, error) {
	return s.factory.Open(ctx, s.settings)
}

func runServe(cmd *cobra.Command, env *Env, addr, logLevel string) error {
	ctx := cmd.Context()

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if addr == "" {
		addr = cfg.ListenAddr
	}

	settings := config.FromEnv(env.Getenv)
	if missing := settings.Credentials.Missing(); len(missing) > 0 {
		return credentialsMissingError(missing)
	}

	serverCfg := server.Config{
		Addr:     addr,
		Version:  Version,
		Logger:   obs.SetupLogger(logLevel),
		Sessions: &fetcherSessions{factory: env.FetcherFactory, settings: settings},
	}
	if settings.OpenAIAPIKey != "" {
		serverCfg.Summarizer = env.SummarizerFactory.NewSummarizer(settings.OpenAIAPIKey)
	} else {
		fmt.Fprintln(env.Stderr, "Warning: OPENAI_API_KEY not set, AI enhancement disabled")
	}

	srv := env.ServerFactory.NewServer(serverCfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
