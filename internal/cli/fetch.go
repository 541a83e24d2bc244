package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/subfeed/subfeed/internal/apierr"
	"github.com/subfeed/subfeed/internal/config"
	"github.com/subfeed/subfeed/internal/feed"
	"github.com/subfeed/subfeed/internal/reddit"
)

const fallbackSubreddit = "python"

// FetchCmd creates the fetch command.
// The env parameter provides injectable dependencies for testing.
func FetchCmd(env *Env) *cobra.Command {
	var (
		subreddit string
		limit     int
		summarize bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the latest posts from a subreddit",
		Long: `Fetch the latest posts from a subreddit and print them.

The subreddit defaults to the configured default-subreddit setting.
A fetch failure (nonexistent subreddit, rate limit) prints a warning
and an empty result; only a failed login is fatal.`,
		Example: `  subfeed fetch
  subfeed fetch --subreddit golang --limit 10
  subfeed fetch -s askreddit --summarize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, env, subreddit, limit, summarize)
		},
	}

	cmd.Flags().StringVarP(&subreddit, "subreddit", "s", "", "Subreddit to fetch from (default: configured default-subreddit)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of posts to fetch (1-25)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Generate an AI TL;DR for each post")

	return cmd
}

// clampLimit constrains the post count to the API's accepted range.
func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > 25 {
		return 25
	}
	return n
}

func runFetch(cmd *cobra.Command, env *Env, subreddit string, limit int, withSummaries bool) error {
	ctx := cmd.Context()

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if subreddit == "" {
		subreddit = cfg.DefaultSubreddit
	}
	if subreddit == "" {
		subreddit = fallbackSubreddit
	}
	limit = clampLimit(limit)

	settings := config.FromEnv(env.Getenv)

	// Fail before login when summaries were requested without a key.
	if withSummaries && settings.OpenAIAPIKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, config.EnvOpenAIAPIKey)
	}

	fetcher, err := env.FetcherFactory.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = fetcher.Close() }()

	fmt.Fprintf(env.Stderr, "Fetching the %d newest posts from r/%s...\n", limit, subreddit)

	raw, err := fetcher.LatestPosts(ctx, subreddit, limit)
	if err != nil {
		warnFetchFailure(env.Stderr, subreddit, err)
		return nil
	}
	if len(raw) == 0 {
		fmt.Fprintf(env.Stderr, "No posts found in r/%s.\n", subreddit)
		return nil
	}

	posts := feed.FromRedditAll(raw)

	if withSummaries {
		s := env.SummarizerFactory.NewSummarizer(settings.OpenAIAPIKey)
		posts = feed.EnhanceAll(ctx, s, posts)
	}

	printPosts(env.Stdout, posts)
	return nil
}

// warnFetchFailure reports an upstream fetch failure without failing the
// command; the result is simply empty.
func warnFetchFailure(w io.Writer, subreddit string, err error) {
	ce := reddit.Classify(err)
	switch ce.Kind {
	case apierr.KindNotFound:
		fmt.Fprintf(w, "Warning: subreddit r/%s does not exist or is private\n", subreddit)
	case apierr.KindRateLimited:
		fmt.Fprintf(w, "Warning: rate limited by Reddit, wait %d seconds before retrying\n", ce.RetryAfterSeconds)
	default:
		fmt.Fprintf(w, "Warning: could not fetch posts from r/%s: %s\n", subreddit, ce.Message)
	}
}

func printPosts(w io.Writer, posts []feed.Post) {
	fmt.Fprintln(w, "\n--- Latest Posts ---")
	for i, post := range posts {
		fmt.Fprintf(w, "Post #%d\n", i+1)
		fmt.Fprintf(w, "Title: %s\n", post.Title)
		fmt.Fprintf(w, "Author: u/%s\n", post.Author)
		fmt.Fprintf(w, "Upvotes: %d\n", post.Score)
		if post.TLDR != nil {
			fmt.Fprintf(w, "TL;DR: %s\n", *post.TLDR)
		}
		fmt.Fprintln(w, "---")
	}
}
