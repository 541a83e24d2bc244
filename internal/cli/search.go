package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subfeed/subfeed/internal/config"
)

// SearchCmd creates the search command.
// The env parameter provides injectable dependencies for testing.
func SearchCmd(env *Env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for subreddits by name",
		Example: `  subfeed search golang
  subfeed search "machine learning" --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, env, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results (1-25)")

	return cmd
}

func runSearch(cmd *cobra.Command, env *Env, query string, limit int) error {
	ctx := cmd.Context()
	limit = clampLimit(limit)

	fetcher, err := env.FetcherFactory.Open(ctx, config.FromEnv(env.Getenv))
	if err != nil {
		return err
	}
	defer func() { _ = fetcher.Close() }()

	names, err := fetcher.SearchSubreddits(ctx, query, limit)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: subreddit search failed: %v\n", err)
		return nil
	}
	if len(names) == 0 {
		fmt.Fprintf(env.Stderr, "No subreddits found matching %q.\n", query)
		return nil
	}

	for _, name := range names {
		fmt.Fprintf(env.Stdout, "r/%s\n", name)
	}
	return nil
}
