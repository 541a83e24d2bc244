// Package feed shapes raw upstream posts into the stable response schema
// served by the API and printed by the CLI, and applies batch AI
// enhancement.
package feed

import (
	"context"

	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/summarize"
)

// DeletedAuthor replaces the author of posts whose account is gone.
const DeletedAuthor = "[deleted]"

// permalinkHost prefixes upstream-relative permalinks.
const permalinkHost = "https://www.reddit.com"

// placeholderThumbnails are upstream markers, not real image URLs.
var placeholderThumbnails = map[string]bool{
	"":        true,
	"self":    true,
	"default": true,
	"nsfw":    true,
}

// Post is the stable API schema for a single post.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	IsSelf      bool    `json:"is_self"`
	Selftext    *string `json:"selftext"`
	Thumbnail   *string `json:"thumbnail"`
	NumComments int     `json:"num_comments"`
	TLDR        *string `json:"tldr,omitempty"`
	AIProcessed bool    `json:"ai_processed,omitempty"`
}

// FromReddit shapes one raw upstream post into the stable schema.
func FromReddit(p reddit.Post) Post {
	post := Post{
		ID:          p.ID,
		Title:       p.Title,
		Author:      p.Author,
		Score:       p.Score,
		CreatedUTC:  p.CreatedUTC,
		URL:         p.URL,
		Permalink:   permalinkHost + p.Permalink,
		IsSelf:      p.IsSelf,
		NumComments: p.NumComments,
	}
	if post.Author == "" {
		post.Author = DeletedAuthor
	}
	if p.IsSelf {
		selftext := p.Selftext
		post.Selftext = &selftext
	}
	if !placeholderThumbnails[p.Thumbnail] {
		thumbnail := p.Thumbnail
		post.Thumbnail = &thumbnail
	}
	return post
}

// FromRedditAll shapes a batch, preserving upstream order.
func FromRedditAll(raw []reddit.Post) []Post {
	posts := make([]Post, 0, len(raw))
	for _, p := range raw {
		posts = append(posts, FromReddit(p))
	}
	return posts
}

// EnhanceAll adds a TL;DR to each post, sequentially and in order.
//
// Posts already carrying the processed marker are skipped, so re-enhancing
// a batch never re-invokes the summarizer for them. A summarizer failure
// degrades that post to the fallback message; the batch itself never fails.
// Cancellation stops the pass and returns the work done so far.
func EnhanceAll(ctx context.Context, s summarize.Summarizer, posts []Post) []Post {
	enhanced := make([]Post, 0, len(posts))

	for _, post := range posts {
		if post.AIProcessed {
			enhanced = append(enhanced, post)
			continue
		}
		if ctx.Err() != nil {
			enhanced = append(enhanced, post)
			continue
		}

		body := post.Title
		if post.Selftext != nil && *post.Selftext != "" {
			body = *post.Selftext
		}

		tldr, err := s.Summarize(ctx, post.Title, body)
		if err != nil {
			tldr = summarize.FallbackMessage
		}
		post.TLDR = &tldr
		post.AIProcessed = true
		enhanced = append(enhanced, post)
	}

	return enhanced
}
