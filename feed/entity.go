// Package feed holds the view-level entities derived from raw items and the
// deterministic feed mixer.
package feed

import (
	"net/url"
	"strings"

	"github.com/hnfeed/hnfeed/hn"
)

// Story is the feed-facing view of a story item.
type Story struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Host         string `json:"host,omitempty"`
	By           string `json:"by"`
	Score        int    `json:"score"`
	Time         int64  `json:"time"`
	CommentCount int    `json:"comment_count"`
}

// Comment is the feed-facing view of a comment item. Depth is the distance
// from the traversal root that discovered it (root comments are depth 0).
// StoryID and StoryTitle denormalize the owning story for display.
type Comment struct {
	ID         int    `json:"id"`
	By         string `json:"by"`
	Time       int64  `json:"time"`
	Text       string `json:"text"`
	ParentID   int    `json:"parent_id"`
	StoryID    int    `json:"story_id"`
	StoryTitle string `json:"story_title,omitempty"`
	Depth      int    `json:"depth"`
}

// StoryFromItem maps a raw item to a Story. It returns false for anything
// that is not a well-formed story: wrong type, or missing title, author, or
// time.
func StoryFromItem(item *hn.Item) (Story, bool) {
	if item == nil || item.Type != "story" {
		return Story{}, false
	}
	if item.Title == "" || item.By == "" || item.Time == 0 {
		return Story{}, false
	}

	count := item.Descendants
	if count == 0 {
		count = len(item.Kids)
	}

	return Story{
		ID:           item.ID,
		Title:        item.Title,
		URL:          item.URL,
		Host:         hostOf(item.URL),
		By:           item.By,
		Score:        item.Score,
		Time:         item.Time,
		CommentCount: count,
	}, true
}

// CommentFromItem maps a raw item to a Comment at the given depth, owned by
// the given story. Deleted, dead, and incomplete comments are rejected.
func CommentFromItem(item *hn.Item, storyID int, storyTitle string, depth int) (Comment, bool) {
	if item == nil || item.Type != "comment" {
		return Comment{}, false
	}
	if item.Deleted || item.Dead {
		return Comment{}, false
	}
	if item.By == "" || item.Time == 0 || item.Text == "" || item.Parent == 0 {
		return Comment{}, false
	}

	return Comment{
		ID:         item.ID,
		By:         item.By,
		Time:       item.Time,
		Text:       item.Text,
		ParentID:   item.Parent,
		StoryID:    storyID,
		StoryTitle: storyTitle,
		Depth:      depth,
	}, true
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
