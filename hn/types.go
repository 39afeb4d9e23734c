package hn

// Item is a raw Hacker News item (story, comment, job, poll, pollopt).
// Items are immutable once fetched; a re-fetch replaces the whole value.
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Kids        []int  `json:"kids"`
	Parent      int    `json:"parent"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// IsStory reports whether the item is a story.
func (i *Item) IsStory() bool { return i != nil && i.Type == "story" }

// IsComment reports whether the item is a comment.
func (i *Item) IsComment() bool { return i != nil && i.Type == "comment" }
