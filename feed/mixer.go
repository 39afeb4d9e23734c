package feed

// DefaultStoryRatio is the probability of drawing a story over a comment at
// each step of the mix while both pools are non-empty.
const DefaultStoryRatio = 0.6

// Item is one entry of a mixed feed: exactly one of Story or Comment is set.
type Item struct {
	Story   *Story   `json:"story,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

// lcg is a Park–Miller linear-congruential generator. Seed-reproducible:
// the same seed yields the same draw sequence on every run.
type lcg struct {
	state int64
}

func newLCG(seed int64) *lcg {
	s := seed % 2147483647
	if s <= 0 {
		s += 2147483646
	}
	return &lcg{state: s}
}

// next returns a uniform value in (0, 1).
func (g *lcg) next() float64 {
	g.state = g.state * 16807 % 2147483647
	return float64(g.state-1) / 2147483646
}

// shuffled returns a Fisher–Yates shuffle of items driven by g. The input is
// not modified.
func shuffled[T any](items []T, g *lcg) []T {
	out := append([]T(nil), items...)
	for i := len(out) - 1; i > 0; i-- {
		j := int(g.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Mix interleaves stories and comments into a single feed. The generator
// draws happen in a fixed order — story shuffle, comment shuffle, then one
// draw per emitted item — so the output is fully determined by the seed and
// the input lists. When one pool is empty the other is drained regardless of
// the draw.
func Mix(stories []Story, comments []Comment, seed int64, storyRatio float64) []Item {
	g := newLCG(seed)
	ss := shuffled(stories, g)
	cs := shuffled(comments, g)

	out := make([]Item, 0, len(ss)+len(cs))
	for len(ss) > 0 || len(cs) > 0 {
		v := g.next()
		if (v < storyRatio && len(ss) > 0) || len(cs) == 0 {
			out = append(out, Item{Story: &ss[0]})
			ss = ss[1:]
		} else {
			out = append(out, Item{Comment: &cs[0]})
			cs = cs[1:]
		}
	}
	return out
}
