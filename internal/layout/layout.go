// Package layout decides how participant tiles are arranged in the
// composed broadcast for a given number of published streams.
package layout

// Kind is the arrangement family.
type Kind string

const (
	KindHorizontal Kind = "horizontal"
	KindBestFit    Kind = "bestFit"
)

// Threshold is the largest stream count laid out side by side.
const Threshold = 3

// HorizontalStylesheet places up to three streams in a single row.
const HorizontalStylesheet = `stream {
  float: left;
  height: 100%;
  width: 33.33%;
}`

// Config is an immutable layout choice. Stylesheet is empty for bestFit.
type Config struct {
	Kind       Kind   `json:"type"`
	Stylesheet string `json:"stylesheet,omitempty"`
}

// ForStreams returns the layout for n streams. Negative counts are treated as zero.
func ForStreams(n int) Config {
	if n > Threshold {
		return Config{Kind: KindBestFit}
	}
	return Config{Kind: KindHorizontal, Stylesheet: HorizontalStylesheet}
}

// Crosses reports whether moving from prev to next streams changes the layout kind.
func Crosses(prev, next int) bool {
	return ForStreams(prev).Kind != ForStreams(next).Kind
}

// Wrap reports whether a client should wrap its tile grid for n streams.
func Wrap(n int) bool {
	return n > Threshold
}
