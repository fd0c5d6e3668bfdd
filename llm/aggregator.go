package llm

import "strings"

// Aggregator folds streamed deltas into a growing response. Every snapshot it
// returns has the previous snapshot as a prefix.
type Aggregator struct {
	buf strings.Builder
}

// Fold appends delta and returns the full text accumulated so far
func (a *Aggregator) Fold(delta string) string {
	a.buf.WriteString(delta)
	return a.buf.String()
}

// Text returns the accumulated text
func (a *Aggregator) Text() string {
	return a.buf.String()
}

// Reset empties the buffer for a new turn
func (a *Aggregator) Reset() {
	a.buf.Reset()
}
