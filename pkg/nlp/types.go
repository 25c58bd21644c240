// Package nlp implements the NER and embedding adapter boundaries:
// narrow interfaces the core depends on, with HTTP-backed concrete
// implementations behind the same breaker/retry discipline as every
// other outbound suspension point.
package nlp

import "context"

// SpanType is the closed set of NER span types.
type SpanType string

const (
	SpanDevice SpanType = "device"
	SpanArea   SpanType = "area"
	SpanTime   SpanType = "time"
	SpanValue  SpanType = "value"
	SpanAction SpanType = "action"
)

// Span is one extracted entity mention.
type Span struct {
	Text string
	Type SpanType
}

// NERAdapter extracts entity spans from free text.
type NERAdapter interface {
	ExtractEntities(ctx context.Context, text string) ([]Span, error)
}

// EmbeddingAdapter embeds text or a token into a fixed-dimension vector
//. The core records the declared dimension with every stored
// vector and refuses to compare vectors across dimensions.
type EmbeddingAdapter interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}
