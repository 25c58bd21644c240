package patterns

import (
	"context"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Candidate is a detector's output before it is persisted: everything
// UpsertPattern needs plus the raw support count so the cross-validation
// pass can compare candidates against each other.
type Candidate struct {
	Kind        storage.PatternKind
	Anchor      string
	Metadata    storage.PatternMetadata
	Confidence  float64
	Occurrences int
}

// Detector is the shared contract: all three families consume the
// same event slice and each runs isolated from the others' failures:
// a detector that errors has its candidates skipped, never the whole
// phase.
type Detector interface {
	Name() string
	Detect(ctx context.Context, slice []events.Event, cfg Config) ([]Candidate, error)
}

// SubExplanationOf reports whether b is a strict sub-explanation of a: the
// same anchor, metadata that a implies, and a confidence no higher than
// a's. Used by the cross-validation pass to drop redundant
// finer-grained patterns once a coarser one already explains them.
func SubExplanationOf(a, b Candidate) bool {
	if a.Anchor != b.Anchor || a.Kind != b.Kind {
		return false
	}
	if b.Confidence > a.Confidence {
		return false
	}
	switch a.Kind {
	case storage.PatternKindTimeOfDay:
		if a.Metadata.TimeOfDay == nil || b.Metadata.TimeOfDay == nil {
			return false
		}
		// b is a sub-explanation of a when a's fused window fully
		// contains b's single hour and b isn't already the same window.
		return a.Metadata.TimeOfDay.WindowWidth > 1 &&
			b.Metadata.TimeOfDay.WindowWidth == 1 &&
			hourInWindow(b.Metadata.TimeOfDay.Hour, a.Metadata.TimeOfDay.Hour, a.Metadata.TimeOfDay.WindowWidth) &&
			a.Metadata.TimeOfDay.Hour != b.Metadata.TimeOfDay.Hour
	default:
		return false
	}
}

func hourInWindow(hour, windowStart, width int) bool {
	for i := 0; i < width; i++ {
		if (windowStart+i)%24 == hour {
			return true
		}
	}
	return false
}

// CrossValidate implements the cross-validation pass: remove
// patterns that are strict sub-explanations of another already-kept
// pattern.
func CrossValidate(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		dominated := false
		for j, other := range candidates {
			if i == j {
				continue
			}
			if SubExplanationOf(other, c) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, c)
		}
	}
	return kept
}
