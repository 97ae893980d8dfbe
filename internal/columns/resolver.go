package columns

import (
	"cmp"
	"slices"
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/rs/zerolog"
)

// MatchThreshold is the minimum fuzzy score for a header to claim a field.
const MatchThreshold = 0.80

// Resolver maps headers to canonical fields. It holds no state between calls
// and is safe for concurrent use.
type Resolver struct {
	log zerolog.Logger
}

// NewResolver creates a Resolver that traces its decisions at debug level.
func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Resolve maps headers using a silent resolver.
func Resolve(headers []string) *domain.ColumnMapping {
	return NewResolver(zerolog.Nop()).Resolve(headers)
}

// Resolve processes headers in order. An exact (case-insensitive, trimmed)
// variant match scores 1.0 and skips fuzzy matching. Otherwise the normalized
// header is scored against every variant and the best field at or above
// MatchThreshold is the candidate. A candidate replaces a field's earlier
// header only with a strictly higher score.
func (r *Resolver) Resolve(headers []string) *domain.ColumnMapping {
	m := domain.NewColumnMapping()

	for _, header := range headers {
		field, score, cleared, ok := matchHeader(header)
		if !ok {
			r.log.Debug().Str("header", header).Msg("No canonical field matched")
			continue
		}

		if len(cleared) > 1 {
			m.AmbiguousMappings[header] = cleared
			r.log.Debug().
				Str("header", header).
				Interface("fields", cleared).
				Msg("Header matched several canonical fields")
		}

		if prev, assigned := m.ConfidenceScores[field]; assigned && score <= prev {
			r.log.Debug().
				Str("header", header).
				Str("field", string(field)).
				Float64("score", score).
				Float64("existing_score", prev).
				Msg("Keeping earlier header for field")
			continue
		}

		m.SetHeader(field, header)
		m.ConfidenceScores[field] = score
		r.log.Debug().
			Str("header", header).
			Str("field", string(field)).
			Float64("score", score).
			Msg("Header assigned")
	}

	return m
}

// matchHeader finds the winning field for one header along with every field
// that qualified.
func matchHeader(header string) (best domain.CanonicalField, score float64, cleared []domain.CanonicalField, ok bool) {
	raw := strings.ToLower(strings.TrimSpace(header))
	for _, e := range lexicon {
		if slices.Contains(e.Variants, raw) {
			cleared = append(cleared, e.Field)
		}
	}
	if len(cleared) > 0 {
		return cleared[0], 1.0, cleared, true
	}

	normalized := Normalize(header)
	if normalized == "" {
		return "", 0, nil, false
	}

	for _, e := range lexicon {
		fieldScore := 0.0
		for _, v := range e.Variants {
			fieldScore = max(fieldScore, MatchScore(normalized, v))
		}
		if fieldScore < MatchThreshold {
			continue
		}
		cleared = append(cleared, e.Field)
		if fieldScore > score {
			best, score = e.Field, fieldScore
		}
	}
	return best, score, cleared, len(cleared) > 0
}

// UnmappedHeaders returns the headers the mapping does not use, in input
// order.
func UnmappedHeaders(headers []string, m *domain.ColumnMapping) []string {
	var out []string
	for _, h := range headers {
		if _, ok := m.FieldFor(h); !ok {
			out = append(out, h)
		}
	}
	return out
}

// Suggestion is a candidate field for a header with its display score.
type Suggestion struct {
	Field domain.CanonicalField `json:"field"`
	Score float64               `json:"score"`
}

// Suggestions ranks every field for header by display similarity and returns
// the best n. Used to help users fix a mapping by hand.
func Suggestions(header string, n int) []Suggestion {
	normalized := Normalize(header)
	out := make([]Suggestion, 0, len(lexicon))
	for _, e := range lexicon {
		s := Suggestion{Field: e.Field}
		for _, v := range e.Variants {
			s.Score = max(s.Score, Similarity(normalized, v))
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
