package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tbourn/go-idea-generator/internal/domain"
)

var hoursRE = regexp.MustCompile(`\d+\.?\d*`)

// PendingIdea is an accepted idea that has an id but has not been normalized.
type PendingIdea struct {
	ID    int64
	Idea  string
	Hours string
}

// ParseHours extracts the first numeric token from s. It returns NaN when s
// carries no number ("n/a", "").
func ParseHours(s string) float64 {
	tok := hoursRE.FindString(s)
	if tok == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Normalize turns pending ideas into corpus rows, in order. Idea text is
// trimmed and the hour estimate coerced with ParseHours; rows whose estimate
// has no number are kept with NaN hours.
func Normalize(pending []PendingIdea) []domain.Idea {
	out := make([]domain.Idea, 0, len(pending))
	for _, p := range pending {
		out = append(out, domain.Idea{
			ID:             p.ID,
			Idea:           strings.TrimSpace(p.Idea),
			ManualDevHours: ParseHours(p.Hours),
		})
	}
	return out
}
