package dedupe

import (
	"math/bits"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Similarity scores how alike two strings are on a 0..100 scale.
type Similarity interface {
	Score(a, b string) float64
}

// SimilarityFunc adapts an ordinary function to the Similarity interface.
type SimilarityFunc func(a, b string) float64

// Score calls f(a, b).
func (f SimilarityFunc) Score(a, b string) float64 { return f(a, b) }

// Process returns the canonical form used for fuzzy comparison: Unicode NFC,
// case-folded, with runs of whitespace collapsed to one space and trimmed.
func Process(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// PartialRatio returns the best similarity between the shorter string and any
// equal-length window of the longer one. Similarity of two equal-length
// strings is 2*LCS/(len(a)+len(b))*100, the normalized indel similarity.
//
// Two empty strings score 100; one empty string scores 0.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	m, n := len(ra), len(rb)
	if m == 0 {
		if n == 0 {
			return 100
		}
		return 0
	}

	pm := newPattern(ra)
	best := 0
	for start := 0; start+m <= n; start++ {
		l := pm.lcs(rb[start : start+m])
		if l > best {
			best = l
			if best == m {
				break
			}
		}
	}
	return float64(2*best) / float64(2*m) * 100
}

// pattern holds per-rune match bitmasks for bit-parallel LCS (Hyyrö).
type pattern struct {
	m      int
	blocks int
	masks  map[rune][]uint64
}

func newPattern(p []rune) *pattern {
	blocks := (len(p) + 63) / 64
	masks := make(map[rune][]uint64, len(p))
	for i, r := range p {
		v, ok := masks[r]
		if !ok {
			v = make([]uint64, blocks)
			masks[r] = v
		}
		v[i/64] |= 1 << uint(i%64)
	}
	return &pattern{m: len(p), blocks: blocks, masks: masks}
}

// lcs returns the length of the longest common subsequence of the pattern and t.
func (p *pattern) lcs(t []rune) int {
	v := make([]uint64, p.blocks)
	for i := range v {
		v[i] = ^uint64(0)
	}
	for _, r := range t {
		pm, ok := p.masks[r]
		if !ok {
			continue
		}
		var carry uint64
		for i := range v {
			u := v[i] & pm[i]
			var sum uint64
			sum, carry = bits.Add64(v[i], u, carry)
			v[i] = sum | (v[i] - u)
		}
	}

	zeros := 0
	for i := range v {
		w := v[i]
		if i == p.blocks-1 && p.m%64 != 0 {
			w |= ^uint64(0) << uint(p.m%64)
		}
		zeros += 64 - bits.OnesCount64(w)
	}
	return zeros
}
