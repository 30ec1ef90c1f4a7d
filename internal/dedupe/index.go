// Package dedupe provides the in-memory duplicate index used to filter
// generated ideas against everything accepted so far.
//
// The index is an ordered, append-only sequence of accepted strings seeded
// from the persisted corpus. A candidate is a duplicate when it exactly equals
// a stored entry, or when its fuzzy similarity to any stored entry meets the
// threshold. Checks are linear in the number of entries.
//
// Design notes:
//   - No logging in the package (callers decide how/what to log)
//   - Functional options configure similarity, the fuzzy tier and threshold
//   - Processed forms are computed once, at Accept time
//   - Not safe for concurrent use; IsDuplicate and Accept are expected to
//     run in program order from one goroutine
package dedupe

// DefaultThreshold is the fuzzy score at or above which a candidate is a duplicate.
const DefaultThreshold = 90.0

// Option configures an Index.
type Option func(*config)

type config struct {
	similarity Similarity
	process    func(string) string
	fuzzy      bool
	threshold  float64
}

func defaultConfig() config {
	return config{
		similarity: SimilarityFunc(PartialRatio),
		process:    Process,
		fuzzy:      true,
		threshold:  DefaultThreshold,
	}
}

// WithSimilarity replaces the fuzzy scorer.
func WithSimilarity(s Similarity) Option {
	return func(c *config) {
		if s != nil {
			c.similarity = s
		}
	}
}

// WithProcessor replaces the canonicalization applied before fuzzy scoring.
func WithProcessor(fn func(string) string) Option {
	return func(c *config) {
		if fn != nil {
			c.process = fn
		}
	}
}

// WithFuzzy toggles the fuzzy tier. When disabled only exact matches count.
func WithFuzzy(enabled bool) Option {
	return func(c *config) { c.fuzzy = enabled }
}

// WithThreshold sets the threshold used by Check. Values outside [0,100] are ignored.
func WithThreshold(th float64) Option {
	return func(c *config) {
		if th >= 0 && th <= 100 {
			c.threshold = th
		}
	}
}

type entry struct {
	text      string
	processed string
}

// Index is the duplicate index.
type Index struct {
	cfg     config
	entries []entry
	exact   map[string]struct{}
}

// NewIndex builds an Index seeded with previously accepted ideas, in order.
func NewIndex(seed []string, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	ix := &Index{
		cfg:     cfg,
		entries: make([]entry, 0, len(seed)),
		exact:   make(map[string]struct{}, len(seed)),
	}
	for _, s := range seed {
		ix.Accept(s)
	}
	return ix
}

// IsDuplicate reports whether candidate exactly equals a stored entry or, with
// the fuzzy tier enabled, scores at least threshold against one.
func (ix *Index) IsDuplicate(candidate string, threshold float64) bool {
	if _, ok := ix.exact[candidate]; ok {
		return true
	}
	if !ix.cfg.fuzzy || len(ix.entries) == 0 {
		return false
	}
	pc := ix.cfg.process(candidate)
	for _, e := range ix.entries {
		if ix.cfg.similarity.Score(pc, e.processed) >= threshold {
			return true
		}
	}
	return false
}

// Check is IsDuplicate with the configured threshold.
func (ix *Index) Check(candidate string) bool {
	return ix.IsDuplicate(candidate, ix.cfg.threshold)
}

// Accept appends candidate to the index. Call it once per accepted idea,
// after the duplicate check.
func (ix *Index) Accept(candidate string) {
	e := entry{text: candidate}
	if ix.cfg.fuzzy {
		e.processed = ix.cfg.process(candidate)
	}
	ix.entries = append(ix.entries, e)
	ix.exact[candidate] = struct{}{}
}

// Len returns the number of stored entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Threshold returns the threshold used by Check.
func (ix *Index) Threshold() float64 { return ix.cfg.threshold }

// Entries returns a copy of the stored entries in acceptance order.
func (ix *Index) Entries() []string {
	out := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = e.text
	}
	return out
}
