// Package transcript fixes speech-to-text errors in domain vocabulary before
// the transcript reaches the language model.
//
// Raw STT output routinely mangles proper nouns and product terms. The
// [Corrector] aligns transcript tokens against a configured hotword list using
// Double Metaphone phonetic codes for candidate filtering and Jaro-Winkler
// similarity for ranking. Multi-word hotwords are matched via n-gram windows
// over the transcript, longest window first.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Correction records a single substitution made by [Corrector.Correct].
type Correction struct {
	// Original is the transcript span as produced by the STT provider.
	Original string

	// Corrected is the hotword that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity of the substitution (0.0-1.0).
	Confidence float64
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched hotword to be accepted. Default: 0.70.
func WithPhoneticThreshold(t float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = t }
}

// Corrector aligns transcript tokens to a fixed hotword list. It precomputes
// phonetic codes for every hotword at construction, so Correct makes no
// allocations proportional to the hotword list beyond the output. Corrector is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	hotwords []hotword
	maxWords int
}

type hotword struct {
	text   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// New creates a Corrector for the given hotword list. An empty list yields a
// corrector whose Correct is the identity.
func New(hotwords []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, h := range hotwords {
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		c.hotwords = append(c.hotwords, hotword{
			text:   strings.TrimSpace(h),
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		if len(tokens) > c.maxWords {
			c.maxWords = len(tokens)
		}
	}
	return c
}

// Correct replaces misheard hotword spans in text and returns the corrected
// text with an itemised record of every substitution. When nothing matches the
// returned text equals the input and the slice is empty.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.hotwords) == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		// Longest window first so multi-word hotwords win over partial
		// single-word matches.
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			hw, conf, ok := c.match(window)
			if !ok {
				continue
			}
			if strings.EqualFold(window, hw) {
				// Already spelled right; emit as-is without recording.
				out = append(out, strings.Fields(hw)...)
			} else {
				out = append(out, strings.Fields(hw)...)
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  hw,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	return strings.Join(out, " "), corrections
}

// match finds the best hotword for a window of transcript tokens. Phonetic
// candidates (shared Double Metaphone code) are ranked by Jaro-Winkler against
// the phonetic threshold; when none qualify, a pure similarity pass applies
// the stricter fuzzy threshold.
func (c *Corrector) match(window string) (string, float64, bool) {
	windowLower := strings.ToLower(trimPunct(window))
	if windowLower == "" {
		return window, 0, false
	}
	windowTokens := strings.Fields(windowLower)
	windowCodes := codesForTokens(windowTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, hw := range c.hotwords {
		score := bestJWScore(windowTokens, hw.tokens, windowLower, hw.lower)
		if codesOverlap(windowCodes, hw.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = hw.text, score, true
			}
		} else if !bestPhonetic {
			if score >= c.fuzzyThreshold && score > bestScore {
				best, bestScore = hw.text, score
			}
		}
	}

	if best == "" {
		return window, 0, false
	}
	return best, bestScore, true
}

// trimPunct strips leading and trailing sentence punctuation from each token
// so "Eldrinax," still matches "Eldrinax".
func trimPunct(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,!?;:\"'")
	}
	return strings.Join(fields, " ")
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore takes the higher Jaro-Winkler similarity of the full strings and
// the space-stripped strings. The space-stripped pass catches spans the STT
// split differently than the hotword ("elder nacks" vs "eldrinax"). Scoring
// whole spans rather than individual tokens keeps a window from matching a
// multi-word hotword on one shared token alone.
func bestJWScore(inputTokens, hotTokens []string, inputFull, hotFull string) float64 {
	score := matchr.JaroWinkler(inputFull, hotFull, false)

	if len(inputTokens) > 1 || len(hotTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(hotTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
