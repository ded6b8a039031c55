// Package normalize canonicalizes free-form text into safe, deterministic
// identifiers used as metric path segments.
package normalize

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultCacheSize bounds the memo cache when no size is configured.
	DefaultCacheSize = 1024
)

var (
	combiningMarks = runes.In(unicode.Mn)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	hyphenRun      = regexp.MustCompile(`-{2,}`)
)

// Options configures a Normalizer.
type Options struct {
	// CacheSize bounds the number of memoized inputs. Zero means DefaultCacheSize.
	CacheSize int
	// CacheTTL optionally expires memoized entries. Zero means no expiry.
	CacheTTL time.Duration
}

// Normalizer memoizes a pure normalization function behind a bounded,
// thread-safe LRU cache. The zero value is not usable; construct with New.
type Normalizer struct {
	cache  *lru.LRU[string, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Normalizer with its own memo cache.
func New(opts Options) *Normalizer {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Normalizer{
		cache: lru.NewLRU[string, string](size, nil, opts.CacheTTL),
	}
}

// Normalize canonicalizes text: trim, strip diacritics, split camelCase
// boundaries with hyphens, lowercase, turn whitespace runs into single
// hyphens, collapse repeated hyphens and trim the ends. Idempotent.
func (n *Normalizer) Normalize(text string) string {
	if v, ok := n.cache.Get(text); ok {
		n.hits.Add(1)
		return v
	}
	n.misses.Add(1)

	v := normalize(text)
	n.cache.Add(text, v)
	return v
}

// Metrics reports memo cache hit/miss counts since construction.
func (n *Normalizer) Metrics() (hits, misses int64) {
	return n.hits.Load(), n.misses.Load()
}

// Len reports the number of memoized entries.
func (n *Normalizer) Len() int {
	return n.cache.Len()
}

func normalize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}

	s = stripDiacritics(s)

	// Split camelCase: hyphen wherever a lowercase letter or digit is
	// followed by an uppercase letter.
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteRune('-')
		}
		b.WriteRune(r)
		prev = r
	}

	s = strings.ToLower(b.String())
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func stripDiacritics(s string) string {
	// The chain carries per-use state, so it is built per call; the
	// rune set is shared.
	t := transform.Chain(norm.NFD, runes.Remove(combiningMarks), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
