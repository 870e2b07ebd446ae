package quality

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"
)

// Deduplicator rejects candidates that repeat something already kept in the
// current batch or served recently. Exact matches are caught by hash on the
// normalized text; near-duplicates by Jaccard word overlap.
type Deduplicator struct {
	threshold float64

	mu         sync.Mutex
	recent     []string // normalized texts, oldest first
	recentSet  map[string]struct{}
	windowSize int
}

func NewDeduplicator(threshold float64, windowSize int) *Deduplicator {
	return &Deduplicator{
		threshold:  threshold,
		recentSet:  make(map[string]struct{}),
		windowSize: windowSize,
	}
}

// IsDuplicate reports whether text repeats anything in kept or in the recent
// window.
func (d *Deduplicator) IsDuplicate(text string, kept []string) bool {
	norm := NormalizeText(text)
	words := wordSet(norm)

	for _, other := range kept {
		otherNorm := NormalizeText(other)
		if norm == otherNorm {
			return true
		}
		if jaccard(words, wordSet(otherNorm)) >= d.threshold {
			return true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recentSet[hashText(norm)]; ok {
		return true
	}
	for _, otherNorm := range d.recent {
		if jaccard(words, wordSet(otherNorm)) >= d.threshold {
			return true
		}
	}
	return false
}

// Observe records a served text into the rolling window.
func (d *Deduplicator) Observe(text string) {
	norm := NormalizeText(text)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recentSet[hashText(norm)]; ok {
		return
	}
	d.recent = append(d.recent, norm)
	d.recentSet[hashText(norm)] = struct{}{}
	if len(d.recent) > d.windowSize {
		evicted := d.recent[0]
		d.recent = d.recent[1:]
		delete(d.recentSet, hashText(evicted))
	}
}

// NormalizeText lowercases, strips punctuation, and collapses whitespace so
// trivially different texts compare equal.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func hashText(norm string) string {
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func wordSet(norm string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(norm) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over word sets. Two empty sets count as
// identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
