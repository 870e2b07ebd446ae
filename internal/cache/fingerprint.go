package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"ai-orchestrator/internal/models"
)

// Fingerprint derives the direct-lookup cache key material from a request.
// Normalization makes trivially different requests (case, spacing,
// punctuation) collide on purpose.
func Fingerprint(req *models.Request) string {
	h := sha256.New()
	h.Write([]byte(normalize(req.Context)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(req.Tone))))
	h.Write([]byte{0})

	if len(req.Preferences) > 0 {
		keys := make([]string, 0, len(req.Preferences))
		for k := range req.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(strings.ToLower(k)))
			h.Write([]byte{'='})
			h.Write([]byte(normalize(req.Preferences[k])))
			h.Write([]byte{0})
		}
	}

	if len(req.ImageData) > 0 {
		imgSum := sha256.Sum256(req.ImageData)
		h.Write(imgSum[:])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// normalize lowercases, drops punctuation, and collapses runs of whitespace.
func normalize(text string) string {
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
