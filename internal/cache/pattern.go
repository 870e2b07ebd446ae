package cache

import (
	"fmt"
	"sync"
	"time"
)

// patternTracker accumulates per-user behavior so the cache can serve
// preemptive suggestions for users with a stable tone/topic habit.
type patternTracker struct {
	minObservations int
	bucketHours     int

	mu    sync.Mutex
	users map[string]*userProfile
}

type userProfile struct {
	toneCounts   map[string]int
	topicCounts  map[string]int
	observations int
	lastSeen     time.Time
}

func newPatternTracker(minObservations, bucketHours int) *patternTracker {
	return &patternTracker{
		minObservations: minObservations,
		bucketHours:     bucketHours,
		users:           make(map[string]*userProfile),
	}
}

// Observe records one request's tone and topic for the user.
func (p *patternTracker) Observe(userID, tone, topic string, now time.Time) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.users[userID]
	if !ok {
		profile = &userProfile{
			toneCounts:  make(map[string]int),
			topicCounts: make(map[string]int),
		}
		p.users[userID] = profile
	}
	if tone != "" {
		profile.toneCounts[tone]++
	}
	if topic != "" {
		profile.topicCounts[topic]++
	}
	profile.observations++
	profile.lastSeen = now
}

// Key returns the user's pattern cache key for the current time bucket, and
// false when the user has too few observations to qualify.
func (p *patternTracker) Key(userID string, now time.Time) (string, bool) {
	if userID == "" {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.users[userID]
	if !ok || profile.observations < p.minObservations {
		return "", false
	}

	tone := topCount(profile.toneCounts)
	topic := topCount(profile.topicCounts)
	if tone == "" || topic == "" {
		return "", false
	}

	bucket := now.UTC().Hour() / p.bucketHours
	return fmt.Sprintf("cache:pattern:%s:%s:%s:%d", userID, tone, topic, bucket), true
}

// Prune drops profiles that went idle before ever qualifying and returns how
// many went. Qualified profiles survive idle gaps; a habitual user coming
// back after a quiet week keeps their preemptive key.
func (p *patternTracker) Prune(now time.Time, maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pruned := 0
	for userID, profile := range p.users {
		if profile.observations >= p.minObservations {
			continue
		}
		if now.Sub(profile.lastSeen) > maxIdle {
			delete(p.users, userID)
			pruned++
		}
	}
	return pruned
}

// topCount returns the key with the highest count, ties broken by the smaller
// key for determinism.
func topCount(counts map[string]int) string {
	best := ""
	bestCount := 0
	for k, c := range counts {
		if c > bestCount || (c == bestCount && (best == "" || k < best)) {
			best = k
			bestCount = c
		}
	}
	return best
}
