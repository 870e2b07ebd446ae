package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/database"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/common/metrics"
	"ai-orchestrator/internal/models"
)

// Lookup strategies, in probe order.
const (
	StrategyDirect   = "direct"
	StrategySemantic = "semantic"
	StrategyPattern  = "pattern"
)

// KVStore is the backing store contract. database.RedisClient satisfies it;
// tests use miniredis behind the same client.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Entry is the stored cache record.
type Entry struct {
	Key          string              `json:"key"`
	Tier         string              `json:"tier"`
	Fingerprint  string              `json:"fingerprint"`
	Vector       []float64           `json:"vector,omitempty"`
	Suggestions  []models.Suggestion `json:"suggestions"`
	QualityScore float64             `json:"qualityScore"`
	Confidence   float64             `json:"confidence"`
	Tone         string              `json:"tone,omitempty"`
	Topic        string              `json:"topic,omitempty"`
	UserID       string              `json:"userId,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

// Hit describes a successful lookup.
type Hit struct {
	Entry      *Entry
	Strategy   string
	Similarity float64
}

// indexEntry is the in-memory sidecar for semantic search and LRU accounting.
// The authoritative entry lives in the backing store.
type indexEntry struct {
	key        string
	vector     []float64
	lastAccess time.Time
}

// Cache is the quality-gated response cache with three lookup strategies:
// exact fingerprint, semantic similarity, and per-user behavior patterns.
// Backend failures always degrade to a miss, never to a request failure.
type Cache struct {
	store  KVStore
	cfg    config.CacheConfig
	tiers  map[string]config.TierConfig
	log    logger.Logger
	now    func() time.Time
	track  *patternTracker

	mu    sync.Mutex
	index map[string]map[string]*indexEntry // tier -> fingerprint -> sidecar
}

func New(store KVStore, cfg config.CacheConfig, tiers map[string]config.TierConfig, log logger.Logger) *Cache {
	return &Cache{
		store: store,
		cfg:   cfg,
		tiers: tiers,
		log:   log.WithFields(map[string]interface{}{"component": "cache"}),
		now:   time.Now,
		track: newPatternTracker(cfg.PatternMinObservations, cfg.PatternBucketHours),
		index: make(map[string]map[string]*indexEntry),
	}
}

// Lookup probes direct, then semantic, then pattern. A nil Hit with nil error
// is a miss.
func (c *Cache) Lookup(ctx context.Context, req *models.Request, tier string) (*Hit, error) {
	tierCfg, ok := c.tiers[tier]
	if !ok {
		return nil, nil
	}

	fingerprint := Fingerprint(req)

	if entry := c.fetchValid(ctx, entryKey(tier, fingerprint), tierCfg, StrategyDirect); entry != nil {
		c.touch(tier, fingerprint)
		metrics.CacheLookups.WithLabelValues(StrategyDirect, "hit").Inc()
		return &Hit{Entry: entry, Strategy: StrategyDirect, Similarity: 1}, nil
	}
	metrics.CacheLookups.WithLabelValues(StrategyDirect, "miss").Inc()

	if hit := c.semanticLookup(ctx, req, tier, tierCfg); hit != nil {
		metrics.CacheLookups.WithLabelValues(StrategySemantic, "hit").Inc()
		return hit, nil
	}
	metrics.CacheLookups.WithLabelValues(StrategySemantic, "miss").Inc()

	if key, qualifies := c.track.Key(req.UserID, c.now()); qualifies {
		if entry := c.fetchValid(ctx, key, tierCfg, StrategyPattern); entry != nil {
			metrics.CacheLookups.WithLabelValues(StrategyPattern, "hit").Inc()
			return &Hit{Entry: entry, Strategy: StrategyPattern}, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(StrategyPattern, "miss").Inc()

	return nil, nil
}

// semanticLookup scans the tier's most recently used vectors for the closest
// stored request above the tier's similarity threshold. Bounding the scan to
// the hottest entries keeps lookup cost flat as the tier fills.
func (c *Cache) semanticLookup(ctx context.Context, req *models.Request, tier string, tierCfg config.TierConfig) *Hit {
	queryVec := Vectorize(req.Context)

	c.mu.Lock()
	candidates := c.recentCandidatesLocked(tier)
	bestKey := ""
	bestFingerprint := ""
	bestSim := 0.0
	for _, cand := range candidates {
		sim := Cosine(queryVec, cand.vector)
		if sim > bestSim {
			bestSim = sim
			bestKey = cand.key
			bestFingerprint = cand.fingerprint
		}
	}
	c.mu.Unlock()

	if bestKey == "" || bestSim < tierCfg.SimilarityThreshold {
		return nil
	}

	entry := c.fetchValid(ctx, bestKey, tierCfg, StrategySemantic)
	if entry == nil {
		c.dropIndex(tier, bestFingerprint)
		return nil
	}
	c.touch(tier, bestFingerprint)
	return &Hit{Entry: entry, Strategy: StrategySemantic, Similarity: bestSim}
}

type candidate struct {
	fingerprint string
	key         string
	vector      []float64
}

// recentCandidatesLocked returns the tier's SemanticCandidates most recently
// used index entries, newest first. Caller holds the lock.
func (c *Cache) recentCandidatesLocked(tier string) []candidate {
	tierIndex := c.index[tier]
	type aged struct {
		fingerprint string
		lastAccess  time.Time
	}
	entries := make([]aged, 0, len(tierIndex))
	for fp, ie := range tierIndex {
		entries = append(entries, aged{fp, ie.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.After(entries[j].lastAccess)
	})

	limit := c.cfg.SemanticCandidates
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]candidate, 0, limit)
	for _, e := range entries[:limit] {
		ie := tierIndex[e.fingerprint]
		out = append(out, candidate{fingerprint: e.fingerprint, key: ie.key, vector: ie.vector})
	}
	return out
}

// fetchValid loads and re-validates an entry. Expired or sub-threshold
// entries are deleted and reported as a miss.
func (c *Cache) fetchValid(ctx context.Context, key string, tierCfg config.TierConfig, strategy string) *Entry {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			metrics.CacheLookups.WithLabelValues(strategy, "backend_error").Inc()
			c.log.Warn("cache backend read failed, treating as miss", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Warn("cache entry corrupt, dropping", map[string]interface{}{"key": key})
		_ = c.store.Del(ctx, key)
		return nil
	}

	if c.now().After(entry.ExpiresAt) || entry.QualityScore < tierCfg.QualityThreshold {
		_ = c.store.Del(ctx, key)
		metrics.CacheLookups.WithLabelValues(strategy, "invalidated").Inc()
		return nil
	}
	return &entry
}

// Store writes a validated response to the cache. Responses below the tier's
// quality threshold are never stored; serving bad content fast is worse than
// serving nothing.
func (c *Cache) Store(ctx context.Context, req *models.Request, tier string, suggestions []models.Suggestion, qualityScore, confidence float64) error {
	tierCfg, ok := c.tiers[tier]
	if !ok {
		return nil
	}
	if qualityScore < tierCfg.QualityThreshold {
		return nil
	}

	now := c.now()
	ttl := c.dynamicTTL(tierCfg, qualityScore, confidence)
	fingerprint := Fingerprint(req)
	topic := deriveTopic(req)
	key := entryKey(tier, fingerprint)

	entry := Entry{
		Key:          key,
		Tier:         tier,
		Fingerprint:  fingerprint,
		Vector:       Vectorize(req.Context),
		Suggestions:  suggestions,
		QualityScore: qualityScore,
		Confidence:   confidence,
		Tone:         req.Tone,
		Topic:        topic,
		UserID:       req.UserID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
		c.log.Warn("cache backend write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}

	c.addToIndex(ctx, tier, fingerprint, key, entry.Vector, tierCfg)

	c.track.Observe(req.UserID, req.Tone, topic, now)
	if patternKey, qualifies := c.track.Key(req.UserID, now); qualifies {
		patternEntry := entry
		patternEntry.Key = patternKey
		patternEntry.ExpiresAt = now.Add(config.GetSeconds(c.cfg.PatternTTL))
		if patternRaw, err := json.Marshal(patternEntry); err == nil {
			_ = c.store.Set(ctx, patternKey, string(patternRaw), config.GetSeconds(c.cfg.PatternTTL))
		}
	}

	return nil
}

// dynamicTTL scales the tier base TTL by quality (up to 2x) and nudges it by
// confidence, clamped to the configured floor and ceiling.
func (c *Cache) dynamicTTL(tierCfg config.TierConfig, qualityScore, confidence float64) time.Duration {
	base := float64(tierCfg.CacheTTL)
	ttl := base * (1 + clampUnit(qualityScore))

	switch {
	case confidence > 0.9:
		ttl *= 1.3
	case confidence < 0.7:
		ttl *= 0.8
	}

	minTTL := float64(c.cfg.MinTTL)
	maxTTL := float64(c.cfg.MaxTTL)
	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return time.Duration(ttl) * time.Second
}

func (c *Cache) addToIndex(ctx context.Context, tier, fingerprint, key string, vector []float64, tierCfg config.TierConfig) {
	c.mu.Lock()
	tierIndex, ok := c.index[tier]
	if !ok {
		tierIndex = make(map[string]*indexEntry)
		c.index[tier] = tierIndex
	}
	tierIndex[fingerprint] = &indexEntry{key: key, vector: vector, lastAccess: c.now()}

	var evictKeys []string
	if tierCfg.MaxCacheEntries > 0 && len(tierIndex) > tierCfg.MaxCacheEntries {
		evictKeys = c.evictLocked(tier, tierIndex)
	}
	c.mu.Unlock()

	if len(evictKeys) > 0 {
		if err := c.store.Del(ctx, evictKeys...); err != nil {
			c.log.Warn("cache eviction delete failed", map[string]interface{}{"error": err.Error()})
		}
		metrics.CacheEvictions.WithLabelValues(tier).Add(float64(len(evictKeys)))
		c.log.Debug("evicted cache entries under size pressure", map[string]interface{}{
			"tier":    tier,
			"evicted": len(evictKeys),
		})
	}
}

// evictLocked removes the least recently used 10% of the tier index and
// returns their backing-store keys. Caller holds the lock.
func (c *Cache) evictLocked(tier string, tierIndex map[string]*indexEntry) []string {
	type aged struct {
		fingerprint string
		lastAccess  time.Time
	}
	entries := make([]aged, 0, len(tierIndex))
	for fp, ie := range tierIndex {
		entries = append(entries, aged{fp, ie.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})

	count := len(tierIndex) / 10
	if count < 1 {
		count = 1
	}

	keys := make([]string, 0, count)
	for _, e := range entries[:count] {
		keys = append(keys, tierIndex[e.fingerprint].key)
		delete(tierIndex, e.fingerprint)
	}
	return keys
}

func (c *Cache) touch(tier, fingerprint string) {
	c.mu.Lock()
	if tierIndex, ok := c.index[tier]; ok {
		if ie, ok := tierIndex[fingerprint]; ok {
			ie.lastAccess = c.now()
		}
	}
	c.mu.Unlock()
}

func (c *Cache) dropIndex(tier, fingerprint string) {
	c.mu.Lock()
	if tierIndex, ok := c.index[tier]; ok {
		delete(tierIndex, fingerprint)
	}
	c.mu.Unlock()
}

// Start runs periodic maintenance until the context is cancelled: dropping
// index sidecars whose backing entries expired and pruning idle user
// profiles.
func (c *Cache) Start(ctx context.Context) {
	interval := config.GetSeconds(c.cfg.MaintenanceInterval)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runMaintenance(ctx)
			}
		}
	}()
}

func (c *Cache) runMaintenance(ctx context.Context) {
	liveKeys, err := c.store.Keys(ctx, "cache:entry:*")
	if err != nil {
		c.log.Warn("cache maintenance scan failed", map[string]interface{}{"error": err.Error()})
		return
	}
	live := make(map[string]struct{}, len(liveKeys))
	for _, k := range liveKeys {
		live[k] = struct{}{}
	}

	dropped := 0
	c.mu.Lock()
	for _, tierIndex := range c.index {
		for fp, ie := range tierIndex {
			if _, ok := live[ie.key]; !ok {
				delete(tierIndex, fp)
				dropped++
			}
		}
	}
	c.mu.Unlock()

	prunedUsers := c.track.Prune(c.now(), time.Duration(c.cfg.PatternIdleHours)*time.Hour)

	if dropped > 0 || prunedUsers > 0 {
		c.log.Debug("cache maintenance pass complete", map[string]interface{}{
			"droppedIndexEntries": dropped,
			"prunedUserProfiles":  prunedUsers,
		})
	}
}

func entryKey(tier, fingerprint string) string {
	return fmt.Sprintf("cache:entry:%s:%s", tier, fingerprint)
}

func deriveTopic(req *models.Request) string {
	if topic, ok := req.Preferences["topic"]; ok && topic != "" {
		return topic
	}
	return "general"
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
