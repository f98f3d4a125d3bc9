package afcp

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// AdmissionConfig parameterizes the per-client admission controller.
type AdmissionConfig struct {
	WindowLength time.Duration
	MaxRequests  int
	Burst        float64
}

// DefaultAdmissionConfig matches the defaults in spec §6.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		WindowLength: 60 * time.Second,
		MaxRequests:  100,
		Burst:        20,
	}
}

// Decision is the result of an admission Check or Peek.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // only meaningful when !Allowed
}

// clientRecord is the per-client admission state, keyed internally by an
// opaque hash of the caller-supplied client id rather than the id itself.
type clientRecord struct {
	windowStart time.Time
	requests    int
	tokens      float64
	lastRefill  time.Time
}

const admissionShardCount = 32

type admissionShard struct {
	mu      sync.Mutex
	records map[uint64]*clientRecord
}

// AdmissionController combines a sliding fixed-size window with a token
// bucket, sharded by hashed client id to reduce lock contention across
// unrelated clients.
type AdmissionController struct {
	cfg    AdmissionConfig
	clock  Clock
	shards [admissionShardCount]*admissionShard

	metrics *MetricsExporter // optional, set by ControlPlane; nil-safe
}

// NewAdmissionController constructs a controller with cfg, defaulting
// zero fields to DefaultAdmissionConfig.
func NewAdmissionController(cfg AdmissionConfig, clock Clock) *AdmissionController {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = DefaultAdmissionConfig().WindowLength
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultAdmissionConfig().MaxRequests
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultAdmissionConfig().Burst
	}
	if clock == nil {
		clock = SystemClock
	}
	ac := &AdmissionController{cfg: cfg, clock: clock}
	for i := range ac.shards {
		ac.shards[i] = &admissionShard{records: make(map[uint64]*clientRecord)}
	}
	return ac
}

func opaqueKey(clientID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(clientID))
	return h.Sum64()
}

func (a *AdmissionController) shardFor(key uint64) *admissionShard {
	return a.shards[key%admissionShardCount]
}

// refill advances the token bucket in place, per spec §4.2 step 3.
func (a *AdmissionController) refill(rec *clientRecord, now time.Time) {
	elapsed := now.Sub(rec.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	windowSeconds := a.cfg.WindowLength.Seconds()
	tokensToAdd := math.Floor(elapsed * a.cfg.Burst / windowSeconds)
	if tokensToAdd > 0 {
		rec.tokens = math.Min(a.cfg.Burst, rec.tokens+tokensToAdd)
		rec.lastRefill = now
	}
}

// resetWindowIfDue rolls the sliding window over, per spec §4.2 step 4.
func (a *AdmissionController) resetWindowIfDue(rec *clientRecord, now time.Time) {
	if !rec.windowStart.Add(a.cfg.WindowLength).After(now) {
		rec.requests = 0
		rec.windowStart = now
	}
}

func (a *AdmissionController) newRecord(now time.Time) *clientRecord {
	return &clientRecord{
		windowStart: now,
		requests:    0,
		tokens:      a.cfg.Burst,
		lastRefill:  now,
	}
}

// Check evaluates and, if admissible, consumes one unit of admission for clientID.
func (a *AdmissionController) Check(clientID string) Decision {
	now := a.clock.Now()
	key := opaqueKey(clientID)
	shard := a.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	if !ok {
		rec = a.newRecord(now)
		shard.records[key] = rec
	}

	a.refill(rec, now)
	a.resetWindowIfDue(rec, now)

	windowOK := rec.requests < a.cfg.MaxRequests
	tokensOK := rec.tokens >= 1

	decision := Decision{
		Remaining: maxInt(0, a.cfg.MaxRequests-rec.requests),
		ResetAt:   rec.windowStart.Add(a.cfg.WindowLength),
	}

	if windowOK && tokensOK {
		rec.requests++
		rec.tokens--
		decision.Allowed = true
		decision.Remaining = maxInt(0, a.cfg.MaxRequests-rec.requests)
		return decision
	}

	decision.Allowed = false
	decision.RetryAfter = a.retryAfter(rec, now, windowOK)
	if a.metrics != nil {
		if !windowOK {
			a.metrics.recordAdmissionRejection("window")
		} else {
			a.metrics.recordAdmissionRejection("tokens")
		}
	}
	return decision
}

// retryAfter estimates how long the caller should wait. The fairness
// contract in spec §4.2 only requires retryAfter >= 1s when beyond burst.
// When the window is exhausted it reports the time until the window
// resets; when only tokens are short it reports one token's refill
// interval (WindowLength / Burst). Both are floored at 1s.
func (a *AdmissionController) retryAfter(rec *clientRecord, now time.Time, windowOK bool) time.Duration {
	windowWait := rec.windowStart.Add(a.cfg.WindowLength).Sub(now)
	if windowOK {
		// Token-starved only: time until one more token accrues.
		windowSeconds := a.cfg.WindowLength.Seconds()
		secondsPerToken := windowSeconds / a.cfg.Burst
		tokenWait := time.Duration(secondsPerToken * float64(time.Second))
		if tokenWait < time.Second {
			tokenWait = time.Second
		}
		return tokenWait
	}
	if windowWait < time.Second {
		return time.Second
	}
	return windowWait
}

// Peek reports what Check would do without consuming or creating a record.
func (a *AdmissionController) Peek(clientID string) Decision {
	now := a.clock.Now()
	key := opaqueKey(clientID)
	shard := a.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	if !ok {
		return Decision{
			Allowed:   true,
			Remaining: a.cfg.MaxRequests,
			ResetAt:   now.Add(a.cfg.WindowLength),
		}
	}

	// Peek must not mutate state, so project refill/reset onto a copy.
	proj := *rec
	a.refill(&proj, now)
	a.resetWindowIfDue(&proj, now)

	windowOK := proj.requests < a.cfg.MaxRequests
	tokensOK := proj.tokens >= 1

	decision := Decision{
		Allowed:   windowOK && tokensOK,
		Remaining: maxInt(0, a.cfg.MaxRequests-proj.requests),
		ResetAt:   proj.windowStart.Add(a.cfg.WindowLength),
	}
	if !decision.Allowed {
		decision.RetryAfter = a.retryAfter(&proj, now, windowOK)
	}
	return decision
}

// Reset removes clientID's record entirely.
func (a *AdmissionController) Reset(clientID string) {
	key := opaqueKey(clientID)
	shard := a.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.records, key)
}

// GC purges records whose window started more than two window lengths ago.
// Intended to run on a timer at an interval >= WindowLength.
func (a *AdmissionController) GC() {
	now := a.clock.Now()
	cutoff := now.Add(-2 * a.cfg.WindowLength)
	for _, shard := range a.shards {
		shard.mu.Lock()
		for key, rec := range shard.records {
			if rec.windowStart.Before(cutoff) {
				delete(shard.records, key)
			}
		}
		shard.mu.Unlock()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
