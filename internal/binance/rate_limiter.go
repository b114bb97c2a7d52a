package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxWeight is the USD-M futures request weight allowance per minute.
const DefaultMaxWeight = 2400

const (
	headerUsedWeight1m = "X-Mbx-Used-Weight-1m"
	headerRetryAfter   = "Retry-After"

	// weightWarnPct is the usage above which every observation logs a warning.
	weightWarnPct = 80.0

	defaultBanBackoff = time.Minute
)

// WeightStatus is a point-in-time view of the exchange's rate limit counters.
type WeightStatus struct {
	UsedWeight  int       `json:"used_weight"`
	MaxWeight   int       `json:"max_weight"`
	UsagePct    float64   `json:"usage_pct"`
	ObservedAt  time.Time `json:"observed_at"`
	BannedUntil time.Time `json:"banned_until,omitempty"`
}

// WeightTracker records the weight the exchange reports on each response and
// any 418/429 back-off it asks for. It never delays or refuses a request:
// calls stay one-shot and a rate limit rejection is returned to the caller
// as an UpstreamError like any other.
type WeightTracker struct {
	mu sync.RWMutex

	maxWeight   int
	usedWeight  int
	observedAt  time.Time
	bannedUntil time.Time

	logger zerolog.Logger
	now    func() time.Time
}

// NewWeightTracker creates a tracker. A non-positive maxWeight uses DefaultMaxWeight.
func NewWeightTracker(maxWeight int, logger zerolog.Logger) *WeightTracker {
	if maxWeight <= 0 {
		maxWeight = DefaultMaxWeight
	}
	return &WeightTracker{
		maxWeight: maxWeight,
		logger:    logger,
		now:       time.Now,
	}
}

// Observe updates the counters from one exchange response.
func (w *WeightTracker) Observe(statusCode int, header http.Header) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if v := header.Get(headerUsedWeight1m); v != "" {
		if used, err := strconv.Atoi(v); err == nil {
			w.usedWeight = used
			w.observedAt = now
		}
	}

	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
		backoff := defaultBanBackoff
		if secs, err := strconv.Atoi(header.Get(headerRetryAfter)); err == nil && secs > 0 {
			backoff = time.Duration(secs) * time.Second
		}
		w.bannedUntil = now.Add(backoff)
		w.logger.Warn().
			Int("status", statusCode).
			Time("banned_until", w.bannedUntil).
			Msg("Exchange rate limit hit")
		return
	}

	if pct := w.usagePct(); pct > weightWarnPct {
		w.logger.Warn().
			Int("used_weight", w.usedWeight).
			Int("max_weight", w.maxWeight).
			Float64("usage_pct", pct).
			Msg("Exchange request weight close to limit")
	}
}

// Status returns the last observed counters.
func (w *WeightTracker) Status() WeightStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := WeightStatus{
		UsedWeight: w.usedWeight,
		MaxWeight:  w.maxWeight,
		UsagePct:   w.usagePct(),
		ObservedAt: w.observedAt,
	}
	if w.now().Before(w.bannedUntil) {
		status.BannedUntil = w.bannedUntil
	}
	return status
}

// Health fails while the exchange has asked us to back off.
func (w *WeightTracker) Health(_ context.Context) error {
	status := w.Status()
	if !status.BannedUntil.IsZero() {
		return fmt.Errorf("exchange rate limited until %s", status.BannedUntil.Format(time.RFC3339))
	}
	return nil
}

func (w *WeightTracker) usagePct() float64 {
	return float64(w.usedWeight) / float64(w.maxWeight) * 100
}
