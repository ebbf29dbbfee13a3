package forecast

import (
	"context"
	"log/slog"
	"time"

	"skybar/internal/types"
)

// minRequestSpacing throttles opportunistic refresh requests. The periodic
// cadence is not subject to it.
const minRequestSpacing = 10 * time.Minute

// RefresherConfig holds the Refresher's collaborators.
type RefresherConfig struct {
	Source   types.ForecastSource
	Location types.LocationRef
	Interval time.Duration
	Clock    types.Clock
	// Cache is optional; when set, every successful fetch is snapshotted.
	Cache *Cache
	// OnPayload receives every successfully fetched payload. Called from
	// the refresher goroutine.
	OnPayload func(*types.ForecastPayload)
	Logger    *slog.Logger
}

// Refresher drives the forecast source: a fixed periodic cadence plus
// opportunistic refresh requests from the slot orchestrator. At most one
// fetch is in flight at a time, and fetch cancellation during shutdown is
// absorbed silently.
type Refresher struct {
	source    types.ForecastSource
	location  types.LocationRef
	interval  time.Duration
	clock     types.Clock
	cache     *Cache
	onPayload func(*types.ForecastPayload)
	logger    *slog.Logger

	requests  chan struct{}
	lastFetch time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		source:    cfg.Source,
		location:  cfg.Location,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		cache:     cfg.Cache,
		onPayload: cfg.OnPayload,
		logger:    logger,
		requests:  make(chan struct{}, 1),
	}
}

// RequestRefresh asks for an out-of-cadence fetch. Non-blocking; requests
// arriving while one is already queued coalesce.
func (r *Refresher) RequestRefresh() {
	select {
	case r.requests <- struct{}{}:
	default:
	}
}

// Run fetches once immediately, then serves the periodic cadence and
// opportunistic requests until ctx is cancelled. Always returns nil.
func (r *Refresher) Run(ctx context.Context) error {
	r.refresh(ctx, "startup")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refresh(ctx, "periodic")
		case <-r.requests:
			if r.clock.Now().Sub(r.lastFetch) < minRequestSpacing {
				continue
			}
			r.refresh(ctx, "requested")
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, reason string) {
	payload, err := r.source.Fetch(ctx, r.location)
	if err != nil {
		if types.IsCancelled(err) {
			return
		}
		r.logger.Warn("forecast refresh failed", "reason", reason, "error", err)
		return
	}

	r.lastFetch = r.clock.Now()
	r.logger.Debug("forecast refreshed",
		"reason", reason,
		"hourly_points", len(payload.Hourly),
		"minutely_points", len(payload.Minutely),
	)

	if r.cache != nil {
		if err := r.cache.Save(payload); err != nil {
			r.logger.Warn("forecast cache write failed", "error", err)
		}
	}
	if r.onPayload != nil {
		r.onPayload(payload)
	}
}
