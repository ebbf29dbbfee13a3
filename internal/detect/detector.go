// Package detect selects the single most relevant upcoming weather event
// from a rolling forecast.
//
// NextEvent is pure: wall-clock time is an explicit input and no shared
// state is read, so it is safely callable from any goroutine and
// deterministically testable. Candidates are generated independently
// (precipitation, condition shift, temperature swing), scored with a shared
// time-decayed formula, and the winner is held against the previously
// selected event with a stickiness bias to stop the surfaced event from
// flickering between near-tied candidates on every refresh.
package detect

import (
	"fmt"
	"time"

	"skybar/internal/types"
)

// Horizon is how far ahead of now the detector scans.
const Horizon = 6 * time.Hour

const (
	// stickinessFactor is how much better a new candidate must score,
	// multiplicatively, to replace a still-valid previous event. Empirical
	// tuning value, not an invariant.
	stickinessFactor = 1.2

	// tempPersistFraction is the fraction of a temperature delta that the
	// points following it must maintain, in the same direction, for the
	// swing to count. Empirical tuning value.
	tempPersistFraction = 0.8

	// prevEventGrace is how long past its start a previous event still
	// counts as current for stickiness purposes.
	prevEventGrace = 10 * time.Minute

	// persistPoints is how many following points the condition-shift and
	// temperature candidates check for persistence (fewer if the series
	// ends sooner).
	persistPoints = 3
)

// Precipitation run constants. The fine-grained series uses slightly longer
// runs and looser intensity bounds than the hourly fallback.
const (
	wetIntensityFloor = 0.1 // mm/h; raining regardless of probability

	minutelyDryRunLen    = 3
	minutelyDryIntensity = 0.05
	minutelyStopSeverity = 0.5

	hourlyDryRunLen    = 2
	hourlyDryIntensity = 0.04
	hourlyStopSeverity = 0.45

	wetRunLen = 2
)

// priority returns the scoring weight for an event kind.
func priority(kind types.EventKind) float64 {
	switch kind {
	case types.EventPrecipStart:
		return 3.0
	case types.EventPrecipStop:
		return 2.2
	case types.EventConditionShift:
		return 2.0
	default: // temperature swings
		return 1.0
	}
}

// score is the shared candidate score:
//
//	priority(kind) × (0.6 + 0.4×severity) × timeDecay(minutesUntilStart)
//
// where timeDecay = 1/(1+minutes/30), a ~30 minute half-life that favors
// events about to happen over stronger events hours away.
func score(ev *types.WeatherEvent, now time.Time) float64 {
	minutes := ev.Start.Sub(now).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	decay := 1.0 / (1.0 + minutes/30.0)
	return priority(ev.Kind) * (0.6 + 0.4*ev.Severity) * decay
}

// NextEvent returns the single next noteworthy event in the forecast, or nil
// if nothing within the horizon qualifies.
//
// prev, when non-nil and still valid (now before start+10min), is kept
// unless the best new candidate beats its recomputed score by more than the
// stickiness factor.
func NextEvent(payload *types.ForecastPayload, prev *types.WeatherEvent, now time.Time, settings types.DetectionSettings) *types.WeatherEvent {
	if !settings.Enabled || payload.Empty() {
		return nil
	}

	hourly := window(payload.Hourly, now.Truncate(time.Hour), now.Add(Horizon))
	minutely := window(payload.Minutely, now.Add(-15*time.Minute), now.Add(Horizon))

	// Candidates are evaluated in fixed order; the max below only replaces
	// on strictly greater score, so ties break toward the earlier candidate.
	candidates := []*types.WeatherEvent{
		precipCandidate(minutely, hourly, settings),
		shiftCandidate(hourly),
		tempCandidate(hourly, settings),
	}

	var best *types.WeatherEvent
	bestScore := 0.0
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if s := score(c, now); best == nil || s > bestScore {
			best, bestScore = c, s
		}
	}

	if prev != nil && now.Before(prev.Start.Add(prevEventGrace)) {
		if best == nil || bestScore <= stickinessFactor*score(prev, now) {
			return prev
		}
	}
	return best
}

// window returns the points of series within [from, to), relying on the
// series being sorted ascending.
func window(series []types.ForecastPoint, from, to time.Time) []types.ForecastPoint {
	lo := len(series)
	for i, pt := range series {
		if !pt.Time.Before(from) {
			lo = i
			break
		}
	}
	hi := lo
	for hi < len(series) && series[hi].Time.Before(to) {
		hi++
	}
	return series[lo:hi]
}

// precipCandidate detects the next precipitation start or stop. The
// fine-grained series is preferred when it has points in the horizon.
func precipCandidate(minutely, hourly []types.ForecastPoint, s types.DetectionSettings) *types.WeatherEvent {
	series := minutely
	dryRunLen, dryIntensity, stopSeverity := minutelyDryRunLen, minutelyDryIntensity, minutelyStopSeverity
	if len(series) == 0 {
		series = hourly
		dryRunLen, dryIntensity, stopSeverity = hourlyDryRunLen, hourlyDryIntensity, hourlyStopSeverity
	}
	if len(series) == 0 {
		return nil
	}

	wet := func(pt types.ForecastPoint) bool {
		return pt.PrecipProb >= s.PrecipStartThreshold || pt.PrecipIntensity >= wetIntensityFloor
	}
	dry := func(pt types.ForecastPoint) bool {
		return pt.PrecipProb <= s.PrecipStopThreshold && pt.PrecipIntensity <= dryIntensity
	}

	// Majority vote over the first up to 3 points decides the current state.
	wetCount := 0
	for i := 0; i < len(series) && i < 3; i++ {
		if wet(series[i]) {
			wetCount++
		}
	}
	currentlyWet := wetCount >= 2

	if !currentlyWet {
		// Dry now: first run of consecutive points crossing the start
		// threshold marks precipitation beginning.
		if i := firstRun(series, wetRunLen, func(pt types.ForecastPoint) bool {
			return pt.PrecipProb >= s.PrecipStartThreshold
		}); i >= 0 {
			start := series[i].Time
			return &types.WeatherEvent{
				ID:       types.EventID(types.EventPrecipStart, start),
				Kind:     types.EventPrecipStart,
				Start:    start,
				Severity: clamp01(series[i].PrecipProb),
				Title:    "Rain starting",
			}
		}
		return nil
	}

	// Wet now: first sustained dry run marks precipitation ending.
	if i := firstRun(series, dryRunLen, dry); i >= 0 {
		start := series[i].Time
		return &types.WeatherEvent{
			ID:       types.EventID(types.EventPrecipStop, start),
			Kind:     types.EventPrecipStop,
			Start:    start,
			Severity: stopSeverity,
			Title:    "Rain easing off",
		}
	}
	return nil
}

// firstRun returns the index of the first run of runLen consecutive points
// matching pred, or -1.
func firstRun(series []types.ForecastPoint, runLen int, pred func(types.ForecastPoint) bool) int {
	run := 0
	for i, pt := range series {
		if pred(pt) {
			run++
			if run == runLen {
				return i - runLen + 1
			}
		} else {
			run = 0
		}
	}
	return -1
}

// shiftCandidate detects the first persistent shift to a major condition
// bucket that differs from the current one.
func shiftCandidate(hourly []types.ForecastPoint) *types.WeatherEvent {
	if len(hourly) < 2 {
		return nil
	}
	current := hourly[0].Bucket
	for i := 1; i < len(hourly); i++ {
		b := hourly[i].Bucket
		if !b.Major() || b == current {
			continue
		}
		if !persists(hourly, i, func(pt types.ForecastPoint) bool { return pt.Bucket == b }) {
			continue
		}
		severity := 0.6
		switch {
		case b == types.BucketThunder:
			severity = 0.9
		case b.Precipitation():
			severity = 0.7
		}
		start := hourly[i].Time
		return &types.WeatherEvent{
			ID:         types.EventID(types.EventConditionShift, start),
			Kind:       types.EventConditionShift,
			Start:      start,
			Severity:   severity,
			Title:      shiftTitle(b),
			FromBucket: current,
			ToBucket:   b,
		}
	}
	return nil
}

// tempCandidate detects the first sustained temperature swing exceeding the
// configured delta within the lookback window.
func tempCandidate(hourly []types.ForecastPoint, s types.DetectionSettings) *types.WeatherEvent {
	if len(hourly) < 2 || s.TempDeltaThresholdC <= 0 {
		return nil
	}
	base := hourly[0].TemperatureC
	windowEnd := hourly[0].Time.Add(time.Duration(s.TempDeltaWindowHours) * time.Hour)

	for i := 1; i < len(hourly); i++ {
		if hourly[i].Time.After(windowEnd) {
			break
		}
		delta := hourly[i].TemperatureC - base
		if abs(delta) <= s.TempDeltaThresholdC {
			continue
		}
		// The following points must hold at least tempPersistFraction of the
		// delta in the same direction, or it's a blip.
		floor := tempPersistFraction * abs(delta)
		if !persists(hourly, i, func(pt types.ForecastPoint) bool {
			d := pt.TemperatureC - base
			return sameSign(d, delta) && abs(d) >= floor
		}) {
			continue
		}

		kind := types.EventTempRise
		title := fmt.Sprintf("Warming %+.0f°C", delta)
		if delta < 0 {
			kind = types.EventTempDrop
			title = fmt.Sprintf("Cooling %+.0f°C", delta)
		}
		start := hourly[i].Time
		return &types.WeatherEvent{
			ID:       types.EventID(kind, start),
			Kind:     kind,
			Start:    start,
			Severity: clamp01(abs(delta) / (2 * s.TempDeltaThresholdC)),
			Title:    title,
			DeltaC:   delta,
		}
	}
	return nil
}

// persists reports whether up to persistPoints points after index i all
// match pred. Points beyond the end of the series are not required.
func persists(series []types.ForecastPoint, i int, pred func(types.ForecastPoint) bool) bool {
	for j := i + 1; j <= i+persistPoints && j < len(series); j++ {
		if !pred(series[j]) {
			return false
		}
	}
	return true
}

func shiftTitle(b types.ConditionBucket) string {
	switch b {
	case types.BucketThunder:
		return "Thunderstorms moving in"
	case types.BucketSnow:
		return "Snow moving in"
	case types.BucketRain:
		return "Rain moving in"
	case types.BucketFog:
		return "Fog rolling in"
	default:
		return fmt.Sprintf("Conditions turning %s", b)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}
