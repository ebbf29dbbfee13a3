package types

import "time"

// ConditionBucket is the categorical weather condition for a forecast point.
type ConditionBucket string

const (
	BucketClear   ConditionBucket = "clear"
	BucketCloudy  ConditionBucket = "cloudy"
	BucketRain    ConditionBucket = "rain"
	BucketSnow    ConditionBucket = "snow"
	BucketFog     ConditionBucket = "fog"
	BucketThunder ConditionBucket = "thunder"
	BucketWind    ConditionBucket = "wind"
	BucketUnknown ConditionBucket = "unknown"
)

// Major reports whether the bucket is disruptive enough to surface as a
// condition shift (precipitation, fog, or thunder).
func (b ConditionBucket) Major() bool {
	switch b {
	case BucketRain, BucketSnow, BucketFog, BucketThunder:
		return true
	}
	return false
}

// Precipitation reports whether the bucket represents falling precipitation.
func (b ConditionBucket) Precipitation() bool {
	return b == BucketRain || b == BucketSnow
}

// ForecastPoint is one sample of a forecast series. Points are ordered by
// ascending timestamp and never mutated after decode.
//
// PrecipProb is a probability in [0,1]; PrecipIntensity is mm/h. Series that
// do not carry a field leave it at zero.
type ForecastPoint struct {
	Time            time.Time       `json:"time"`
	TemperatureC    float64         `json:"temperature_c"`
	Bucket          ConditionBucket `json:"bucket"`
	PrecipProb      float64         `json:"precip_probability"`
	PrecipIntensity float64         `json:"precip_intensity_mmh"`
}

// LocationRef identifies the forecast location.
type LocationRef struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ForecastPayload is one immutable fetch result: an hourly series and, when
// the upstream provides one, a finer-grained precipitation series.
type ForecastPayload struct {
	Location  LocationRef     `json:"location"`
	FetchedAt time.Time       `json:"fetched_at"`
	Hourly    []ForecastPoint `json:"hourly"`
	// Minutely is the 15-minute precipitation series. May be empty; consumers
	// fall back to Hourly.
	Minutely []ForecastPoint `json:"minutely,omitempty"`
}

// Empty reports whether the payload carries no usable points.
func (p *ForecastPayload) Empty() bool {
	return p == nil || (len(p.Hourly) == 0 && len(p.Minutely) == 0)
}
