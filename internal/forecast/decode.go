package forecast

import (
	"encoding/json"
	"fmt"
	"time"

	"skybar/internal/types"
)

// apiResponse mirrors the Open-Meteo forecast response shape. Series arrive
// as parallel arrays keyed by a shared time array.
type apiResponse struct {
	Hourly     hourlyBlock   `json:"hourly"`
	Minutely15 minutelyBlock `json:"minutely_15"`
}

type hourlyBlock struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m"`
	PrecipProb    []float64 `json:"precipitation_probability"`
	Precipitation []float64 `json:"precipitation"`
	WeatherCode   []int     `json:"weather_code"`
}

type minutelyBlock struct {
	Time          []string  `json:"time"`
	Precipitation []float64 `json:"precipitation"`
	WeatherCode   []int     `json:"weather_code"`
}

// apiTimeLayout is the ISO timestamp format Open-Meteo emits with
// timezone=UTC (no zone suffix).
const apiTimeLayout = "2006-01-02T15:04"

// decodePayload parses an upstream response body into a ForecastPayload.
// Malformed JSON, mismatched series lengths, or unparseable timestamps all
// map to a bad_payload AppError.
func decodePayload(body []byte, loc types.LocationRef, fetchedAt time.Time) (*types.ForecastPayload, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewAppError(types.ErrCodeBadPayload, "failed to decode forecast response", err)
	}

	hourly, err := decodeHourly(resp.Hourly)
	if err != nil {
		return nil, err
	}
	if len(hourly) == 0 {
		return nil, types.NewAppError(types.ErrCodeBadPayload, "forecast response carries no hourly series", nil)
	}

	minutely, err := decodeMinutely(resp.Minutely15, hourly)
	if err != nil {
		return nil, err
	}

	return &types.ForecastPayload{
		Location:  loc,
		FetchedAt: fetchedAt,
		Hourly:    hourly,
		Minutely:  minutely,
	}, nil
}

func decodeHourly(b hourlyBlock) ([]types.ForecastPoint, error) {
	n := len(b.Time)
	if len(b.Temperature) != n || len(b.PrecipProb) != n ||
		len(b.Precipitation) != n || len(b.WeatherCode) != n {
		return nil, types.NewAppError(types.ErrCodeBadPayload,
			"hourly series lengths do not match the time axis", nil)
	}

	points := make([]types.ForecastPoint, 0, n)
	for i := 0; i < n; i++ {
		ts, err := parseAPITime(b.Time[i])
		if err != nil {
			return nil, err
		}
		points = append(points, types.ForecastPoint{
			Time:         ts,
			TemperatureC: b.Temperature[i],
			Bucket:       bucketFromWMO(b.WeatherCode[i]),
			// Upstream probabilities are percentages.
			PrecipProb: b.PrecipProb[i] / 100,
			// Hourly precipitation is mm over one hour, i.e. already mm/h.
			PrecipIntensity: b.Precipitation[i],
		})
	}
	return points, nil
}

// decodeMinutely parses the 15-minute precipitation series. The upstream
// carries no per-quarter-hour probability, so each point inherits the
// probability of its enclosing hour.
func decodeMinutely(b minutelyBlock, hourly []types.ForecastPoint) ([]types.ForecastPoint, error) {
	n := len(b.Time)
	if n == 0 {
		return nil, nil
	}
	if len(b.Precipitation) != n {
		return nil, types.NewAppError(types.ErrCodeBadPayload,
			"minutely series lengths do not match the time axis", nil)
	}
	hasCodes := len(b.WeatherCode) == n

	hourlyProb := make(map[time.Time]float64, len(hourly))
	hourlyBucket := make(map[time.Time]types.ConditionBucket, len(hourly))
	for _, p := range hourly {
		hour := p.Time.Truncate(time.Hour)
		hourlyProb[hour] = p.PrecipProb
		hourlyBucket[hour] = p.Bucket
	}

	points := make([]types.ForecastPoint, 0, n)
	for i := 0; i < n; i++ {
		ts, err := parseAPITime(b.Time[i])
		if err != nil {
			return nil, err
		}
		hour := ts.Truncate(time.Hour)

		bucket := hourlyBucket[hour]
		if hasCodes {
			bucket = bucketFromWMO(b.WeatherCode[i])
		}
		if bucket == "" {
			bucket = types.BucketUnknown
		}

		points = append(points, types.ForecastPoint{
			Time:       ts,
			Bucket:     bucket,
			PrecipProb: hourlyProb[hour],
			// mm over 15 minutes, scaled to mm/h.
			PrecipIntensity: b.Precipitation[i] * 4,
		})
	}
	return points, nil
}

func parseAPITime(s string) (time.Time, error) {
	ts, err := time.Parse(apiTimeLayout, s)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeBadPayload,
			fmt.Sprintf("unparseable forecast timestamp %q", s), err)
	}
	return ts.UTC(), nil
}

// bucketFromWMO maps a WMO weather interpretation code to a condition bucket.
func bucketFromWMO(code int) types.ConditionBucket {
	switch {
	case code == 0 || code == 1:
		return types.BucketClear
	case code == 2 || code == 3:
		return types.BucketCloudy
	case code == 45 || code == 48:
		return types.BucketFog
	case code >= 51 && code <= 57:
		return types.BucketRain // drizzle
	case code >= 61 && code <= 67:
		return types.BucketRain
	case code >= 71 && code <= 77:
		return types.BucketSnow
	case code >= 80 && code <= 82:
		return types.BucketRain // showers
	case code == 85 || code == 86:
		return types.BucketSnow
	case code >= 95 && code <= 99:
		return types.BucketThunder
	default:
		return types.BucketUnknown
	}
}
