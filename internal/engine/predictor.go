package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"spendlens/internal/warehouse"
)

// itemSeries is one (item, category) purchase history.
type itemSeries struct {
	name     string
	category string
	times    []time.Time
}

// PredictNext forecasts upcoming recurring purchases for a user. since is an
// optional lookback bound; zero means all active history. A store failure
// fails the whole call, never a partial list.
func (a *Analyzer) PredictNext(ctx context.Context, userID string, limit int, since time.Time) ([]Prediction, error) {
	if limit <= 0 {
		return []Prediction{}, nil
	}
	items, err := a.Items.ListItems(ctx, warehouse.ListItemsParams{UserID: userID, Since: since})
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*itemSeries)
	for _, it := range items {
		name := strings.TrimSpace(it.ItemName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name) + "\x00" + it.Category
		g := groups[key]
		if g == nil {
			// Items arrive newest first, so the first spelling seen wins.
			g = &itemSeries{name: name, category: it.Category}
			groups[key] = g
		}
		g.times = append(g.times, it.TS)
	}

	preds := make([]Prediction, 0, len(groups))
	for _, g := range groups {
		if p, ok := forecastSeries(g); ok {
			preds = append(preds, p)
		}
	}

	sort.Slice(preds, func(i, j int) bool {
		if !preds[i].NextTime.Equal(preds[j].NextTime) {
			return preds[i].NextTime.Before(preds[j].NextTime)
		}
		if preds[i].Confidence != preds[j].Confidence {
			return preds[i].Confidence > preds[j].Confidence
		}
		return preds[i].Item < preds[j].Item
	})
	if len(preds) > limit {
		preds = preds[:limit]
	}
	return preds, nil
}

// forecastSeries turns one purchase series into a prediction. Groups with a
// single sample, sub-daily cadence, or confidence below 0.5 yield none.
func forecastSeries(g *itemSeries) (Prediction, bool) {
	m := len(g.times)
	if m < 2 {
		return Prediction{}, false
	}
	times := make([]time.Time, m)
	copy(times, g.times)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, m-1)
	for i := 1; i < m; i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Hours()/24)
	}
	avg := mean(intervals)
	if avg < 1 {
		// Sub-daily cadence is noise, not a habit. Skipping it also keeps
		// next_time strictly after last_time when gaps collapse to zero.
		return Prediction{}, false
	}

	sampleFactor := math.Min(float64(m), 10) / 10
	regularity := clamp01(1 - stddev(intervals, avg)/avg)
	confidence := 0.2 + 0.4*sampleFactor + 0.4*regularity
	if confidence < 0.5 {
		return Prediction{}, false
	}

	last := times[m-1].UTC()
	return Prediction{
		Item:            g.name,
		Category:        g.category,
		NextTime:        last.Add(time.Duration(avg * float64(24*time.Hour))),
		LastTime:        last,
		AvgIntervalDays: round2(avg),
		Samples:         m,
		Confidence:      round3(clamp01(confidence)),
	}, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation around a known mean.
func stddev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
