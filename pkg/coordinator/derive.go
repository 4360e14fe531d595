package coordinator

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/client"
)

// ErrEmptyCollection is recorded on random_record when there is nothing to pick.
var ErrEmptyCollection = errors.New("collection is empty")

// Median returns the median of values: the middle element of the sorted
// values for odd counts, the mean of the two middle ones for even counts.
// It reports false for an empty slice. values is not modified.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// DerivePriceStats computes min, median and max over the priced items,
// ignoring items without a price or with a zero price. An empty result
// yields NoData.
func DerivePriceStats(items []client.PricedItem) cache.PriceStats {
	prices := make([]float64, 0, len(items))
	for _, item := range items {
		if item.Price == nil || *item.Price == 0 {
			continue
		}
		prices = append(prices, *item.Price)
	}

	median, ok := Median(prices)
	if !ok {
		return cache.PriceStats{NoData: true}
	}

	stats := cache.PriceStats{
		Min:       prices[0],
		Max:       prices[0],
		Median:    median,
		ItemCount: len(prices),
	}
	for _, p := range prices[1:] {
		if p < stats.Min {
			stats.Min = p
		}
		if p > stats.Max {
			stats.Max = p
		}
	}
	return stats
}

// PriceStatsOf returns the collection value statistics of v. An item
// breakdown is derived with DerivePriceStats; otherwise the three reported
// figures are used unchanged. NoData is set only when no figure is positive.
func PriceStatsOf(v client.CollectionValue) cache.PriceStats {
	if len(v.Items) > 0 {
		return DerivePriceStats(v.Items)
	}
	minimum, median, maximum := v.Figures()
	if minimum <= 0 && median <= 0 && maximum <= 0 {
		return cache.PriceStats{NoData: true}
	}
	return cache.PriceStats{Min: minimum, Median: median, Max: maximum}
}

// recordFromItem builds the random_record value of one basic_information.
func recordFromItem(raw json.RawMessage, exact bool, poolSize int) (cache.RandomRecord, error) {
	info, err := client.ParseBasicInformation(raw)
	if err != nil {
		return cache.RandomRecord{}, err
	}
	label := info.FirstLabel()
	return cache.RandomRecord{
		Title:      info.DisplayTitle(),
		CatNo:      label.CatNo,
		CoverImage: info.CoverImage,
		Format:     info.FormatString(),
		Label:      label.Name,
		Released:   info.Year,
		Exact:      exact,
		PoolSize:   poolSize,
	}, nil
}
