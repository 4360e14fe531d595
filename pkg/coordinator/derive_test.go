package coordinator

import (
	"testing"

	"github.com/Sternrassler/discogs-sync/pkg/cache"
	"github.com/Sternrassler/discogs-sync/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prices(values ...any) []client.PricedItem {
	items := make([]client.PricedItem, 0, len(values))
	for _, v := range values {
		switch p := v.(type) {
		case nil:
			items = append(items, client.PricedItem{})
		case float64:
			items = append(items, client.PricedItem{Price: &p})
		case int:
			f := float64(p)
			items = append(items, client.PricedItem{Price: &f})
		}
	}
	return items
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		wantOK bool
	}{
		{name: "odd count", values: []float64{10, 20, 30}, want: 20, wantOK: true},
		{name: "even count", values: []float64{10, 20, 30, 40}, want: 25, wantOK: true},
		{name: "single", values: []float64{7}, want: 7, wantOK: true},
		{name: "unsorted", values: []float64{30, 10, 20}, want: 20, wantOK: true},
		{name: "empty", values: nil, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.values)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Median(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestDerivePriceStats(t *testing.T) {
	tests := []struct {
		name  string
		items []client.PricedItem
		want  cache.PriceStats
	}{
		{
			name:  "missing and zero prices excluded",
			items: prices(5, 15, 25, nil, 0),
			want:  cache.PriceStats{Min: 5, Median: 15, Max: 25, ItemCount: 3},
		},
		{
			name:  "even count",
			items: prices(40, 10, 30, 20),
			want:  cache.PriceStats{Min: 10, Median: 25, Max: 40, ItemCount: 4},
		},
		{
			name:  "no items",
			items: nil,
			want:  cache.PriceStats{NoData: true},
		},
		{
			name:  "only unpriced items",
			items: prices(nil, 0, nil),
			want:  cache.PriceStats{NoData: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePriceStats(tt.items))
		})
	}
}

func TestPriceStatsOf(t *testing.T) {
	tests := []struct {
		name  string
		value client.CollectionValue
		want  cache.PriceStats
	}{
		{
			name:  "reported figures used as-is",
			value: client.CollectionValue{Minimum: "$0.00", Median: "$5.00", Maximum: "$10.00"},
			want:  cache.PriceStats{Min: 0, Median: 5, Max: 10},
		},
		{
			name:  "thousands separators",
			value: client.CollectionValue{Minimum: "€1,020.00", Median: "€1,530.50", Maximum: "€2,400.00"},
			want:  cache.PriceStats{Min: 1020, Median: 1530.5, Max: 2400},
		},
		{
			name:  "nothing positive",
			value: client.CollectionValue{Minimum: "$0.00", Median: "$0.00", Maximum: "n/a"},
			want:  cache.PriceStats{NoData: true},
		},
		{
			name:  "breakdown wins over figures",
			value: client.CollectionValue{Minimum: "$1.00", Median: "$2.00", Maximum: "$3.00", Items: prices(10, 30, 20)},
			want:  cache.PriceStats{Min: 10, Median: 20, Max: 30, ItemCount: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriceStatsOf(tt.value))
		})
	}
}

func TestRecordFromItem(t *testing.T) {
	raw := []byte(`{
		"title": "Tago Mago",
		"year": 1971,
		"cover_image": "https://img.discogs.com/tm.jpg",
		"artists": [{"name": "Can"}],
		"labels": [{"name": "United Artists Records", "catno": "UAS 29 211/12 X"}],
		"formats": [{"name": "Vinyl", "descriptions": ["LP", "Album"]}]
	}`)

	rec, err := recordFromItem(raw, true, 42)
	require.NoError(t, err)

	assert.Equal(t, cache.RandomRecord{
		Title:      "Can - Tago Mago",
		CatNo:      "UAS 29 211/12 X",
		CoverImage: "https://img.discogs.com/tm.jpg",
		Format:     "Vinyl (LP, Album)",
		Label:      "United Artists Records",
		Released:   1971,
		Exact:      true,
		PoolSize:   42,
	}, rec)
}
