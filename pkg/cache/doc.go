// Package cache holds the last known good value of every polled Discogs
// category together with its fetch bookkeeping.
//
// Each category (collection_count, wantlist_count, collection_value,
// random_record) has exactly one Entry. An entry is created empty when the
// cache is built, mutated in place by Update and never removed:
//
//   - a successful fetch replaces the value and resets the failure streak
//   - a failed fetch keeps the previous value and advances FetchedAt, so a
//     failing category is retried after one refresh interval, not every tick
//   - after FailureThreshold consecutive failures the entry is presented as
//     unavailable (Entry.Available)
//
// # Basic Usage
//
//	c, err := cache.New(cache.Config{
//		Intervals: map[cache.Category]time.Duration{
//			cache.CategoryCollectionCount: 10 * time.Minute,
//		},
//	})
//
//	if c.IsStale(cache.CategoryCollectionCount, now) {
//		// fetch, then record the outcome
//		c.Update(cache.CategoryCollectionCount, cache.Count{N: 412}, nil, now)
//	}
//
// # Redis Mirror
//
// Mirror publishes entries and the rate limit status to Redis under
// discogs:<account>:<category> and discogs:<account>:quota with a TTL, for
// the status command and other readers. State is never restored from it.
//
//	mirror := cache.NewMirror(redisClient, time.Hour)
//	err := mirror.PublishEntry(ctx, "default", entry, c.FailureThreshold())
//
// # Metrics
//
//   - discogs_category_fetches_total{account,category,result}
//   - discogs_category_consecutive_failures{account,category}
//   - discogs_mirror_errors_total{operation}
package cache
