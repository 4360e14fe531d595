package cache

import (
	"fmt"
	"time"
)

// Category is one polled Discogs data kind.
type Category string

const (
	CategoryCollectionCount Category = "collection_count"
	CategoryWantlistCount   Category = "wantlist_count"
	CategoryCollectionValue Category = "collection_value"
	CategoryRandomRecord    Category = "random_record"
)

// Categories returns every category in refresh order. Counts come before
// random_record so its page choice can use the current collection size.
func Categories() []Category {
	return []Category{
		CategoryCollectionCount,
		CategoryWantlistCount,
		CategoryCollectionValue,
		CategoryRandomRecord,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCollectionCount, CategoryWantlistCount, CategoryCollectionValue, CategoryRandomRecord:
		return true
	}
	return false
}

// ParseCategory converts a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// DefaultIntervals are the refresh intervals used when none are configured.
func DefaultIntervals() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryCollectionCount: 10 * time.Minute,
		CategoryWantlistCount:   10 * time.Minute,
		CategoryCollectionValue: 30 * time.Minute,
		CategoryRandomRecord:    240 * time.Minute,
	}
}
