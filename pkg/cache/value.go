package cache

import (
	"encoding/json"
	"fmt"
)

// Value is the payload of a category entry: Count, PriceStats or RandomRecord.
type Value interface {
	// Type names the variant for serialization.
	Type() string

	isValue()
}

// Count is a plain item count (collection_count, wantlist_count).
type Count struct {
	N int `json:"n"`
}

// PriceStats holds the three collection value readings derived from one fetch.
// NoData is set when no item carried a usable price; the amounts are then zero
// and must not be presented.
type PriceStats struct {
	Min       float64 `json:"min"`
	Median    float64 `json:"median"`
	Max       float64 `json:"max"`
	NoData    bool    `json:"no_data"`
	Currency  string  `json:"currency,omitempty"`
	ItemCount int     `json:"item_count"`
}

// RandomRecord is one release picked from the collection.
// Exact is false when the pick was made from a partial listing.
type RandomRecord struct {
	Title      string `json:"title"`
	CatNo      string `json:"cat_no,omitempty"`
	CoverImage string `json:"cover_image,omitempty"`
	Format     string `json:"format,omitempty"`
	Label      string `json:"label,omitempty"`
	Released   int    `json:"released,omitempty"`
	Exact      bool   `json:"exact"`
	PoolSize   int    `json:"pool_size"`
}

func (Count) Type() string        { return "count" }
func (PriceStats) Type() string   { return "price_stats" }
func (RandomRecord) Type() string { return "random_record" }

func (Count) isValue()        {}
func (PriceStats) isValue()   {}
func (RandomRecord) isValue() {}

// EncodeValue serializes a value with its type tag.
func EncodeValue(v Value) (typ string, data json.RawMessage, err error) {
	if v == nil {
		return "", nil, nil
	}
	data, err = json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", v.Type(), err)
	}
	return v.Type(), data, nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(typ string, data json.RawMessage) (Value, error) {
	switch typ {
	case "":
		return nil, nil
	case "count":
		var v Count
		err := json.Unmarshal(data, &v)
		return v, err
	case "price_stats":
		var v PriceStats
		err := json.Unmarshal(data, &v)
		return v, err
	case "random_record":
		var v RandomRecord
		err := json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", ErrInvalidEntry, typ)
	}
}
