package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Identity is the body of /oauth/identity.
type Identity struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	ResourceURL  string `json:"resource_url"`
	ConsumerName string `json:"consumer_name"`
}

// Pagination is the paging block of every list response.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// Folder is the body of /users/{username}/collection/folders/0.
type Folder struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Item is one collection release or want. BasicInformation is kept raw so
// exports hand out exactly what Discogs returned.
type Item struct {
	ID               int64           `json:"id"`
	InstanceID       int64           `json:"instance_id,omitempty"`
	DateAdded        string          `json:"date_added,omitempty"`
	Rating           int             `json:"rating"`
	BasicInformation json.RawMessage `json:"basic_information"`
}

// ListPage is one page of /collection/folders/0/releases or /wants.
type ListPage struct {
	Pagination Pagination
	Items      []Item
}

// DecodeListPage decodes a list body, picking the wrapper key that matches
// the resource ("releases" or "wants").
func DecodeListPage(resource Resource, body []byte) (*ListPage, error) {
	var raw struct {
		Pagination Pagination `json:"pagination"`
		Releases   []Item     `json:"releases"`
		Wants      []Item     `json:"wants"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", resource, err)
	}

	page := &ListPage{Pagination: raw.Pagination}
	switch resource {
	case ResourceCollectionReleases:
		page.Items = raw.Releases
	case ResourceWants:
		page.Items = raw.Wants
	default:
		return nil, fmt.Errorf("decode %s page: not a list resource", resource)
	}
	return page, nil
}

// Artist is a release artist.
type Artist struct {
	Name string `json:"name"`
}

// Label is a release label with its catalog number.
type Label struct {
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

// Format is a release format such as "Vinyl" with descriptions like "LP".
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty,omitempty"`
	Descriptions []string `json:"descriptions,omitempty"`
}

// BasicInformation is the release summary embedded in collection and want items.
type BasicInformation struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	CoverImage string   `json:"cover_image"`
	Thumb      string   `json:"thumb"`
	Artists    []Artist `json:"artists"`
	Labels     []Label  `json:"labels"`
	Formats    []Format `json:"formats"`
}

// ParseBasicInformation decodes the raw basic_information of an item.
func ParseBasicInformation(raw json.RawMessage) (BasicInformation, error) {
	var info BasicInformation
	if len(raw) == 0 {
		return info, fmt.Errorf("basic_information missing")
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("decode basic_information: %w", err)
	}
	return info, nil
}

// DisplayTitle returns "Artist - Title".
func (b BasicInformation) DisplayTitle() string {
	artist := "Unknown Artist"
	if len(b.Artists) > 0 && b.Artists[0].Name != "" {
		artist = b.Artists[0].Name
	}
	title := b.Title
	if title == "" {
		title = "Unknown Title"
	}
	return artist + " - " + title
}

// FormatString returns "Name (desc1, desc2)" for the first format, the bare
// name without descriptions, or "" when no format is known.
func (b BasicInformation) FormatString() string {
	if len(b.Formats) == 0 || b.Formats[0].Name == "" {
		return ""
	}
	f := b.Formats[0]
	if len(f.Descriptions) == 0 {
		return f.Name
	}
	return fmt.Sprintf("%s (%s)", f.Name, strings.Join(f.Descriptions, ", "))
}

// FirstLabel returns the first label, or a zero Label.
func (b BasicInformation) FirstLabel() Label {
	if len(b.Labels) == 0 {
		return Label{}
	}
	return b.Labels[0]
}

// PricedItem is one priced entry of a collection value breakdown.
// A nil Price means the item has no price.
type PricedItem struct {
	ReleaseID int64    `json:"release_id,omitempty"`
	Price     *float64 `json:"price"`
}

// CollectionValue is the body of /users/{username}/collection/value.
// Discogs reports formatted currency strings ("€1,234.56"); Items is filled
// when a per-item breakdown is available.
type CollectionValue struct {
	Minimum string       `json:"minimum"`
	Median  string       `json:"median"`
	Maximum string       `json:"maximum"`
	Items   []PricedItem `json:"items,omitempty"`
}

// Figures returns the three reported amounts. An amount that cannot be
// parsed is returned as zero.
func (v CollectionValue) Figures() (minimum, median, maximum float64) {
	minimum, _ = ParseCurrency(v.Minimum)
	median, _ = ParseCurrency(v.Median)
	maximum, _ = ParseCurrency(v.Maximum)
	return minimum, median, maximum
}

// Currency returns the currency symbol of the reported values.
func (v CollectionValue) Currency() string {
	for _, s := range []string{v.Minimum, v.Median, v.Maximum} {
		if sym := CurrencySymbol(s); sym != "" {
			return sym
		}
	}
	return ""
}

// ParseCurrency parses a formatted amount such as "€1,234.56" or "$12.00".
// Thousands separators and every character other than digits and the
// decimal point are dropped.
func ParseCurrency(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(s, ",", "") {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CurrencySymbol returns the non-numeric prefix of a formatted amount.
func CurrencySymbol(s string) string {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(s[:i])
}
