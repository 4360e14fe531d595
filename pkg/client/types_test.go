package client

import (
	"encoding/json"
	"testing"
)

func TestDecodeListPage(t *testing.T) {
	body := []byte(`{
		"pagination": {"page": 2, "pages": 5, "per_page": 100, "items": 450},
		"releases": [{"id": 1, "basic_information": {"title": "Blue"}}],
		"wants": [{"id": 2, "basic_information": {"title": "Red"}}, {"id": 3, "basic_information": {"title": "Green"}}]
	}`)

	tests := []struct {
		name      string
		resource  Resource
		wantItems int
		wantErr   bool
	}{
		{name: "releases", resource: ResourceCollectionReleases, wantItems: 1},
		{name: "wants", resource: ResourceWants, wantItems: 2},
		{name: "not a list", resource: ResourceIdentity, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodeListPage(tt.resource, body)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeListPage() error = %v", err)
			}
			if len(page.Items) != tt.wantItems {
				t.Errorf("len(Items) = %d, want %d", len(page.Items), tt.wantItems)
			}
			if page.Pagination.Pages != 5 || page.Pagination.Items != 450 {
				t.Errorf("Pagination = %+v", page.Pagination)
			}
		})
	}
}

func TestBasicInformation_Presentation(t *testing.T) {
	raw := json.RawMessage(`{
		"title": "Kind of Blue",
		"year": 1959,
		"cover_image": "https://img.discogs.com/kob.jpg",
		"artists": [{"name": "Miles Davis"}],
		"labels": [{"name": "Columbia", "catno": "CL 1355"}],
		"formats": [{"name": "Vinyl", "descriptions": ["LP", "Album", "Mono"]}]
	}`)

	info, err := ParseBasicInformation(raw)
	if err != nil {
		t.Fatalf("ParseBasicInformation() error = %v", err)
	}

	if got := info.DisplayTitle(); got != "Miles Davis - Kind of Blue" {
		t.Errorf("DisplayTitle() = %q", got)
	}
	if got := info.FormatString(); got != "Vinyl (LP, Album, Mono)" {
		t.Errorf("FormatString() = %q", got)
	}
	if got := info.FirstLabel(); got.Name != "Columbia" || got.CatNo != "CL 1355" {
		t.Errorf("FirstLabel() = %+v", got)
	}
}

func TestBasicInformation_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		info       BasicInformation
		wantTitle  string
		wantFormat string
	}{
		{
			name:       "empty",
			info:       BasicInformation{},
			wantTitle:  "Unknown Artist - Unknown Title",
			wantFormat: "",
		},
		{
			name:       "format without descriptions",
			info:       BasicInformation{Title: "Single", Formats: []Format{{Name: "CD"}}},
			wantTitle:  "Unknown Artist - Single",
			wantFormat: "CD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.DisplayTitle(); got != tt.wantTitle {
				t.Errorf("DisplayTitle() = %q, want %q", got, tt.wantTitle)
			}
			if got := tt.info.FormatString(); got != tt.wantFormat {
				t.Errorf("FormatString() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

func TestParseBasicInformation_Missing(t *testing.T) {
	if _, err := ParseBasicInformation(nil); err == nil {
		t.Error("Expected error for missing basic_information")
	}
}

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{input: "€1,234.56", want: 1234.56, wantOK: true},
		{input: "$12.00", want: 12, wantOK: true},
		{input: "£0.99", want: 0.99, wantOK: true},
		{input: "A$ 7", want: 7, wantOK: true},
		{input: "", wantOK: false},
		{input: "n/a", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCurrency(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseCurrency(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseCurrency(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrencySymbol(t *testing.T) {
	tests := map[string]string{
		"€1,234.56": "€",
		"$12.00":    "$",
		"A$ 7":      "A$",
		"42":        "",
		"":          "",
	}

	for input, want := range tests {
		if got := CurrencySymbol(input); got != want {
			t.Errorf("CurrencySymbol(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCollectionValue_Figures(t *testing.T) {
	tests := []struct {
		name  string
		value CollectionValue
		want  [3]float64
	}{
		{
			name:  "all reported",
			value: CollectionValue{Minimum: "€10.00", Median: "€20.00", Maximum: "€1,030.00"},
			want:  [3]float64{10, 20, 1030},
		},
		{
			name:  "zero minimum kept in place",
			value: CollectionValue{Minimum: "$0.00", Median: "$5.00", Maximum: "$10.00"},
			want:  [3]float64{0, 5, 10},
		},
		{
			name:  "unparsable amount",
			value: CollectionValue{Minimum: "n/a", Median: "$5.00", Maximum: ""},
			want:  [3]float64{0, 5, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minimum, median, maximum := tt.value.Figures()
			if got := [3]float64{minimum, median, maximum}; got != tt.want {
				t.Errorf("Figures() = %v, want %v", got, tt.want)
			}
		})
	}

	v := CollectionValue{Minimum: "€10.00"}
	if v.Currency() != "€" {
		t.Errorf("Currency() = %q, want €", v.Currency())
	}
}
