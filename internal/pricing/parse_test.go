package pricing

import (
	"math"
	"testing"
)

func TestExtractPrices(t *testing.T) {
	candidates := []string{"Standard_B2s", "Standard_B2ms", "Standard_D2s_v3"}

	tests := []struct {
		name string
		text string
		want map[string]float64
	}{
		{
			name: "monthly price after sku",
			text: "Standard_B2s is priced at $30.37 per month in East US.",
			want: map[string]float64{"Standard_B2s": 30.37},
		},
		{
			name: "multiple skus in one snippet",
			text: "Compare Standard_B2s at $30.37/month with Standard_B2ms at $60.74/month.",
			want: map[string]float64{"Standard_B2s": 30.37, "Standard_B2ms": 60.74},
		},
		{
			name: "hourly price converted to monthly",
			text: "Standard_D2s_v3 costs $0.096/hr pay-as-you-go.",
			want: map[string]float64{"Standard_D2s_v3": 0.096 * 730},
		},
		{
			name: "per hour phrasing",
			text: "The Standard_B2s runs $0.0416 per hour.",
			want: map[string]float64{"Standard_B2s": 0.0416 * 730},
		},
		{
			name: "case insensitive sku match",
			text: "standard_b2s: $30.37 monthly",
			want: map[string]float64{"Standard_B2s": 30.37},
		},
		{
			name: "thousands separator",
			text: "Standard_B2ms reserved for a year: $1,234.56",
			want: map[string]float64{"Standard_B2ms": 1234.56},
		},
		{
			name: "sku without nearby price skipped",
			text: "Standard_B2s is a burstable general purpose size suited to dev and test." +
				" Much later in an entirely different paragraph of unrelated marketing copy" +
				" someone eventually gets around to mentioning money, but the figure sits" +
				" far outside the scan window so nothing here should match, $99",
			want: map[string]float64{},
		},
		{
			name: "no candidates mentioned",
			text: "Azure virtual machines come in many sizes, from $5 to $5000 a month.",
			want: map[string]float64{},
		},
		{
			name: "empty text",
			text: "",
			want: map[string]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractPrices(tt.text, candidates)
			if len(got) != len(tt.want) {
				t.Fatalf("extractPrices() = %v, want %v", got, tt.want)
			}
			for sku, want := range tt.want {
				if math.Abs(got[sku]-want) > 1e-9 {
					t.Errorf("price for %s = %v, want %v", sku, got[sku], want)
				}
			}
		})
	}
}
