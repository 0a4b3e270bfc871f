package payment

import "testing"

func TestRequiresStrongAuth(t *testing.T) {
	regulated := []string{"DE", "FR", "NL"}

	tests := []struct {
		amount  int64
		country string
		want    bool
	}{
		{2999, "DE", false},
		{3000, "DE", false}, // threshold is exclusive
		{3001, "DE", true},
		{3001, "de", true},
		{3001, "US", false},
		{3001, "", false},
		{500000, "FR", true},
		{500000, "GB", false},
	}

	for _, tt := range tests {
		if got := RequiresStrongAuth(tt.amount, tt.country, regulated); got != tt.want {
			t.Fatalf("RequiresStrongAuth(%d, %q) = %v, want %v", tt.amount, tt.country, got, tt.want)
		}
	}
}

func TestRequiresStrongAuth_EmptyRegulatedList(t *testing.T) {
	if RequiresStrongAuth(10000, "DE", nil) {
		t.Fatalf("no regulated countries configured, expected false")
	}
}
