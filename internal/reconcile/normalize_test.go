package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@x.com", NormalizeEmail("  Jane@X.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+1 (555) 010-2030": "+15550102030",
		"555.010.2030":      "5550102030",
		" 0044 20 7946 ":    "0044207946",
		"ext+5":             "5",
		"n/a":               "",
		"+":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestNormalizeName_PreservesCase(t *testing.T) {
	assert.Equal(t, "Jane Smith", NormalizeName("  Jane Smith\t"))
	assert.NotEqual(t, NormalizeName("jane smith"), NormalizeName("Jane Smith"))
	// NFC: decomposed "e" + combining acute equals the precomposed form.
	assert.Equal(t, NormalizeName("Ren\u00e9"), NormalizeName("Rene\u0301"))
}

func TestFoldTitle(t *testing.T) {
	assert.Equal(t, FoldTitle("Team SYNC"), FoldTitle(" team sync "))
	assert.NotEqual(t, FoldTitle("Team sync"), FoldTitle("Team syncs"))
}

func TestMoreComplete(t *testing.T) {
	tests := []struct {
		existing, incoming string
		want               bool
	}{
		{"Jane Smith", "Jane S.", false},
		{"Jane S.", "Jane Smith", true},
		{"Jane Smith", "Jane", false},
		{"Jane", "Jane Smith", true},
		{"Jane Smith", "Jane Ann Smith", true},
		{"Jane Ann Smith", "Jane Smithsonian", false},
		{"Jane Smith", "Jane Smith", false},
		{"Jane Smith", "", false},
		{"Jane Smith", "   ", false},
		{"", "Jane", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MoreComplete(tt.existing, tt.incoming), "%q <- %q", tt.existing, tt.incoming)
	}
}
