package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

func newTestNormalizer() *DataNormalizer {
	return NewDataNormalizer(newTestLogger())
}

// TestSanitizeName tests name canonicalization
func TestSanitizeName(t *testing.T) {
	normalizer := newTestNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Already canonical", "Golden Sixty", "Golden Sixty"},
		{"Uppercase", "GOLDEN SIXTY", "Golden Sixty"},
		{"Lowercase", "golden sixty", "Golden Sixty"},
		{"Mixed case", "gOlDeN sIxTy", "Golden Sixty"},
		{"Extra spaces", "  golden   sixty  ", "Golden Sixty"},
		{"Tabs and newlines", "golden\tsixty\n", "Golden Sixty"},
		{"Single word", "beauty", "Beauty"},
		{"Empty", "", ""},
		{"Whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizer.SanitizeName(tt.input))
		})
	}
}

// TestNormalizeRaceDate tests truncation to midnight UTC
func TestNormalizeRaceDate(t *testing.T) {
	normalizer := newTestNormalizer()

	hkt := time.FixedZone("HKT", 8*3600)
	in := time.Date(2024, 6, 1, 15, 30, 45, 123, hkt)

	got := normalizer.NormalizeRaceDate(in)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

// TestParseRaceDate tests the accepted date layouts
func TestParseRaceDate(t *testing.T) {
	normalizer := newTestNormalizer()

	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ISO layout", "2024-06-01", false},
		{"Compact layout", "20240601", false},
		{"Slash layout", "2024/06/01", false},
		{"Padded input", "  2024-06-01 ", false},
		{"Day first", "01-06-2024", true},
		{"Garbage", "not a date", true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizer.ParseRaceDate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// TestParseNumber tests numeric parsing with spreadsheet leftovers
func TestParseNumber(t *testing.T) {
	normalizer := newTestNormalizer()

	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"Plain integer", "126", 126, false},
		{"Decimal", "6.5", 6.5, false},
		{"Padded", "  6.5  ", 6.5, false},
		{"Thousand separator", "1,234", 1234, false},
		{"Separator and decimals", "1,234.5", 1234.5, false},
		{"Negative", "-5", -5, false},
		{"Dash means no data", "-", 0, true},
		{"En dash means no data", "–", 0, true},
		{"Empty", "", 0, true},
		{"Garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizer.ParseNumber(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// TestParseInt tests integer parsing including float-rendered columns
func TestParseInt(t *testing.T) {
	normalizer := newTestNormalizer()

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"Plain integer", "4", 4, false},
		{"Float-rendered integer", "4.0", 4, false},
		{"Fractional", "4.5", 0, true},
		{"Dash means no data", "-", 0, true},
		{"Garbage", "four", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizer.ParseInt(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParseOutcome tests is_top3 flag parsing
func TestParseOutcome(t *testing.T) {
	normalizer := newTestNormalizer()

	tests := []struct {
		name    string
		input   string
		want    bool
		wantErr bool
	}{
		{"Numeric true", "1", true, false},
		{"Numeric false", "0", false, false},
		{"Word true", "true", true, false},
		{"Word false", "False", false, false},
		{"Letter true", "T", true, false},
		{"Yes", "yes", true, false},
		{"No", "no", false, false},
		{"Unknown", "maybe", false, true},
		{"Empty", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizer.ParseOutcome(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestNormalizeObservation tests in-place record canonicalization
func TestNormalizeObservation(t *testing.T) {
	normalizer := newTestNormalizer()

	hkt := time.FixedZone("HKT", 8*3600)
	obs := models.Observation{
		HorseName:      "  golden SIXTY ",
		RaceDate:       time.Date(2024, 6, 1, 14, 0, 0, 0, hkt),
		Jockey:         "z PURTON",
		Trainer:        "j size",
		ActualWeight:   126,
		Draw:           4,
		WinOdds:        2.5,
		FinishPosition: 2,
	}

	normalizer.NormalizeObservation(&obs)

	assert.Equal(t, "Golden Sixty", obs.HorseName)
	assert.Equal(t, "Z Purton", obs.Jockey)
	assert.Equal(t, "J Size", obs.Trainer)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), obs.RaceDate)
	assert.True(t, obs.IsTop3, "finish position 2 should derive a top-3 outcome")
}

// TestNormalizeObservationOutcomePrecedence tests that a known finishing
// position overrides a pre-parsed flag, and an absent one leaves it alone
func TestNormalizeObservationOutcomePrecedence(t *testing.T) {
	normalizer := newTestNormalizer()

	outside := testObservation(horseName, 1, true)
	outside.FinishPosition = 9
	normalizer.NormalizeObservation(&outside)
	assert.False(t, outside.IsTop3, "finish position 9 should override the flag")

	flagOnly := testObservation(horseName, 1, true)
	flagOnly.FinishPosition = 0
	normalizer.NormalizeObservation(&flagOnly)
	assert.True(t, flagOnly.IsTop3, "absent finish position should preserve the flag")
}

// TestNormalizeRaceCardEntry tests race card canonicalization
func TestNormalizeRaceCardEntry(t *testing.T) {
	normalizer := newTestNormalizer()

	hkt := time.FixedZone("HKT", 8*3600)
	entry := models.RaceCardEntry{
		HorseName: "ROMANTIC   warrior",
		RaceDate:  time.Date(2024, 6, 10, 9, 30, 0, 0, hkt),
		Jockey:    "j MCDONALD",
		Trainer:   "c s SHUM",
		WinOdds:   3.2,
	}

	normalizer.NormalizeRaceCardEntry(&entry)

	assert.Equal(t, "Romantic Warrior", entry.HorseName)
	assert.Equal(t, "J Mcdonald", entry.Jockey)
	assert.Equal(t, "C S Shum", entry.Trainer)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), entry.RaceDate)
}
