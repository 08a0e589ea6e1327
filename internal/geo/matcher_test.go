package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stormsignal/weather-notify/internal/models"
)

func TestNormalizeAreaCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"048381", "48381"},   // feed pads SAME codes to six digits
		{"48381", "48381"},    // already canonical
		{"6483", "06483"},     // reference data dropped a leading zero
		{"006483", "06483"},   // padded and leading-zero
		{" 48381 ", "48381"},  // stray whitespace
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAreaCode(tt.in), "input %q", tt.in)
	}
}

func TestMatches(t *testing.T) {
	alert := &models.Alert{
		Event:    "Flood Warning",
		Geocodes: []string{"006483", "048381"},
	}

	assert.True(t, Matches(alert, "06483"), "last-5 normalization must match padded geocode")
	assert.True(t, Matches(alert, "48381"))
	assert.False(t, Matches(alert, "06484"))
}

func TestMatches_EmptyGeocodes(t *testing.T) {
	alert := &models.Alert{Event: "Flood Warning", Geocodes: nil}
	assert.False(t, Matches(alert, "48381"), "no geocodes means no match, not a wildcard")
}

func TestMatches_TestAlertNeverMatches(t *testing.T) {
	alert := &models.Alert{
		Event:    "Required Monthly TEST",
		Geocodes: []string{"048381"},
	}
	assert.False(t, Matches(alert, "48381"))
	assert.True(t, IsTestAlert(alert))
}
